package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/go-enroll-api/internal/config"
	"github.com/go-enroll-api/internal/domain"
)

// Mailer sends emails.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// sendTimeout caps a send when ctx carries no deadline of its own.
const sendTimeout = 15 * time.Second

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
	dialer   net.Dialer
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
	}
}

// SendEmail runs the whole SMTP exchange under ctx: the dial honours it, the connection
// deadline follows it, and cancelling ctx closes the connection.
func (m *mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sendTimeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	conn, err := m.dialer.DialContext(ctx, "tcp", net.JoinHostPort(m.host, m.port))
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return err
		}
	}
	if m.username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return err
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// CodeMailer delivers verification codes by email.
type CodeMailer struct {
	mailer   Mailer
	validFor string
}

// NewCodeMailer wraps m. validFor is quoted in the message body, e.g. "10 minutes".
func NewCodeMailer(m Mailer, validFor string) *CodeMailer {
	return &CodeMailer{mailer: m, validFor: validFor}
}

func (c *CodeMailer) SendCode(ctx context.Context, email, code string, purpose domain.Purpose) error {
	subject, body := codeMessage(code, purpose, c.validFor)
	if err := c.mailer.SendEmail(ctx, email, subject, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func codeMessage(code string, purpose domain.Purpose, validFor string) (subject, body string) {
	switch purpose {
	case domain.PurposeReset:
		subject = "Password reset code"
		body = fmt.Sprintf("Your password reset code is %s.\r\nIt expires in %s. If you did not ask to reset your password, ignore this email.", code, validFor)
	default:
		subject = "Verify your email"
		body = fmt.Sprintf("Your verification code is %s.\r\nIt expires in %s.", code, validFor)
	}
	return subject, body
}
