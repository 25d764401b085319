// Package enrollment runs the code-gated registration and password-reset workflows.
// It is the only component that talks to the delivery channel and the user directory.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-enroll-api/internal/domain"
	"github.com/go-enroll-api/internal/pkg/id"
	"github.com/go-enroll-api/internal/pkg/otp"
	"github.com/go-enroll-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const passwordRules = "required,min=8,max=72"

// Notifier delivers a verification code to the owner of an email address.
type Notifier interface {
	SendCode(ctx context.Context, email, code string, purpose domain.Purpose) error
}

type Service interface {
	RequestCode(ctx context.Context, req domain.CodeRequest) error
	VerifyCode(ctx context.Context, req domain.CodeVerification) (*domain.AuthResult, error)
	RequestRegistrationCode(ctx context.Context, req domain.RegistrationRequest) error
	VerifyRegistration(ctx context.Context, email, code string) (*domain.AuthResult, error)
	RequestReset(ctx context.Context, email string) error
	VerifyReset(ctx context.Context, email, code, newPassword string) error
}

type tokenStore interface {
	Issue(ctx context.Context, email string, purpose domain.Purpose, code string, ttl time.Duration) error
	Consume(ctx context.Context, email string, purpose domain.Purpose, code string) (domain.ConsumeResult, error)
	Delete(ctx context.Context, email string, purpose domain.Purpose) error
}

type pendingStore interface {
	Put(ctx context.Context, p domain.PendingEnrollment, ttl time.Duration) error
	Get(ctx context.Context, email string) (*domain.PendingEnrollment, error)
	Remove(ctx context.Context, email string) error
}

type userStore interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error
}

type sessionManager interface {
	Issue(ctx context.Context, u *domain.User) (*domain.AuthResult, error)
	RevokeAll(ctx context.Context, userID string) error
}

type service struct {
	tokens     tokenStore
	pending    pendingStore
	users      userStore
	sessions   sessionManager
	notifier   Notifier
	codeLength int
	tokenTTL   time.Duration
	pendingTTL time.Duration
	nowF       func() time.Time
	hashCost   int
}

type ServiceDeps struct {
	Tokens     tokenStore
	Pending    pendingStore
	UserRepo   userStore
	Sessions   sessionManager
	Notifier   Notifier
	CodeLength int
	TokenTTL   time.Duration
	PendingTTL time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		tokens:     deps.Tokens,
		pending:    deps.Pending,
		users:      deps.UserRepo,
		sessions:   deps.Sessions,
		notifier:   deps.Notifier,
		codeLength: deps.CodeLength,
		tokenTTL:   deps.TokenTTL,
		pendingTTL: deps.PendingTTL,
		nowF:       time.Now,
		hashCost:   bcrypt.DefaultCost,
	}
}

func (s *service) RequestCode(ctx context.Context, req domain.CodeRequest) error {
	switch req.Purpose {
	case domain.PurposeRegister:
		if req.Profile == nil {
			return fmt.Errorf("registration profile required: %w", domain.ErrValidation)
		}
		profile := *req.Profile
		if req.Email != "" {
			profile.Email = req.Email
		}
		return s.RequestRegistrationCode(ctx, profile)
	case domain.PurposeReset:
		return s.RequestReset(ctx, req.Email)
	}
	return fmt.Errorf("unknown purpose %q: %w", req.Purpose, domain.ErrValidation)
}

func (s *service) VerifyCode(ctx context.Context, req domain.CodeVerification) (*domain.AuthResult, error) {
	switch req.Purpose {
	case domain.PurposeRegister:
		return s.VerifyRegistration(ctx, req.Email, req.Code)
	case domain.PurposeReset:
		return nil, s.VerifyReset(ctx, req.Email, req.Code, req.NewPassword)
	}
	return nil, fmt.Errorf("unknown purpose %q: %w", req.Purpose, domain.ErrValidation)
}

func (s *service) RequestRegistrationCode(ctx context.Context, req domain.RegistrationRequest) error {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}
	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return err
	}
	code, err := otp.Generate(s.codeLength)
	if err != nil {
		return err
	}

	if err := s.tokens.Issue(ctx, req.Email, domain.PurposeRegister, code, s.tokenTTL); err != nil {
		return err
	}
	p := domain.PendingEnrollment{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		RequestedAt:  s.nowF().UTC(),
	}
	if err := s.pending.Put(ctx, p, s.pendingTTL); err != nil {
		s.rollback(ctx, req.Email, domain.PurposeRegister)
		return err
	}

	if err := s.notifier.SendCode(ctx, req.Email, code, domain.PurposeRegister); err != nil {
		slog.Warn("registration code delivery failed", "email", req.Email, "err", err)
		s.rollback(ctx, req.Email, domain.PurposeRegister)
		return fmt.Errorf("send registration code: %w", domain.ErrDelivery)
	}
	return nil
}

func (s *service) VerifyRegistration(ctx context.Context, email, code string) (*domain.AuthResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || code == "" {
		return nil, fmt.Errorf("email and code required: %w", domain.ErrValidation)
	}

	res, err := s.tokens.Consume(ctx, email, domain.PurposeRegister, code)
	if err != nil {
		return nil, err
	}
	switch res {
	case domain.ConsumeMismatched:
		return nil, fmt.Errorf("invalid verification code: %w", domain.ErrInvalidCode)
	case domain.ConsumeLocked:
		s.discardPending(ctx, email)
		return nil, fmt.Errorf("verification code locked after repeated failures: %w", domain.ErrTooManyAttempts)
	case domain.ConsumeExpired, domain.ConsumeNotFound:
		s.discardPending(ctx, email)
		return nil, fmt.Errorf("verification code expired or unknown: %w", domain.ErrExpired)
	}

	p, err := s.pending.Get(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("registration request expired: %w", domain.ErrExpired)
		}
		return nil, err
	}
	if s.nowF().After(p.ExpiresAt) {
		s.discardPending(ctx, email)
		return nil, fmt.Errorf("registration request expired: %w", domain.ErrExpired)
	}

	// Another path may have created the identity while the code was in flight.
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		s.discardPending(ctx, email)
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	now := s.nowF().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        email,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Name:         domain.FullName(p.FirstName, p.LastName),
		PasswordHash: p.PasswordHash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Put(ctx, u); err != nil {
		return nil, err
	}
	s.discardPending(ctx, email)

	return s.sessions.Issue(ctx, u)
}

func (s *service) RequestReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if err := validate.Var("email", email, "required,email"); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.Blocked {
		return fmt.Errorf("account is blocked: %w", domain.ErrForbidden)
	}
	code, err := otp.Generate(s.codeLength)
	if err != nil {
		return err
	}
	if err := s.tokens.Issue(ctx, email, domain.PurposeReset, code, s.tokenTTL); err != nil {
		return err
	}
	if err := s.notifier.SendCode(ctx, email, code, domain.PurposeReset); err != nil {
		slog.Warn("reset code delivery failed", "email", email, "err", err)
		s.rollback(ctx, email, domain.PurposeReset)
		return fmt.Errorf("send reset code: %w", domain.ErrDelivery)
	}
	return nil
}

func (s *service) VerifyReset(ctx context.Context, email, code, newPassword string) error {
	email = domain.NormalizeEmail(email)
	if email == "" || code == "" {
		return fmt.Errorf("email and code required: %w", domain.ErrValidation)
	}
	// Checked before consuming so a rejected password does not burn the code.
	if err := validate.Var("new_password", newPassword, passwordRules); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}

	res, err := s.tokens.Consume(ctx, email, domain.PurposeReset, code)
	if err != nil {
		return err
	}
	switch res {
	case domain.ConsumeMismatched:
		return fmt.Errorf("invalid verification code: %w", domain.ErrInvalidCode)
	case domain.ConsumeLocked:
		return fmt.Errorf("verification code locked after repeated failures: %w", domain.ErrTooManyAttempts)
	case domain.ConsumeExpired, domain.ConsumeNotFound:
		return fmt.Errorf("verification code expired or unknown: %w", domain.ErrExpired)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordByEmail(ctx, email, string(hash)); err != nil {
		return err
	}
	if err := s.sessions.RevokeAll(ctx, u.UserID); err != nil {
		slog.Warn("failed to revoke sessions after password reset", "user_id", u.UserID, "err", err)
	}
	return nil
}

// rollback removes state written for a code that never reached its owner.
func (s *service) rollback(ctx context.Context, email string, purpose domain.Purpose) {
	if err := s.tokens.Delete(ctx, email, purpose); err != nil {
		slog.Error("rollback: delete token", "email", email, "purpose", purpose, "err", err)
	}
	if purpose == domain.PurposeRegister {
		s.discardPending(ctx, email)
	}
}

func (s *service) discardPending(ctx context.Context, email string) {
	if err := s.pending.Remove(ctx, email); err != nil {
		slog.Warn("failed to remove pending enrollment", "email", email, "err", err)
	}
}
