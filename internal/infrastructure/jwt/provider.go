package jwtinfra

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/go-enroll-api/internal/config"
	"github.com/go-enroll-api/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// issuer is stamped on every bearer and required on verify.
const issuer = "go-enroll-api"

// Claims is the bearer payload. The user id travels as the subject and the session id as
// the token id, so a bearer names exactly one session that can be revoked.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string    { return c.Subject }
func (c *Claims) SessionID() string { return c.ID }

// IsAdmin reports whether the bearer came from an admin login.
func (c *Claims) IsAdmin() bool { return c.Role == domain.RoleAdmin }

// Provider signs and verifies RS256 bearers.
type Provider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	expiry     time.Duration
	parser     *jwt.Parser
	nowF       func() time.Time
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	priv, err := readPEM(cfg.JWTPrivateKeyPath, "private", jwt.ParseRSAPrivateKeyFromPEM)
	if err != nil {
		return nil, err
	}
	pub, err := readPEM(cfg.JWTPublicKeyPath, "public", jwt.ParseRSAPublicKeyFromPEM)
	if err != nil {
		return nil, err
	}
	return &Provider{
		privateKey: priv,
		publicKey:  pub,
		expiry:     cfg.JWTExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
		nowF: time.Now,
	}, nil
}

func readPEM[K any](path, kind string, parse func([]byte) (K, error)) (K, error) {
	var zero K
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("read %s key: %w", kind, err)
	}
	key, err := parse(data)
	if err != nil {
		return zero, fmt.Errorf("parse %s key: %w", kind, err)
	}
	return key, nil
}

// Sign issues a bearer for sessionID, owned by userID with role.
func (p *Provider) Sign(userID, role, sessionID string) (string, error) {
	now := p.nowF()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.privateKey)
}

// Verify checks signature, issuer and expiry and requires both subject and session id.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := p.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("bearer without subject or session: %w", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}
