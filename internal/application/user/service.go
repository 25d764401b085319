package user

import (
	"context"
	"fmt"

	"github.com/go-enroll-api/internal/domain"
)

type Service interface {
	List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Block(ctx context.Context, userID string) (*domain.User, error)
	Unblock(ctx context.Context, userID string) (*domain.User, error)
}

type userStore interface {
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	SetBlocked(ctx context.Context, userID string, blocked bool) error
}

type sessionStore interface {
	DisableByUser(ctx context.Context, userID string) error
}

type service struct {
	repo        userStore
	sessionRepo sessionStore
}

type ServiceDeps struct {
	UserRepo    userStore
	SessionRepo sessionStore
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:        deps.UserRepo,
		sessionRepo: deps.SessionRepo,
	}
}

func (s *service) List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ScanPage(ctx, int32(limit), cursor)
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

// Block marks the user blocked and disables every open session.
func (s *service) Block(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() {
		return nil, fmt.Errorf("admin accounts cannot be blocked: %w", domain.ErrForbidden)
	}
	if err := s.repo.SetBlocked(ctx, userID, true); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.DisableByUser(ctx, userID); err != nil {
		return nil, err
	}
	u.Blocked = true
	return u, nil
}

func (s *service) Unblock(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetBlocked(ctx, userID, false); err != nil {
		return nil, err
	}
	u.Blocked = false
	return u, nil
}
