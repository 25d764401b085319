package user

import (
	"context"
	"errors"
	"testing"

	"github.com/go-enroll-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error) {
	args := m.Called(ctx, limit, cursor)
	return args.Get(0).([]domain.User), args.String(1), args.Error(2)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	return m.Called(ctx, userID, blocked).Error(0)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) DisableByUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func newSvc(us *mockUserStore, ss *mockSessionStore) Service {
	return NewService(ServiceDeps{UserRepo: us, SessionRepo: ss})
}

// --- List ---

func TestList_DefaultLimit(t *testing.T) {
	us, ss := &mockUserStore{}, &mockSessionStore{}
	us.On("ScanPage", mock.Anything, int32(50), "").Return([]domain.User{{UserID: "u1"}}, "next", nil)

	users, cursor, err := newSvc(us, ss).List(context.Background(), 0, "")

	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "next", cursor)
}

func TestList_PassesLimitAndCursor(t *testing.T) {
	us, ss := &mockUserStore{}, &mockSessionStore{}
	us.On("ScanPage", mock.Anything, int32(10), "abc").Return([]domain.User{}, "", nil)

	_, _, err := newSvc(us, ss).List(context.Background(), 10, "abc")

	require.NoError(t, err)
	us.AssertExpectations(t)
}

// --- Get ---

func TestGet_NotFound(t *testing.T) {
	us, ss := &mockUserStore{}, &mockSessionStore{}
	us.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	_, err := newSvc(us, ss).Get(context.Background(), "missing")

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// --- Block / Unblock ---

func TestBlock_DisablesSessions(t *testing.T) {
	us, ss := &mockUserStore{}, &mockSessionStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Role: domain.RoleUser}, nil)
	us.On("SetBlocked", mock.Anything, "u1", true).Return(nil)
	ss.On("DisableByUser", mock.Anything, "u1").Return(nil)

	u, err := newSvc(us, ss).Block(context.Background(), "u1")

	require.NoError(t, err)
	assert.True(t, u.Blocked)
	us.AssertExpectations(t)
	ss.AssertExpectations(t)
}

func TestBlock_AdminRejected(t *testing.T) {
	us, ss := &mockUserStore{}, &mockSessionStore{}
	us.On("Get", mock.Anything, "a1").Return(&domain.User{UserID: "a1", Role: domain.RoleAdmin}, nil)

	_, err := newSvc(us, ss).Block(context.Background(), "a1")

	assert.True(t, errors.Is(err, domain.ErrForbidden))
	us.AssertNotCalled(t, "SetBlocked", mock.Anything, mock.Anything, mock.Anything)
}

func TestBlock_UnknownUser(t *testing.T) {
	us, ss := &mockUserStore{}, &mockSessionStore{}
	us.On("Get", mock.Anything, "nope").Return(nil, domain.ErrNotFound)

	_, err := newSvc(us, ss).Block(context.Background(), "nope")

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUnblock(t *testing.T) {
	us, ss := &mockUserStore{}, &mockSessionStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Blocked: true}, nil)
	us.On("SetBlocked", mock.Anything, "u1", false).Return(nil)

	u, err := newSvc(us, ss).Unblock(context.Background(), "u1")

	require.NoError(t, err)
	assert.False(t, u.Blocked)
	ss.AssertNotCalled(t, "DisableByUser", mock.Anything, mock.Anything)
}
