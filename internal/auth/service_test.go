package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patrimon/patrimon/internal/shared"
)

type memAccounts struct {
	byEmail map[string]*User
	byID    map[int64]*User
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (m *memAccounts) FindByID(_ context.Context, id int64) (*User, error) {
	user, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func newTestService(t *testing.T) (*Service, *memAccounts) {
	t.Helper()
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	operator := &User{
		ID:           7,
		Email:        "operator@example.com",
		Name:         "Branch Operator",
		PasswordHash: hash,
		Role:         shared.RoleOperator,
		BranchIDs:    []int64{1},
		IsActive:     true,
	}
	repo := &memAccounts{
		byEmail: map[string]*User{operator.Email: operator},
		byID:    map[int64]*User{operator.ID: operator},
	}
	return NewService(repo, "test-secret", time.Hour), repo
}

func TestAuthenticate(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "operator@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)

	_, err = svc.Authenticate(ctx, "operator@example.com", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "hunter2")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	repo.byEmail["operator@example.com"].IsActive = false
	_, err = svc.Authenticate(ctx, "operator@example.com", "hunter2")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "operator@example.com", "hunter2")
	require.NoError(t, err)

	token, expiresAt, err := svc.IssueToken(user)
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	verified, err := svc.VerifyToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, verified.ID)
	require.Equal(t, shared.RoleOperator, verified.Role)
}

func TestVerifyTokenRejectsForgedAndStale(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.VerifyToken(ctx, "not-a-token")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	other := NewService(repo, "other-secret", time.Hour)
	forged, _, err := other.IssueToken(repo.byID[7])
	require.NoError(t, err)
	_, err = svc.VerifyToken(ctx, forged)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Deactivation takes effect on the next request, not at next login.
	token, _, err := svc.IssueToken(repo.byID[7])
	require.NoError(t, err)
	repo.byID[7].IsActive = false
	_, err = svc.VerifyToken(ctx, token)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
