package services

import (
	"context"
	"testing"

	"github.com/jjudge-oj/problemgen/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newUserService() *UserService {
	svc := NewUserService(store.NewMemoryUserRepository())
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{Username: " alice ", Email: "a@example.com", Name: "Alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "s3cret", user.PasswordHash)

	got, err := svc.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	byID, err := svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", byID.Email)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, Registration{Username: "alice", Email: "a@example.com", Name: "A", Password: "x"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, Registration{Username: "alice", Email: "b@example.com", Name: "B", Password: "y"})
	assert.ErrorIs(t, err, store.ErrConflict)
}
