package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	nextID int64
	byName map[string]User
	byID   map[int64]User
}

func newMemRepo() *memRepo {
	return &memRepo{byName: make(map[string]User), byID: make(map[int64]User)}
}

func (r *memRepo) CreateUser(_ context.Context, username, passwordHash, email string) (User, error) {
	if _, exists := r.byName[username]; exists {
		return User{}, ErrUsernameTaken
	}
	r.nextID++
	u := User{ID: r.nextID, Username: username, PasswordHash: passwordHash, Email: email}
	r.byName[username] = u
	r.byID[u.ID] = u
	return u, nil
}

func (r *memRepo) UserByName(_ context.Context, username string) (User, error) {
	u, ok := r.byName[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *memRepo) UserByID(_ context.Context, id int64) (User, error) {
	u, ok := r.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *memRepo) TouchLastLogin(_ context.Context, _ int64) error {
	return nil
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("player_1"))
	assert.NoError(t, ValidateUsername("abc"))

	assert.Error(t, ValidateUsername(""))
	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername("this_username_is_way_too_long"))
	assert.Error(t, ValidateUsername("bad name"))
	assert.Error(t, ValidateUsername("héllo"))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("secret1"))

	assert.Error(t, ValidatePassword(""))
	assert.Error(t, ValidatePassword("short"))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemRepo(), zap.NewNop())

	u, err := m.Register(ctx, "alice", "hunter22", "")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.NotEqual(t, "hunter22", u.PasswordHash, "password must be hashed")

	got, err := m.Authenticate(ctx, "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestAuthenticateFailures(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemRepo(), zap.NewNop())

	_, err := m.Register(ctx, "alice", "hunter22", "")
	require.NoError(t, err)

	_, err = m.Authenticate(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown users fail the same way as wrong passwords.
	_, err = m.Authenticate(ctx, "nobody", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemRepo(), zap.NewNop())

	_, err := m.Register(ctx, "alice", "hunter22", "")
	require.NoError(t, err)

	_, err = m.Register(ctx, "alice", "other-pass", "")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemRepo(), zap.NewNop())

	_, err := m.Register(ctx, "x", "hunter22", "")
	assert.Error(t, err)

	_, err = m.Register(ctx, "alice", "short", "")
	assert.Error(t, err)
}
