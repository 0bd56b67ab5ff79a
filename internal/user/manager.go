// Package user handles registration and login. Password hashes use
// bcrypt; the rest of the server only ever sees the verified user ID.
package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials covers unknown usernames and wrong
	// passwords alike, so login errors do not leak which one it was.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUsernameTaken means the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUserNotFound means no user exists with the given ID or name.
	ErrUserNotFound = errors.New("user not found")
)

// User is a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    time.Time
}

// Repository is the persistence behind user accounts.
type Repository interface {
	CreateUser(ctx context.Context, username, passwordHash, email string) (User, error)
	UserByName(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
	TouchLastLogin(ctx context.Context, id int64) error
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateUsername checks the account-name rules: 3-20 characters,
// letters, digits and underscores only.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return errors.New("username is required")
	case len(username) < 3:
		return errors.New("username must be at least 3 characters long")
	case len(username) > 20:
		return errors.New("username must be at most 20 characters long")
	case !usernamePattern.MatchString(username):
		return errors.New("username can only contain letters, numbers, and underscores")
	}
	return nil
}

// ValidatePassword checks the password length rules.
func ValidatePassword(password string) error {
	switch {
	case password == "":
		return errors.New("password is required")
	case len(password) < 6:
		return errors.New("password must be at least 6 characters long")
	case len(password) > 100:
		return errors.New("password is too long")
	}
	return nil
}

// Manager wraps account operations over the user repository.
type Manager struct {
	repo   Repository
	logger *zap.Logger
}

// NewManager creates a user manager.
func NewManager(repo Repository, logger *zap.Logger) *Manager {
	return &Manager{repo: repo, logger: logger}
}

// Register validates the input, hashes the password and creates the
// account.
func (m *Manager) Register(ctx context.Context, username, password, email string) (User, error) {
	if err := ValidateUsername(username); err != nil {
		return User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := m.repo.CreateUser(ctx, username, string(hash), email)
	if err != nil {
		return User{}, err
	}

	m.logger.Info("user registered",
		zap.Int64("user_id", u.ID),
		zap.String("username", u.Username),
	)
	return u, nil
}

// Authenticate verifies a username/password pair and returns the
// account on success.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := m.repo.UserByName(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		m.logger.Warn("failed login attempt", zap.String("username", username))
		return User{}, ErrInvalidCredentials
	}

	if err := m.repo.TouchLastLogin(ctx, u.ID); err != nil {
		m.logger.Error("failed to record last login",
			zap.Int64("user_id", u.ID),
			zap.Error(err),
		)
	}

	return u, nil
}

// ByID loads an account by its ID.
func (m *Manager) ByID(ctx context.Context, id int64) (User, error) {
	return m.repo.UserByID(ctx, id)
}
