package tokenauth

import (
	"context"
	"strings"
)

// UserRecord is the directory's view of a user.
type UserRecord struct {
	ID           string
	Email        string
	Nickname     string
	PasswordHash string
	Roles        []string
}

// UserDirectory is the external user store the engine authenticates against.
//
// FindUser returns ErrUserNotFound when no user has the email. Any other error is treated as a
// directory outage.
type UserDirectory interface {
	FindUser(ctx context.Context, email string) (UserRecord, error)
	VerifyPassword(ctx context.Context, user UserRecord, plaintext string) (bool, error)
	UpdatePassword(ctx context.Context, email, newPassword string) error
}

// UserRegistrar is implemented by directories that can create accounts.
type UserRegistrar interface {
	CreateUser(ctx context.Context, nickname, email, password string) (UserRecord, error)
}

// Notifier delivers a reset code to a destination, normally an email address.
type Notifier interface {
	Deliver(ctx context.Context, destination, code string) error
}

// ResetLimiter throttles reset requests per email.
//
// CheckRequest returns ErrResetRateLimited when the caller must wait.
type ResetLimiter interface {
	CheckRequest(ctx context.Context, email string) error
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Registration is returned by a successful Register.
type Registration struct {
	UserID string
	TokenPair
}

// NormalizeEmail returns the canonical form of email. Token subjects, store keys and
// throttle keys are built from it, so differently cased logins share one session.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
