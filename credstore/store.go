package credstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps every failure to reach the backing store.
	ErrUnavailable = errors.New("credential store unavailable")
	// ErrInvalidTTL is returned by Put when ttl <= 0.
	ErrInvalidTTL = errors.New("credential store ttl must be positive")
)

const (
	refreshPrefix = "refresh:"
	resetPrefix   = "reset:"
)

// Store is the narrow get/put/delete contract consumed by the core.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

// RefreshKey is the key holding the live refresh token for subject.
func RefreshKey(subject string) string {
	return refreshPrefix + subject
}

// ResetKey is the key holding the pending reset code for email.
func ResetKey(email string) string {
	return resetPrefix + email
}
