package userdir

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/password"
)

// DefaultRole is granted to every created user.
const DefaultRole = "USER"

// Option configures a directory.
type Option func(*options)

type options struct {
	hasher password.Hasher
	logger *slog.Logger
}

// WithHasher sets the password hasher. Defaults to password.Default().
func WithHasher(h password.Hasher) Option {
	return func(o *options) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithLogger sets the logger used for best-effort hash upgrades.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasher == nil {
		o.hasher = password.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// hashPassword reports rejected plaintext as tokenauth.ErrInvalidRequest.
func hashPassword(h password.Hasher, plaintext string) (string, error) {
	hash, err := h.Hash(plaintext)
	if errors.Is(err, password.ErrEmptyPassword) || errors.Is(err, password.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %v", tokenauth.ErrInvalidRequest, err)
	}
	return hash, err
}
