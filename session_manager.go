package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geochat/tokenauth/credstore"
	"github.com/geochat/tokenauth/internal"
	"github.com/geochat/tokenauth/jwt"
)

// SessionManager runs the per-subject session protocol: at most one refresh token is live for
// a subject, stored at credstore.RefreshKey(subject).
type SessionManager struct {
	tokens  *TokenService
	store   credstore.Store
	users   UserDirectory
	metrics *Metrics
	logger  *slog.Logger
}

// NewSessionManager wires the session protocol. metrics may be nil; a nil logger means
// slog.Default().
func NewSessionManager(tokens *TokenService, store credstore.Store, users UserDirectory, metrics *Metrics, logger *slog.Logger) (*SessionManager, error) {
	if tokens == nil || store == nil || users == nil {
		return nil, errors.New("session manager requires tokens, store and user directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		tokens:  tokens,
		store:   store,
		users:   users,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Login verifies the credentials and starts a session, replacing any previous one for email.
// email is normalized first, so every casing of an address shares one session.
//
// Unknown users and wrong passwords both return ErrInvalidCredentials. Nothing is returned
// when the refresh token cannot be stored.
func (m *SessionManager) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		m.metrics.Inc(MetricLoginFailure)
		return TokenPair{}, ErrInvalidCredentials
	}

	user, err := m.users.FindUser(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.metrics.Inc(MetricLoginFailure)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, directoryError(err)
	}

	ok, err := m.users.VerifyPassword(ctx, user, password)
	if err != nil {
		return TokenPair{}, directoryError(err)
	}
	if !ok {
		m.metrics.Inc(MetricLoginFailure)
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := m.startSession(ctx, email)
	if err != nil {
		return TokenPair{}, err
	}

	m.metrics.Inc(MetricLoginSuccess)
	m.logger.InfoContext(ctx, "login succeeded", "email", email, "request_id", RequestIDFromContext(ctx))
	return pair, nil
}

// startSession expects a normalized email.
func (m *SessionManager) startSession(ctx context.Context, email string) (TokenPair, error) {
	access, err := m.tokens.IssueAccessToken(email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.tokens.IssueRefreshToken(email)
	if err != nil {
		return TokenPair{}, err
	}

	if err := m.store.Put(ctx, credstore.RefreshKey(email), refresh, m.tokens.RefreshTTL()); err != nil {
		return TokenPair{}, m.storeError(ctx, "store refresh token", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges the live refresh token for a new access token. The refresh token itself
// is not rotated.
//
// ErrInvalidRefreshToken is returned when presented fails validation for email, is not a
// refresh token, or is not the value currently stored for email.
func (m *SessionManager) Refresh(ctx context.Context, email, presented string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		m.metrics.Inc(MetricRefreshFailure)
		return "", ErrInvalidRefreshToken
	}

	claims, ok := m.tokens.check(presented, email)
	if !ok || claims.Kind != jwt.KindRefresh {
		m.metrics.Inc(MetricRefreshFailure)
		return "", ErrInvalidRefreshToken
	}

	stored, found, err := m.store.Get(ctx, credstore.RefreshKey(email))
	if err != nil {
		return "", m.storeError(ctx, "load refresh token", err)
	}
	if !found || !internal.ConstantTimeEqual(stored, presented) {
		m.metrics.Inc(MetricRefreshFailure)
		return "", ErrInvalidRefreshToken
	}

	access, err := m.tokens.IssueAccessToken(email)
	if err != nil {
		return "", err
	}

	m.metrics.Inc(MetricRefreshSuccess)
	return access, nil
}

// Logout removes the refresh session for email. It succeeds whether or not a session exists;
// access tokens already issued stay valid until they expire.
func (m *SessionManager) Logout(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidRequest
	}
	if err := m.store.Delete(ctx, credstore.RefreshKey(email)); err != nil {
		return m.storeError(ctx, "delete refresh token", err)
	}

	m.metrics.Inc(MetricLogout)
	m.logger.InfoContext(ctx, "logout", "email", email, "request_id", RequestIDFromContext(ctx))
	return nil
}

func (m *SessionManager) storeError(ctx context.Context, op string, err error) error {
	m.metrics.Inc(MetricStoreFailure)
	m.logger.ErrorContext(ctx, "credential store failure", "op", op, "request_id", RequestIDFromContext(ctx), "error", err)
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func directoryError(err error) error {
	if errors.Is(err, ErrUserDirectoryUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUserDirectoryUnavailable, err)
}
