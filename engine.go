package tokenauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/geochat/tokenauth/internal/dispatch"
)

// Engine bundles the token service, session manager and reset flow built by [Builder].
//
// Engine methods are safe for concurrent use after Build.
type Engine struct {
	config     Config
	tokens     *TokenService
	sessions   *SessionManager
	resets     *PasswordResetFlow
	users      UserDirectory
	dispatcher *dispatch.Dispatcher
	metrics    *Metrics
	logger     *slog.Logger
}

// Close drains pending reset code deliveries. It is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.dispatcher.Close()
}

// Tokens returns the token service, used by the request filters.
func (e *Engine) Tokens() *TokenService {
	if e == nil {
		return nil
	}
	return e.tokens
}

// Users returns the configured user directory.
func (e *Engine) Users() UserDirectory {
	if e == nil {
		return nil
	}
	return e.users
}

// Metrics returns the engine counters. The result may be disabled but is never nil for a
// built Engine.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// NotifyDropped returns how many reset codes the async dispatcher discarded.
func (e *Engine) NotifyDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

func (e *Engine) ready() bool {
	return e != nil && e.sessions != nil && e.resets != nil
}

// Login calls [SessionManager.Login].
func (e *Engine) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	return e.sessions.Login(ctx, email, password)
}

// Refresh calls [SessionManager.Refresh].
func (e *Engine) Refresh(ctx context.Context, email, refreshToken string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.sessions.Refresh(ctx, email, refreshToken)
}

// Logout calls [SessionManager.Logout].
func (e *Engine) Logout(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.sessions.Logout(ctx, email)
}

// RequestReset calls [PasswordResetFlow.RequestReset].
func (e *Engine) RequestReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.resets.RequestReset(ctx, email)
}

// VerifyCode calls [PasswordResetFlow.VerifyCode].
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return e.resets.VerifyCode(ctx, email, code)
}

// ResetPassword calls [PasswordResetFlow.ResetPassword].
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.resets.ResetPassword(ctx, email, code, newPassword)
}

// Register creates an account through the directory and logs it in.
//
// Register returns ErrRegistrationDisabled when the directory does not implement
// [UserRegistrar] and passes ErrUserExists through.
func (e *Engine) Register(ctx context.Context, nickname, email, password string) (Registration, error) {
	if !e.ready() {
		return Registration{}, ErrEngineNotReady
	}
	registrar, ok := e.users.(UserRegistrar)
	if !ok {
		return Registration{}, ErrRegistrationDisabled
	}
	if strings.TrimSpace(nickname) == "" || strings.TrimSpace(email) == "" || password == "" {
		return Registration{}, ErrInvalidRequest
	}

	user, err := registrar.CreateUser(ctx, nickname, email, password)
	if err != nil {
		if errors.Is(err, ErrUserExists) || errors.Is(err, ErrInvalidRequest) {
			return Registration{}, err
		}
		return Registration{}, directoryError(err)
	}

	pair, err := e.sessions.startSession(ctx, NormalizeEmail(email))
	if err != nil {
		return Registration{}, err
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.logger.InfoContext(ctx, "user registered", "email", email, "request_id", RequestIDFromContext(ctx))
	return Registration{UserID: user.ID, TokenPair: pair}, nil
}
