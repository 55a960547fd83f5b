package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/geochat/tokenauth/credstore"
	"github.com/geochat/tokenauth/internal"
	"github.com/geochat/tokenauth/internal/dispatch"
)

// PasswordResetFlow issues, verifies and consumes one-time reset codes stored at
// credstore.ResetKey(email).
type PasswordResetFlow struct {
	store      credstore.Store
	users      UserDirectory
	dispatcher *dispatch.Dispatcher
	limiter    ResetLimiter
	config     ResetCodeConfig
	metrics    *Metrics
	logger     *slog.Logger
	random     io.Reader
}

func newPasswordResetFlow(
	store credstore.Store,
	users UserDirectory,
	dispatcher *dispatch.Dispatcher,
	limiter ResetLimiter,
	cfg ResetCodeConfig,
	metrics *Metrics,
	logger *slog.Logger,
	random io.Reader,
) *PasswordResetFlow {
	return &PasswordResetFlow{
		store:      store,
		users:      users,
		dispatcher: dispatcher,
		limiter:    limiter,
		config:     cfg,
		metrics:    metrics,
		logger:     logger,
		random:     random,
	}
}

// RequestReset stores a fresh code for email and hands it to the notifier, replacing any
// earlier code.
//
// The result does not reveal whether email belongs to a user: unknown emails succeed without
// storing or sending anything. Delivery failures are logged, not returned.
func (f *PasswordResetFlow) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidRequest
	}

	if f.limiter != nil {
		if err := f.limiter.CheckRequest(ctx, email); err != nil {
			if errors.Is(err, ErrResetRateLimited) {
				f.metrics.Inc(MetricPasswordResetRateLimited)
				return ErrResetRateLimited
			}
			return f.storeError(ctx, "check reset throttle", err)
		}
	}

	f.metrics.Inc(MetricPasswordResetRequest)

	user, err := f.users.FindUser(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			f.logger.DebugContext(ctx, "reset requested for unknown email", "request_id", RequestIDFromContext(ctx))
			return nil
		}
		return directoryError(err)
	}
	destination := strings.TrimSpace(user.Email)
	if destination == "" {
		destination = email
	}

	code, err := internal.NewOTP(f.random, f.config.Digits)
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}

	if err := f.store.Put(ctx, credstore.ResetKey(email), code, f.config.TTL); err != nil {
		return f.storeError(ctx, "store reset code", err)
	}
	f.metrics.Inc(MetricPasswordResetCodeIssued)

	f.dispatcher.Submit(ctx, dispatch.Job{
		Destination: destination,
		Code:        code,
		RequestID:   RequestIDFromContext(ctx),
	})

	return nil
}

// VerifyCode reports whether code is the live code for email. It never consumes the code and
// can be repeated until the code is used or expires.
func (f *PasswordResetFlow) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" || code == "" {
		return false, nil
	}

	stored, ok, err := f.store.Get(ctx, credstore.ResetKey(email))
	if err != nil {
		return false, f.storeError(ctx, "load reset code", err)
	}
	if !ok {
		return false, nil
	}

	return internal.ConstantTimeEqual(stored, code), nil
}

// ResetPassword sets a new password for email when code is valid.
//
// The directory update happens first and the code is deleted last, so any failure along the
// way leaves the code usable for a retry. When ResetCodeConfig.RevokeSessions is set the
// refresh session is deleted before the code.
func (f *PasswordResetFlow) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidRequest
	}
	email = NormalizeEmail(email)

	ok, err := f.VerifyCode(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		f.metrics.Inc(MetricPasswordResetConfirmFailure)
		return ErrInvalidOrExpiredCode
	}

	if err := f.users.UpdatePassword(ctx, email, newPassword); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			f.metrics.Inc(MetricPasswordResetConfirmFailure)
			return ErrInvalidOrExpiredCode
		}
		if errors.Is(err, ErrInvalidRequest) {
			return err
		}
		return directoryError(err)
	}

	if f.config.RevokeSessions {
		if err := f.store.Delete(ctx, credstore.RefreshKey(email)); err != nil {
			return f.storeError(ctx, "revoke refresh token", err)
		}
	}

	if err := f.store.Delete(ctx, credstore.ResetKey(email)); err != nil {
		return f.storeError(ctx, "consume reset code", err)
	}

	f.metrics.Inc(MetricPasswordResetConfirmSuccess)
	f.logger.InfoContext(ctx, "password reset", "email", email, "request_id", RequestIDFromContext(ctx))
	return nil
}

func (f *PasswordResetFlow) storeError(ctx context.Context, op string, err error) error {
	f.metrics.Inc(MetricStoreFailure)
	f.logger.ErrorContext(ctx, "credential store failure", "op", op, "request_id", RequestIDFromContext(ctx), "error", err)
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
