package tokenauth

import (
	"errors"

	"github.com/geochat/tokenauth/credstore"
	"github.com/geochat/tokenauth/internal/limiters"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefreshToken covers every refresh rejection: bad signature, expiry, wrong kind,
	// absent session or a stored value that differs. The cases are not distinguished.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidOrExpiredCode is returned by ResetPassword when the code does not match the
	// stored one or has expired.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired reset code")
	// ErrStoreUnavailable reports a credential store outage. It is never used for "not found".
	ErrStoreUnavailable = credstore.ErrUnavailable
	// ErrUnauthorized is returned by the request filters.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is returned by a UserDirectory when no user has the email.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by a UserRegistrar for a taken email or nickname.
	ErrUserExists = errors.New("user already exists")
	// ErrUserDirectoryUnavailable reports a user directory failure.
	ErrUserDirectoryUnavailable = errors.New("user directory unavailable")
	// ErrResetRateLimited is returned by RequestReset when the per-email window is exhausted.
	ErrResetRateLimited = limiters.ErrResetRateLimited
	// ErrInvalidRequest is returned for empty or malformed operation input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRegistrationDisabled is returned by Register when the directory cannot create users.
	ErrRegistrationDisabled = errors.New("registration disabled")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
