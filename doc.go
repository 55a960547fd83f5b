// Package tokenauth issues, validates, refreshes and revokes authentication credentials:
// short-lived HS256 access tokens, longer-lived refresh tokens anchored in a TTL key-value
// store, and one-time password reset codes.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// tokenauth is the public surface. It exposes [Engine], [Builder], [Config], the three
// protocol components ([TokenService], [SessionManager], [PasswordResetFlow]) and the narrow
// collaborator interfaces ([UserDirectory], [Notifier]). Token encoding lives in package jwt,
// storage in package credstore and request enforcement in package middleware.
//
// # Session model
//
// A subject (the user's email) has at most one live refresh token, stored at
// "refresh:<email>". Login overwrites it, Logout deletes it and Refresh only succeeds for the
// stored value. Access tokens are never stored and cannot be revoked before they expire.
//
// # What this package must NOT do
//
//   - Report a store outage as "no session" or "no code": outages surface as
//     [ErrStoreUnavailable].
//   - Reveal through RequestReset whether an email belongs to a user.
//   - Log tokens, reset codes or passwords.
package tokenauth
