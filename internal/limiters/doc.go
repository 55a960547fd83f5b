// Package limiters provides Redis fixed-window throttles for the auth flows.
//
// # Limiters
//
//   - [PasswordResetLimiter]: per-email cap on forgot-password requests.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace. Policy thresholds come from Config structs
// supplied at construction time; the flows decide what a denial means.
package limiters
