// Package internal contains helper utilities that are intentionally private to tokenauth:
// one-time code generation and constant-time comparison.
//
// # Sub-packages
//
//   - config: koanf-backed settings for the tokenauthd binary
//   - dispatch: inline or async reset code delivery
//   - gateway: reverse proxy guarded by the edge filter
//   - httpapi: JSON handlers for the auth endpoints
//   - limiters: Redis fixed-window throttles
//   - logging: slog handler setup
//   - observability: Prometheus registry and health probes
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokenauth API.
//   - Be imported by any package outside the tokenauth module.
package internal
