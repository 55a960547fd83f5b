// Package middleware exposes the HTTP request filters that gate access with tokenauth tokens.
//
// # Filters
//
//   - [EdgeFilter]: stateless gate for the system boundary. Verifies signature, expiry,
//     token kind and subject presence. No store or directory call.
//   - [InternalFilter]: stateful gate inside the authenticating service. Resolves the
//     subject through the user directory and attaches an [Identity] to the request context.
//
// Filters are composed explicitly with [Pipeline] or [Guard]. The first filter that
// returns an error ends the request with 401 and a generic JSON body.
//
// # What this package must NOT do
//
//   - Touch the credential store.
//   - Echo the rejection reason to the client.
//   - Let a directory failure degrade to anonymous access.
package middleware
