// Package jwt mints and parses the compact HS256 tokens used for access and refresh
// credentials. It performs no I/O; revocation is the caller's concern.
package jwt
