// Package userdir provides reference implementations of tokenauth.UserDirectory and
// tokenauth.UserRegistrar: an in-memory directory for tests and examples, and a PostgreSQL
// directory backed by pgx.
//
// Emails and nicknames are matched case-insensitively. Passwords are stored as hashes from
// package password; a successful VerifyPassword rewrites hashes the hasher flags for upgrade.
package userdir
