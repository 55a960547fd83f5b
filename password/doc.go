// Package password hashes and verifies user passwords for the reference user directories.
//
// Two algorithms are provided:
//
//   - [Bcrypt]: the default, compatible with hashes written by common bcrypt encoders.
//   - [Argon2]: argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Migrating] hashes with one algorithm and verifies any supported one, reporting through
// NeedsUpgrade which stored hashes should be rewritten after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Enforce password policy beyond empty and oversized input.
//   - Log plaintext passwords.
package password
