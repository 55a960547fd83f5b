// Package credstore is the keyed, TTL'd credential store shared by the session and
// password-reset flows.
//
// # Contract
//
// Put overwrites unconditionally, Get reports absence as ok=false with a nil error, and
// Delete is idempotent. Every remote failure is reported as an error wrapping
// [ErrUnavailable]; an outage is never reported as "absent".
//
// Each operation is a single store command, so a cancelled request cannot leave a
// half-written record behind.
package credstore
