// Package dispatch hands reset codes to a Deliverer, inline or through a bounded background
// queue.
//
// # Components
//
//   - [Deliverer]: the transport (log, SMTP) that actually sends a code.
//   - [Dispatcher]: inline or buffered async relay with drop-if-full / block-if-full semantics.
//   - [Job]: one code addressed to one destination.
//
// # Architecture boundaries
//
// Delivery is fire-and-forget for the caller: failures are logged and counted, never returned.
// Log records carry the destination but never the code.
package dispatch
