// Package capture implements the client-side session replay pipeline.
//
// ARCHITECTURE:
//
// Three cooperating pieces, one logical session per activation:
//
//   - Manager owns session identity and the init handshake state machine
//     (NotStarted -> Attempting(1..3) -> Succeeded | PermanentlyFailed).
//   - buffer accumulates raw events between flushes and hands them off
//     with an atomic swap.
//   - Scheduler drives flushes from a recurring timer and from the batch
//     size threshold, delivers encoded batches, and reacts to session loss
//     by asking the Manager to reinitialize.
//
// Single-Flush Event Loop:
// Scheduler.Run processes timer ticks and threshold signals in one
// goroutine. A flush never runs concurrently with another flush for the
// same session; a trigger arriving mid-flight coalesces into exactly one
// pending flush.
//
// Failure policy is at-most-once: a batch that cannot be delivered is
// dropped, never queued for retry. Capture must degrade silently rather
// than grow unbounded memory or surface errors into the host page.
package capture
