// Package event defines the shared record model for session replay capture.
//
// A Raw event is one timestamped interaction or mutation record produced by
// the recording engine running in the page. The capture pipeline accumulates
// Raw events into batches; the replay side consumes the same records when
// rebuilding a timeline. Payloads are opaque to this package - only the type
// code, the incremental source subtype, and the timestamp are interpreted.
//
// Wire framing matches the temps collector: a batch is the JSON array of
// events, zlib-compressed, then base64-encoded (standard alphabet).
package event
