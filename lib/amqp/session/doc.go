// Package session implements the AMQP 1.0 session layer: one logical channel
// multiplexed over a shared connection.
//
// A session negotiates sender link attachment, enforces the session level
// flow-control window for outgoing transfers and correlates settlement of
// each delivery with the promise handed to the caller.
//
// Main components:
//   - Session: reference counted handle exposing the public API
//   - Engine: state machine dispatching inbound performatives
//   - SenderLink: an attached outgoing link
//   - DeliveryPromise: single use completion slot for one transfer
//
// Concurrency: every piece of engine state is guarded by a single mutex, so
// exactly one goroutine mutates the session at a time. Frames are posted to
// the Connection while that mutex is held; Connection.PostFrame must therefore
// hand the frame off and return without calling back into the engine.
package session
