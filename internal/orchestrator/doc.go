// Package orchestrator turns an upload pair and an options snapshot into a
// generation job and drives each of its frames through the external
// provider.
//
// # Dispatch
//
// Every frame runs in its own goroutine. A semaphore shared by all jobs
// bounds how many provider calls are outstanding at once; the bound can be
// changed at runtime with SetLimit. Each call gets its own deadline and an
// expired call fails the frame with kind Timeout.
//
// # Failure isolation
//
// A dispatch outcome updates exactly one frame. Failures are recorded on
// the frame and published as frame.failed; they never abort siblings and
// are never retried automatically. RetryFrame re-queues one Failed frame.
//
// # Cancellation
//
// Cancel is cooperative. Frames still waiting for a slot are cancelled and
// never dispatched. Frames already in flight finish, but their results are
// discarded and the frame is reported as cancelled.
//
// # Events
//
// All state changes are published on the event bus so presentation
// subscribers (gallery, terminal UI, live streams) stay decoupled from the
// state machine.
package orchestrator
