// Package event provides the pub-sub bus that decouples the generation
// lifecycle from everything that presents it.
//
// The orchestrator publishes discrete domain events (a frame succeeded, a
// frame failed, job progress changed) and any number of independent
// subscribers consume them: the result gallery, the terminal UI, the
// SSE/WebSocket bridge, the snapshot recorder and the AMQP exporter.
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine and are protected against panics.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeFrameSucceeded, func(e event.Event) {
//	    done := e.(event.FrameSucceededEvent)
//	    log.Printf("frame %d of %s ready", done.Index, done.JobID)
//	})
//
//	// Only events for one job
//	id := bus.SubscribeJob(jobID, handler)
//	defer bus.Unsubscribe(id)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - job.submitted, job.progress, job.finished, job.cancelled, job.discarded
//   - frame.dispatched, frame.succeeded, frame.failed, frame.cancelled
//   - upload.changed
//   - preferences.changed
package event
