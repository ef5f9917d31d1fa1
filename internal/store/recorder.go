package store

import (
	"context"
	"sync"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

// JobSource looks up live jobs. The orchestrator satisfies it.
type JobSource interface {
	Job(jobID string) (*job.Job, error)
}

const recordTimeout = 5 * time.Second

type opKind int

const (
	opSnapshot opKind = iota
	opOutput
	opDelete
	opBarrier
)

type op struct {
	kind  opKind
	jobID string
	index int
	snap  job.Snapshot
	img   media.Image
	done  chan struct{}
}

// Recorder mirrors job state into a Store as bus events arrive. The bus
// handler only captures what changed; a single worker performs the store
// writes in arrival order, so a slow store never holds up the publisher.
// Pending snapshots of the same job collapse into the newest one. Store
// errors are logged and never reach the publisher.
type Recorder struct {
	store  Store
	jobs   JobSource
	bus    *event.Bus
	logger *logging.Logger
	subID  string

	mu       sync.Mutex
	closed   bool
	pending  []op
	snapAt   map[string]int // jobID -> position of its pending snapshot
	wake     chan struct{}
	done     chan struct{}
	closeOne sync.Once
}

// NewRecorder subscribes a Recorder to every event on bus and starts its
// write worker.
func NewRecorder(st Store, jobs JobSource, bus *event.Bus, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.NopLogger()
	}
	r := &Recorder{
		store:  st,
		jobs:   jobs,
		bus:    bus,
		logger: logger.WithComponent("recorder"),
		snapAt: make(map[string]int),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	r.subID = bus.SubscribeAll(r.handle)
	go r.run()
	return r
}

// Flush blocks until every write queued before the call has reached the
// store.
func (r *Recorder) Flush() {
	done := make(chan struct{})
	if !r.push(op{kind: opBarrier, done: done}) {
		return
	}
	<-done
}

// Close unsubscribes from the bus and waits for queued writes to finish.
func (r *Recorder) Close() {
	r.closeOne.Do(func() {
		r.bus.Unsubscribe(r.subID)
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.signal()
	})
	<-r.done
}

func (r *Recorder) handle(e event.Event) {
	switch ev := e.(type) {
	case event.FrameSucceededEvent:
		r.push(op{
			kind:  opOutput,
			jobID: ev.JobID,
			index: ev.Index,
			img:   media.Image{Data: ev.Output, MediaType: ev.MediaType},
		})
	case event.JobDiscardedEvent:
		r.push(op{kind: opDelete, jobID: ev.JobID})
	case event.JobSubmittedEvent, event.JobProgressEvent, event.FrameDispatchedEvent:
		jobID := ev.(event.JobEvent).JobRef()
		j, err := r.jobs.Job(jobID)
		if err != nil {
			return
		}
		r.push(op{kind: opSnapshot, jobID: jobID, snap: j.Snapshot()})
	}
}

// push queues o and reports whether it was accepted.
func (r *Recorder) push(o op) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	switch o.kind {
	case opSnapshot:
		if i, ok := r.snapAt[o.jobID]; ok {
			r.pending[i].snap = o.snap
			r.mu.Unlock()
			return true
		}
		r.snapAt[o.jobID] = len(r.pending)
	case opDelete:
		// A later snapshot must not land before this delete.
		delete(r.snapAt, o.jobID)
	}
	r.pending = append(r.pending, o)
	r.mu.Unlock()
	r.signal()
	return true
}

func (r *Recorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for range r.wake {
		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		clear(r.snapAt)
		closed := r.closed
		r.mu.Unlock()

		for _, o := range batch {
			r.apply(o)
		}
		// Nothing is queued once closed is set, so this batch was the last.
		if closed {
			return
		}
	}
}

func (r *Recorder) apply(o op) {
	if o.kind == opBarrier {
		close(o.done)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	log := r.logger.WithJob(o.jobID)
	switch o.kind {
	case opOutput:
		if err := r.store.SaveOutput(ctx, o.jobID, o.index, o.img); err != nil {
			log.WithFrame(o.index).Warn("failed to record output", "error", err)
		}
	case opDelete:
		if err := r.store.Delete(ctx, o.jobID); err != nil {
			log.Warn("failed to delete job", "error", err)
		}
	case opSnapshot:
		if err := r.store.SaveSnapshot(ctx, o.snap); err != nil {
			log.Warn("failed to record snapshot", "error", err)
		}
	}
}
