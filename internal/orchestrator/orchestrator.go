package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/media"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/prompt"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

// Sentinel errors returned by orchestrator operations. Frame-level
// transition errors come from the job package and are re-exported here.
var (
	ErrMissingInput  = upload.ErrMissingInput
	ErrInvalidState  = job.ErrInvalidState
	ErrRetryLimit    = job.ErrRetryLimit
	ErrFrameNotFound = job.ErrFrameNotFound
	ErrJobNotFound   = errors.New("job not found")
	ErrClosed        = errors.New("orchestrator closed")
)

// Generator produces one output image for one frame request. It is the
// external provider boundary. Implementations must honor ctx: the
// orchestrator relies on it for dispatch timeouts and shutdown.
type Generator interface {
	Generate(ctx context.Context, req job.FrameRequest) (media.Image, error)
}

// UploadSource supplies the input pair for a submission.
type UploadSource interface {
	Snapshot() (upload.Inputs, error)
}

// Orchestrator builds jobs from uploads and options and dispatches one
// provider call per frame. Frames complete independently: a frame's result
// is recorded and published the moment its call returns, regardless of
// its siblings.
type Orchestrator struct {
	gen    Generator
	bus    *event.Bus
	logger *logging.Logger
	sem    *dispatchSemaphore

	dispatchTimeout time.Duration
	maxAttempts     int
	newID           func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.RWMutex
	jobs   map[string]*entry
	closed bool
}

// entry is the orchestrator's bookkeeping for one job.
type entry struct {
	job *job.Job

	// ctx gates waiting for a dispatch slot. It is cancelled on Cancel and
	// Discard so queued frames stop waiting; in-flight calls use the
	// orchestrator context and are allowed to finish.
	ctx    context.Context
	cancel context.CancelFunc

	// reportMu serializes frame transitions with the events announcing
	// them, so a finished event is never published ahead of a frame event.
	reportMu sync.Mutex
	finished bool
	// settled is closed once the finished event for the current round has
	// been published. A retry replaces it.
	settled chan struct{}
}

// New creates an Orchestrator. The generator and bus must be non-nil.
func New(gen Generator, bus *event.Bus, opts ...Option) *Orchestrator {
	if gen == nil {
		panic("orchestrator: Generator must not be nil")
	}
	if bus == nil {
		panic("orchestrator: event.Bus must not be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.dispatchTimeout <= 0 {
		cfg.dispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.newID == nil {
		cfg.newID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		gen:             gen,
		bus:             bus,
		logger:          cfg.logger.WithComponent("orchestrator"),
		sem:             newDispatchSemaphore(cfg.concurrency),
		dispatchTimeout: cfg.dispatchTimeout,
		maxAttempts:     max(cfg.maxAttempts, 0),
		newID:           cfg.newID,
		ctx:             ctx,
		cancel:          cancel,
		jobs:            make(map[string]*entry),
	}
}

// Submit validates the uploads, creates a job with one Pending frame per
// requested frame and starts dispatching. If either slot is empty it
// returns ErrMissingInput and no job is created.
func (o *Orchestrator) Submit(uploads UploadSource, opts options.Options) (*job.Job, error) {
	inputs, err := uploads.Snapshot()
	if err != nil {
		return nil, err
	}
	opts.FrameCount = options.ClampFrameCount(opts.FrameCount)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	j := job.New(o.newID(), inputs, opts)
	ctx, cancel := context.WithCancel(o.ctx)
	e := &entry{job: j, ctx: ctx, cancel: cancel, settled: make(chan struct{})}
	o.jobs[j.ID] = e
	o.mu.Unlock()

	o.logger.WithJob(j.ID).Info("job submitted",
		"frames", j.Len(),
		"aspect_ratio", string(opts.AspectRatio),
		"scene", string(opts.Scene))
	o.bus.Publish(event.NewJobSubmittedEvent(j.ID, j.Len(), string(opts.AspectRatio), string(opts.Scene), opts.Style))

	j.Start()
	for i := range j.Len() {
		o.dispatch(e, i)
	}
	return j, nil
}

// RetryFrame re-dispatches a single Failed frame. Any other state yields
// ErrInvalidState without touching the frame. Sibling frames are never
// affected.
func (o *Orchestrator) RetryFrame(jobID string, index int) error {
	e, err := o.entry(jobID)
	if err != nil {
		return err
	}
	if err := o.ctx.Err(); err != nil {
		return ErrClosed
	}
	e.reportMu.Lock()
	if err := e.job.Retry(index, o.maxAttempts); err != nil {
		e.reportMu.Unlock()
		return err
	}
	o.logger.WithJob(jobID).WithFrame(index).Info("frame retry requested")
	if e.finished {
		e.finished = false
		e.settled = make(chan struct{})
	}
	o.reportLocked(e)
	e.reportMu.Unlock()

	o.dispatch(e, index)
	return nil
}

// Cancel stops a job cooperatively. Pending frames become Cancelled and are
// never dispatched; in-flight frames run to completion but their results
// are discarded. Cancelling a job with nothing pending or in flight is a
// no-op.
func (o *Orchestrator) Cancel(jobID string) error {
	e, err := o.entry(jobID)
	if err != nil {
		return err
	}
	o.cancelEntry(e)
	return nil
}

func (o *Orchestrator) cancelEntry(e *entry) {
	e.reportMu.Lock()
	defer e.reportMu.Unlock()

	skipped, ok := e.job.Cancel()
	if !ok {
		return
	}
	e.cancel()

	o.logger.WithJob(e.job.ID).Info("job cancelled", "skipped", len(skipped))
	for _, i := range skipped {
		o.bus.Publish(event.NewFrameCancelledEvent(e.job.ID, i))
	}
	o.bus.Publish(event.NewJobCancelledEvent(e.job.ID, len(skipped)))
	o.reportLocked(e)
}

// Discard cancels a job and forgets it. Subscribers are told to drop any
// results they hold for it.
func (o *Orchestrator) Discard(jobID string) error {
	e, err := o.entry(jobID)
	if err != nil {
		return err
	}
	o.cancelEntry(e)
	e.cancel()

	o.mu.Lock()
	delete(o.jobs, jobID)
	o.mu.Unlock()

	o.logger.WithJob(jobID).Info("job discarded")
	o.bus.Publish(event.NewJobDiscardedEvent(jobID))
	return nil
}

// Job returns the job with the given ID.
func (o *Orchestrator) Job(jobID string) (*job.Job, error) {
	e, err := o.entry(jobID)
	if err != nil {
		return nil, err
	}
	return e.job, nil
}

// Jobs returns the IDs of all known jobs.
func (o *Orchestrator) Jobs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.jobs))
	for id := range o.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Progress returns terminal frames over total frames times 100.
func (o *Orchestrator) Progress(jobID string) (float64, error) {
	e, err := o.entry(jobID)
	if err != nil {
		return 0, err
	}
	return e.job.Progress(), nil
}

// Wait blocks until no frame of the job is pending or in flight and the
// job's finished event has been published, so every frame event of the
// round has reached subscribers when it returns.
func (o *Orchestrator) Wait(ctx context.Context, jobID string) (job.Status, error) {
	e, err := o.entry(jobID)
	if err != nil {
		return "", err
	}
	for {
		e.reportMu.Lock()
		settled := e.settled
		e.reportMu.Unlock()

		select {
		case <-settled:
			if status := e.job.Status(); status.IsTerminal() {
				return status, nil
			}
			// Reopened by a retry; wait for the next round.
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// SetLimit changes the dispatch concurrency bound at runtime.
func (o *Orchestrator) SetLimit(n int) {
	o.sem.SetLimit(n)
	o.logger.Info("dispatch limit changed", "limit", o.sem.Limit())
}

// Limit returns the current dispatch concurrency bound.
func (o *Orchestrator) Limit() int {
	return o.sem.Limit()
}

// InFlight returns the number of provider calls currently outstanding.
func (o *Orchestrator) InFlight() int {
	return o.sem.Acquired()
}

// Close cancels every job, aborts outstanding provider calls and waits for
// all dispatch goroutines to exit. It is safe to call multiple times.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	entries := make([]*entry, 0, len(o.jobs))
	for _, e := range o.jobs {
		entries = append(entries, e)
	}
	o.mu.Unlock()

	for _, e := range entries {
		o.cancelEntry(e)
	}
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) entry(jobID string) (*entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	e, ok := o.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return e, nil
}

// dispatch runs one frame in its own goroutine. Nothing new starts once
// Close has begun; Close cancels any frame left pending.
func (o *Orchestrator) dispatch(e *entry, index int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	o.wg.Go(func() {
		o.runFrame(e, index)
	})
}

func (o *Orchestrator) runFrame(e *entry, index int) {
	j := e.job
	log := o.logger.WithJob(j.ID).WithFrame(index)

	if err := o.sem.Acquire(e.ctx); err != nil {
		// Cancelled or discarded while queued; Cancel already moved the
		// frame out of Pending.
		return
	}
	defer o.sem.Release()

	attempt, err := j.BeginDispatch(index)
	if err != nil {
		return
	}
	log = log.With("attempt", attempt)
	o.bus.Publish(event.NewFrameDispatchedEvent(j.ID, index, attempt))
	log.Debug("frame dispatched")

	req := job.FrameRequest{
		JobID:     j.ID,
		Index:     index,
		Attempt:   attempt,
		Inputs:    j.Inputs(),
		Options:   j.Options,
		Prompt:    prompt.Build(j.Options, index),
		Seed:      prompt.Seed(j.ID, index, attempt),
		RequestID: uuid.NewString(),
	}

	ctx, cancel := context.WithTimeout(o.ctx, o.dispatchTimeout)
	started := time.Now()
	output, genErr := o.gen.Generate(ctx, req)
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	cancel()
	log = log.With("duration_ms", time.Since(started).Milliseconds())

	e.reportMu.Lock()
	defer e.reportMu.Unlock()

	switch {
	case genErr == nil && !output.Empty():
		o.recordSuccess(e, index, attempt, output, log)
	case o.ctx.Err() != nil && !timedOut:
		// Shutting down: the call was aborted, not failed.
		if err := j.Abandon(index, attempt); err == nil {
			o.bus.Publish(event.NewFrameCancelledEvent(j.ID, index))
		}
		log.Info("frame abandoned on shutdown")
	case timedOut:
		o.recordFailure(e, index, attempt, job.Timeout,
			fmt.Sprintf("no response within %s", o.dispatchTimeout), log)
	case genErr == nil:
		o.recordFailure(e, index, attempt, job.DispatchFailure, "provider returned an empty image", log)
	default:
		o.recordFailure(e, index, attempt, job.DispatchFailure, genErr.Error(), log)
	}

	o.reportLocked(e)
}

func (o *Orchestrator) recordSuccess(e *entry, index, attempt int, output media.Image, log *logging.Logger) {
	state, err := e.job.Succeed(index, attempt, output)
	if err != nil {
		log.Error("failed to record frame success", "error", err)
		return
	}
	if state == job.FrameCancelled {
		log.Info("frame result discarded after cancel")
		o.bus.Publish(event.NewFrameCancelledEvent(e.job.ID, index))
		return
	}
	log.Info("frame succeeded", "bytes", len(output.Data))
	o.bus.Publish(event.NewFrameSucceededEvent(e.job.ID, index, attempt, output.MediaType, output.Data))
}

func (o *Orchestrator) recordFailure(e *entry, index, attempt int, kind job.FailureKind, reason string, log *logging.Logger) {
	state, err := e.job.Fail(index, attempt, kind, reason)
	if err != nil {
		log.Error("failed to record frame failure", "error", err)
		return
	}
	if state == job.FrameCancelled {
		log.Info("frame failure discarded after cancel")
		o.bus.Publish(event.NewFrameCancelledEvent(e.job.ID, index))
		return
	}
	log.Warn("frame failed", "kind", string(kind), "reason", reason)
	o.bus.Publish(event.NewFrameFailedEvent(e.job.ID, index, attempt, string(kind), reason))
}

// reportLocked publishes the job's progress and, the first time the job
// becomes terminal after submission or a retry, a finished event. The
// caller holds e.reportMu.
func (o *Orchestrator) reportLocked(e *entry) {
	snap := e.job.Snapshot()
	o.bus.Publish(event.NewJobProgressEvent(snap.ID, snap.Counts.Terminal(), snap.Counts.Total, snap.Progress, string(snap.Status)))

	if !snap.Status.IsTerminal() || e.finished {
		return
	}
	e.finished = true
	o.logger.WithJob(snap.ID).Info("job finished",
		"status", string(snap.Status),
		"succeeded", snap.Counts.Succeeded,
		"failed", snap.Counts.Failed,
		"cancelled", snap.Counts.Cancelled)
	o.bus.Publish(event.NewJobFinishedEvent(snap.ID, string(snap.Status), snap.Counts.Succeeded, snap.Counts.Failed, snap.Counts.Cancelled))
	close(e.settled)
}
