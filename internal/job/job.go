package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/media"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

// Sentinel errors returned by job transitions.
var (
	ErrInvalidState  = errors.New("invalid frame state")
	ErrFrameNotFound = errors.New("frame not found")
	ErrRetryLimit    = errors.New("retry limit reached")
	ErrEmptyOutput   = errors.New("empty output")
)

// Job is one submission: a fixed number of frames sharing the same inputs
// and options. The frame slice is sized at creation and never resized.
// All methods are safe for concurrent use.
type Job struct {
	ID        string
	CreatedAt time.Time
	Options   options.Options

	inputs upload.Inputs

	mu        sync.RWMutex
	frames    []FrameResult
	started   bool
	cancelled bool
	changed   chan struct{}
}

// New creates a job with one Pending frame per requested frame. The frame
// count is clamped to the supported range.
func New(id string, inputs upload.Inputs, opts options.Options) *Job {
	opts.FrameCount = options.ClampFrameCount(opts.FrameCount)
	now := time.Now()

	frames := make([]FrameResult, opts.FrameCount)
	for i := range frames {
		frames[i] = FrameResult{Index: i, State: FramePending, UpdatedAt: now}
	}

	return &Job{
		ID:        id,
		CreatedAt: now,
		Options:   opts,
		inputs:    inputs,
		frames:    frames,
		changed:   make(chan struct{}),
	}
}

// Inputs returns the source images the job was created from.
func (j *Job) Inputs() upload.Inputs {
	return j.inputs
}

// Len returns the number of frames.
func (j *Job) Len() int {
	return len(j.frames)
}

// Frame returns a copy of the frame at index.
func (j *Job) Frame(index int) (FrameResult, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if index < 0 || index >= len(j.frames) {
		return FrameResult{}, fmt.Errorf("%w: job %s has no frame %d", ErrFrameNotFound, j.ID, index)
	}
	return j.frames[index].clone(), nil
}

// Frames returns copies of every frame ordered by index.
func (j *Job) Frames() []FrameResult {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]FrameResult, len(j.frames))
	for i, f := range j.frames {
		out[i] = f.clone()
	}
	return out
}

// Counts tallies frames by state.
func (j *Job) Counts() Counts {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.countsLocked()
}

func (j *Job) countsLocked() Counts {
	c := Counts{Total: len(j.frames)}
	for _, f := range j.frames {
		switch f.State {
		case FramePending:
			c.Pending++
		case FrameInFlight:
			c.InFlight++
		case FrameSucceeded:
			c.Succeeded++
		case FrameFailed:
			c.Failed++
		case FrameCancelled:
			c.Cancelled++
		}
	}
	return c
}

// Status derives the aggregate job status from its frames.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.statusLocked()
}

func (j *Job) statusLocked() Status {
	if !j.started {
		return StatusIdle
	}
	c := j.countsLocked()
	switch {
	case c.Pending > 0 || c.InFlight > 0:
		return StatusRunning
	case j.cancelled:
		return StatusCancelled
	case c.Succeeded > 0:
		return StatusCompleted
	default:
		return StatusAllFailed
	}
}

// Progress returns terminal frames over total frames times 100.
func (j *Job) Progress() float64 {
	return j.Counts().Percent()
}

// Cancelled reports whether Cancel has taken effect.
func (j *Job) Cancelled() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.cancelled
}

// Snapshot returns a consistent view of the job.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	frames := make([]FrameResult, len(j.frames))
	for i, f := range j.frames {
		frames[i] = f.clone()
	}
	c := j.countsLocked()
	return Snapshot{
		ID:        j.ID,
		CreatedAt: j.CreatedAt,
		Options:   j.Options,
		Status:    j.statusLocked(),
		Counts:    c,
		Progress:  c.Percent(),
		Frames:    frames,
	}
}

// Changed returns a channel that is closed on the next state change.
func (j *Job) Changed() <-chan struct{} {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.changed
}

// Wait blocks until no frame is pending or in flight, or ctx is done.
func (j *Job) Wait(ctx context.Context) (Status, error) {
	for {
		j.mu.RLock()
		status := j.statusLocked()
		ch := j.changed
		j.mu.RUnlock()

		if status.IsTerminal() {
			return status, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return status, ctx.Err()
		}
	}
}

// notifyLocked wakes every Wait and Changed receiver. Callers hold mu.
func (j *Job) notifyLocked() {
	close(j.changed)
	j.changed = make(chan struct{})
}

// Start marks dispatch as begun so the job leaves StatusIdle.
func (j *Job) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.notifyLocked()
}

// BeginDispatch moves a Pending frame to InFlight and returns the new
// attempt number. The attempt counter increments on every dispatch.
func (j *Job) BeginDispatch(index int) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.frameLocked(index)
	if err != nil {
		return 0, err
	}
	if f.State != FramePending {
		return 0, fmt.Errorf("%w: cannot dispatch frame %d in state %s", ErrInvalidState, index, f.State)
	}

	j.started = true
	f.State = FrameInFlight
	f.Attempt++
	f.UpdatedAt = time.Now()
	j.notifyLocked()
	return f.Attempt, nil
}

// Succeed records the output of an InFlight frame. If the job was
// cancelled while the call was outstanding, the output is discarded and the
// frame becomes Cancelled; the returned state tells the caller which
// happened.
func (j *Job) Succeed(index, attempt int, output media.Image) (FrameState, error) {
	if output.Empty() {
		return "", fmt.Errorf("%w: frame %d attempt %d", ErrEmptyOutput, index, attempt)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.inFlightLocked(index, attempt)
	if err != nil {
		return "", err
	}

	f.UpdatedAt = time.Now()
	if j.cancelled {
		f.State = FrameCancelled
	} else {
		out := output.Clone()
		f.State = FrameSucceeded
		f.Output = &out
		f.Error = nil
	}
	j.notifyLocked()
	return f.State, nil
}

// Fail records the failure of an InFlight frame. As with Succeed, a failure
// that arrives after cancellation turns the frame Cancelled instead.
func (j *Job) Fail(index, attempt int, kind FailureKind, reason string) (FrameState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.inFlightLocked(index, attempt)
	if err != nil {
		return "", err
	}

	f.UpdatedAt = time.Now()
	if j.cancelled {
		f.State = FrameCancelled
	} else {
		f.State = FrameFailed
		f.Error = &FrameError{Kind: kind, Reason: reason}
		f.Output = nil
	}
	j.notifyLocked()
	return f.State, nil
}

// Abandon turns an InFlight frame Cancelled without recording a result.
// It is used when the dispatcher shuts down mid-call.
func (j *Job) Abandon(index, attempt int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.inFlightLocked(index, attempt)
	if err != nil {
		return err
	}
	f.State = FrameCancelled
	f.UpdatedAt = time.Now()
	j.notifyLocked()
	return nil
}

// Retry returns a Failed frame to Pending. Any other state yields
// ErrInvalidState and leaves the frame untouched. maxAttempts bounds the
// total number of dispatches per frame; 0 means no bound.
func (j *Job) Retry(index, maxAttempts int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.frameLocked(index)
	if err != nil {
		return err
	}
	if j.cancelled {
		return fmt.Errorf("%w: job %s is cancelled", ErrInvalidState, j.ID)
	}
	if f.State != FrameFailed {
		return fmt.Errorf("%w: cannot retry frame %d in state %s", ErrInvalidState, index, f.State)
	}
	if maxAttempts > 0 && f.Attempt >= maxAttempts {
		return fmt.Errorf("%w: frame %d used %d of %d attempts", ErrRetryLimit, index, f.Attempt, maxAttempts)
	}

	f.State = FramePending
	f.Error = nil
	f.UpdatedAt = time.Now()
	j.notifyLocked()
	return nil
}

// Cancel marks the job cancelled and moves every Pending frame to
// Cancelled. InFlight frames keep running; their results are discarded when
// they arrive. It returns the indices that were cancelled and whether this
// call cancelled the job. Cancelling a job with nothing pending or in flight,
// or one already cancelled, is a no-op.
func (j *Job) Cancel() ([]int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	c := j.countsLocked()
	if j.cancelled || c.Pending+c.InFlight == 0 {
		return nil, false
	}

	j.cancelled = true
	j.started = true
	now := time.Now()
	var skipped []int
	for i := range j.frames {
		f := &j.frames[i]
		if f.State == FramePending {
			f.State = FrameCancelled
			f.UpdatedAt = now
			skipped = append(skipped, i)
		}
	}
	j.notifyLocked()
	return skipped, true
}

func (j *Job) frameLocked(index int) (*FrameResult, error) {
	if index < 0 || index >= len(j.frames) {
		return nil, fmt.Errorf("%w: job %s has no frame %d", ErrFrameNotFound, j.ID, index)
	}
	return &j.frames[index], nil
}

func (j *Job) inFlightLocked(index, attempt int) (*FrameResult, error) {
	f, err := j.frameLocked(index)
	if err != nil {
		return nil, err
	}
	if f.State != FrameInFlight || f.Attempt != attempt {
		return nil, fmt.Errorf("%w: frame %d is %s at attempt %d, not in flight at attempt %d",
			ErrInvalidState, index, f.State, f.Attempt, attempt)
	}
	return f, nil
}
