package job

import (
	"fmt"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/media"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

// FrameState is the lifecycle state of one frame.
type FrameState string

const (
	// FramePending indicates the frame is waiting for a dispatch slot.
	FramePending FrameState = "pending"

	// FrameInFlight indicates a provider call for the frame is outstanding.
	FrameInFlight FrameState = "in_flight"

	// FrameSucceeded indicates the frame has an output image.
	FrameSucceeded FrameState = "succeeded"

	// FrameFailed indicates the last dispatch failed. An explicit retry
	// returns the frame to pending.
	FrameFailed FrameState = "failed"

	// FrameCancelled indicates the frame was never dispatched, or its
	// in-flight result was discarded, because the job was cancelled.
	FrameCancelled FrameState = "cancelled"
)

// String returns the string representation of the frame state.
func (s FrameState) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition happens without an
// explicit retry.
func (s FrameState) IsTerminal() bool {
	return s == FrameSucceeded || s == FrameFailed || s == FrameCancelled
}

// FailureKind classifies a frame failure.
type FailureKind string

const (
	// DispatchFailure means the provider returned an error or the call
	// failed in transport.
	DispatchFailure FailureKind = "dispatch_failure"

	// Timeout means the dispatch exceeded its deadline. It is retried the
	// same way as DispatchFailure.
	Timeout FailureKind = "timeout"
)

// FrameError is the failure recorded on a Failed frame.
type FrameError struct {
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// Error implements the error interface.
func (e *FrameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// FrameResult is the observable state of one frame. Output is set iff State
// is FrameSucceeded and Error is set iff State is FrameFailed.
type FrameResult struct {
	Index     int          `json:"index"`
	State     FrameState   `json:"state"`
	Output    *media.Image `json:"output,omitempty"`
	Error     *FrameError  `json:"error,omitempty"`
	Attempt   int          `json:"attempt"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// clone returns a copy that shares no mutable memory with r.
func (r FrameResult) clone() FrameResult {
	cp := r
	if r.Output != nil {
		out := r.Output.Clone()
		cp.Output = &out
	}
	if r.Error != nil {
		e := *r.Error
		cp.Error = &e
	}
	return cp
}

// FrameRequest is one unit of generation work handed to a provider. A new
// request is built for every dispatch, so a retry never reuses one.
type FrameRequest struct {
	JobID     string
	Index     int
	Attempt   int
	Inputs    upload.Inputs
	Options   options.Options
	Prompt    string
	Seed      int64
	RequestID string
}

// Status is the aggregate state of a job derived from its frames.
type Status string

const (
	// StatusIdle means no dispatch has started yet.
	StatusIdle Status = "idle"

	// StatusRunning means at least one frame is pending or in flight.
	StatusRunning Status = "running"

	// StatusCompleted means every frame is terminal and at least one
	// succeeded.
	StatusCompleted Status = "completed"

	// StatusAllFailed means every frame is terminal and none succeeded.
	StatusAllFailed Status = "all_failed"

	// StatusCancelled means the job was cancelled and nothing is in flight.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the job has nothing pending or in flight.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAllFailed || s == StatusCancelled
}

// Counts tallies frames by state.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Terminal returns the number of frames in a terminal state.
func (c Counts) Terminal() int {
	return c.Succeeded + c.Failed + c.Cancelled
}

// Percent returns terminal frames over total frames times 100.
func (c Counts) Percent() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Terminal()) / float64(c.Total) * 100
}

// Snapshot is a point-in-time, JSON-friendly view of a job.
type Snapshot struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Options   options.Options `json:"options"`
	Status    Status          `json:"status"`
	Counts    Counts          `json:"counts"`
	Progress  float64         `json:"progress"`
	Frames    []FrameResult   `json:"frames"`
}
