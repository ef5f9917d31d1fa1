package event

import (
	"encoding/json"
	"time"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier, e.g. "frame.succeeded".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// JobEvent is implemented by events scoped to a single generation job.
type JobEvent interface {
	Event
	JobRef() string
}

// Event type identifiers.
const (
	TypeJobSubmitted       = "job.submitted"
	TypeJobProgress        = "job.progress"
	TypeJobFinished        = "job.finished"
	TypeJobCancelled       = "job.cancelled"
	TypeJobDiscarded       = "job.discarded"
	TypeFrameDispatched    = "frame.dispatched"
	TypeFrameSucceeded     = "frame.succeeded"
	TypeFrameFailed        = "frame.failed"
	TypeFrameCancelled     = "frame.cancelled"
	TypeUploadChanged      = "upload.changed"
	TypePreferencesChanged = "preferences.changed"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Job Events
// -----------------------------------------------------------------------------

// JobSubmittedEvent is emitted when a job is created and dispatch begins.
type JobSubmittedEvent struct {
	baseEvent
	JobID       string `json:"job_id"`
	FrameCount  int    `json:"frame_count"`
	AspectRatio string `json:"aspect_ratio"`
	Scene       string `json:"scene"`
	Style       string `json:"style,omitempty"`
}

func (e JobSubmittedEvent) JobRef() string { return e.JobID }

// NewJobSubmittedEvent creates a JobSubmittedEvent.
func NewJobSubmittedEvent(jobID string, frameCount int, aspectRatio, scene, style string) JobSubmittedEvent {
	return JobSubmittedEvent{
		baseEvent:   newBaseEvent(TypeJobSubmitted),
		JobID:       jobID,
		FrameCount:  frameCount,
		AspectRatio: aspectRatio,
		Scene:       scene,
		Style:       style,
	}
}

// JobProgressEvent is emitted whenever a frame reaches or leaves a terminal
// state. Percent is terminal frames over total frames times 100.
type JobProgressEvent struct {
	baseEvent
	JobID    string  `json:"job_id"`
	Terminal int     `json:"terminal"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
	Status   string  `json:"status"`
}

func (e JobProgressEvent) JobRef() string { return e.JobID }

// NewJobProgressEvent creates a JobProgressEvent.
func NewJobProgressEvent(jobID string, terminal, total int, percent float64, status string) JobProgressEvent {
	return JobProgressEvent{
		baseEvent: newBaseEvent(TypeJobProgress),
		JobID:     jobID,
		Terminal:  terminal,
		Total:     total,
		Percent:   percent,
		Status:    status,
	}
}

// JobFinishedEvent is emitted when no frame of a job is pending or in flight.
// A retry can reopen the job, so it may be emitted more than once.
type JobFinishedEvent struct {
	baseEvent
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

func (e JobFinishedEvent) JobRef() string { return e.JobID }

// NewJobFinishedEvent creates a JobFinishedEvent.
func NewJobFinishedEvent(jobID, status string, succeeded, failed, cancelled int) JobFinishedEvent {
	return JobFinishedEvent{
		baseEvent: newBaseEvent(TypeJobFinished),
		JobID:     jobID,
		Status:    status,
		Succeeded: succeeded,
		Failed:    failed,
		Cancelled: cancelled,
	}
}

// JobCancelledEvent is emitted when a caller cancels a job.
type JobCancelledEvent struct {
	baseEvent
	JobID string `json:"job_id"`
	// Skipped is the number of pending frames that will never be dispatched.
	Skipped int `json:"skipped"`
}

func (e JobCancelledEvent) JobRef() string { return e.JobID }

// NewJobCancelledEvent creates a JobCancelledEvent.
func NewJobCancelledEvent(jobID string, skipped int) JobCancelledEvent {
	return JobCancelledEvent{
		baseEvent: newBaseEvent(TypeJobCancelled),
		JobID:     jobID,
		Skipped:   skipped,
	}
}

// JobDiscardedEvent is emitted when a job is replaced or reset and its
// results should be forgotten by subscribers.
type JobDiscardedEvent struct {
	baseEvent
	JobID string `json:"job_id"`
}

func (e JobDiscardedEvent) JobRef() string { return e.JobID }

// NewJobDiscardedEvent creates a JobDiscardedEvent.
func NewJobDiscardedEvent(jobID string) JobDiscardedEvent {
	return JobDiscardedEvent{
		baseEvent: newBaseEvent(TypeJobDiscarded),
		JobID:     jobID,
	}
}

// -----------------------------------------------------------------------------
// Frame Events
// -----------------------------------------------------------------------------

// FrameDispatchedEvent is emitted when a frame moves to in-flight.
type FrameDispatchedEvent struct {
	baseEvent
	JobID   string `json:"job_id"`
	Index   int    `json:"index"`
	Attempt int    `json:"attempt"`
}

func (e FrameDispatchedEvent) JobRef() string { return e.JobID }

// NewFrameDispatchedEvent creates a FrameDispatchedEvent.
func NewFrameDispatchedEvent(jobID string, index, attempt int) FrameDispatchedEvent {
	return FrameDispatchedEvent{
		baseEvent: newBaseEvent(TypeFrameDispatched),
		JobID:     jobID,
		Index:     index,
		Attempt:   attempt,
	}
}

// FrameSucceededEvent is emitted the moment a frame's output is available.
// The output bytes travel with the event for in-process subscribers but are
// left out of the JSON form.
type FrameSucceededEvent struct {
	baseEvent
	JobID     string `json:"job_id"`
	Index     int    `json:"index"`
	Attempt   int    `json:"attempt"`
	MediaType string `json:"media_type"`
	Size      int    `json:"size"`
	Output    []byte `json:"-"`
}

func (e FrameSucceededEvent) JobRef() string { return e.JobID }

// NewFrameSucceededEvent creates a FrameSucceededEvent.
func NewFrameSucceededEvent(jobID string, index, attempt int, mediaType string, output []byte) FrameSucceededEvent {
	return FrameSucceededEvent{
		baseEvent: newBaseEvent(TypeFrameSucceeded),
		JobID:     jobID,
		Index:     index,
		Attempt:   attempt,
		MediaType: mediaType,
		Size:      len(output),
		Output:    output,
	}
}

// FrameFailedEvent is emitted when a dispatch fails or times out.
type FrameFailedEvent struct {
	baseEvent
	JobID   string `json:"job_id"`
	Index   int    `json:"index"`
	Attempt int    `json:"attempt"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

func (e FrameFailedEvent) JobRef() string { return e.JobID }

// NewFrameFailedEvent creates a FrameFailedEvent.
func NewFrameFailedEvent(jobID string, index, attempt int, kind, reason string) FrameFailedEvent {
	return FrameFailedEvent{
		baseEvent: newBaseEvent(TypeFrameFailed),
		JobID:     jobID,
		Index:     index,
		Attempt:   attempt,
		Kind:      kind,
		Reason:    reason,
	}
}

// FrameCancelledEvent is emitted when a frame is cancelled, either before
// dispatch or when its in-flight result is discarded.
type FrameCancelledEvent struct {
	baseEvent
	JobID string `json:"job_id"`
	Index int    `json:"index"`
}

func (e FrameCancelledEvent) JobRef() string { return e.JobID }

// NewFrameCancelledEvent creates a FrameCancelledEvent.
func NewFrameCancelledEvent(jobID string, index int) FrameCancelledEvent {
	return FrameCancelledEvent{
		baseEvent: newBaseEvent(TypeFrameCancelled),
		JobID:     jobID,
		Index:     index,
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// UploadChangedEvent is emitted on every upload slot mutation. Ready is true
// once both slots hold an image, which is when submission becomes possible.
type UploadChangedEvent struct {
	baseEvent
	SessionID string `json:"session_id,omitempty"`
	Position  string `json:"position,omitempty"` // empty for swap
	Filled    bool   `json:"filled"`
	Ready     bool   `json:"ready"`
}

// NewUploadChangedEvent creates an UploadChangedEvent.
func NewUploadChangedEvent(sessionID, position string, filled, ready bool) UploadChangedEvent {
	return UploadChangedEvent{
		baseEvent: newBaseEvent(TypeUploadChanged),
		SessionID: sessionID,
		Position:  position,
		Filled:    filled,
		Ready:     ready,
	}
}

// PreferencesChangedEvent is emitted after preferences are persisted.
type PreferencesChangedEvent struct {
	baseEvent
	Theme         string `json:"theme"`
	CookieConsent string `json:"cookie_consent"`
}

// NewPreferencesChangedEvent creates a PreferencesChangedEvent.
func NewPreferencesChangedEvent(theme, cookieConsent string) PreferencesChangedEvent {
	return PreferencesChangedEvent{
		baseEvent:     newBaseEvent(TypePreferencesChanged),
		Theme:         theme,
		CookieConsent: cookieConsent,
	}
}

// -----------------------------------------------------------------------------
// Encoding
// -----------------------------------------------------------------------------

// envelope is the wire form shared by SSE, WebSocket and AMQP consumers.
type envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      Event     `json:"data"`
}

// Marshal encodes an event as {"type", "timestamp", "data"} JSON.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(envelope{
		Type:      e.EventType(),
		Timestamp: e.Timestamp(),
		Data:      e,
	})
}
