// Package session ties one user's upload slots, option state and
// preferences to the job they are currently looking at. The orchestrator
// only ever reads a session's state through snapshots.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/orchestrator"
	"github.com/selfie2snap/selfie2snap/internal/settings"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

// ErrNoJob is returned when a session has not submitted anything yet.
var ErrNoJob = errors.New("no job submitted")

// Jobs is the orchestrator surface a session needs.
type Jobs interface {
	Submit(uploads orchestrator.UploadSource, opts options.Options) (*job.Job, error)
	Discard(jobID string) error
}

// Session is one interaction: two upload slots, the option panel and the
// job produced from them. It is safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	Uploads  *upload.Store
	Options  *options.State
	Settings *settings.Settings

	jobs   Jobs
	logger *logging.Logger

	mu       sync.Mutex
	current  *job.Job
	lastSeen time.Time
}

// New creates a Session. bus and prefs may be nil.
func New(id string, jobs Jobs, bus *event.Bus, defaults options.Options, prefs *settings.Settings) *Session {
	if jobs == nil {
		panic("session: Jobs must not be nil")
	}
	var uploadOpts []upload.Option
	uploadOpts = append(uploadOpts, upload.WithSessionID(id))
	if bus != nil {
		uploadOpts = append(uploadOpts, upload.WithBus(bus))
	}
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		Uploads:   upload.NewStore(uploadOpts...),
		Options:   options.NewState(defaults),
		Settings:  prefs,
		jobs:      jobs,
		logger:    logging.NopLogger(),
		lastSeen:  now,
	}
}

// Submit starts a job from the current slots and options. On success the
// previous job, if any, is discarded ("Try Another"); a failed discard is
// logged and does not undo the new job. On failure the previous job is kept.
func (s *Session) Submit() (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	j, err := s.jobs.Submit(s.Uploads, s.Options.Snapshot())
	if err != nil {
		return nil, err
	}
	if prev := s.current; prev != nil {
		if err := s.jobs.Discard(prev.ID); err != nil && !errors.Is(err, orchestrator.ErrJobNotFound) {
			s.logger.WithJob(prev.ID).Warn("failed to discard previous job", "error", err)
		}
	}
	s.current = j
	return j, nil
}

// Current returns the job last submitted by this session.
func (s *Session) Current() (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoJob
	}
	return s.current, nil
}

// Owns reports whether jobID is this session's current job.
func (s *Session) Owns(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.ID == jobID
}

// Reset discards the current job and clears both slots. Options and
// preferences are kept.
func (s *Session) Reset() error {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.lastSeen = time.Now()
	s.mu.Unlock()

	s.Uploads.Clear()
	if prev == nil {
		return nil
	}
	if err := s.jobs.Discard(prev.ID); err != nil && !errors.Is(err, orchestrator.ErrJobNotFound) {
		return fmt.Errorf("failed to discard job %s: %w", prev.ID, err)
	}
	return nil
}

// Touch records activity for idle expiry.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the time of the last activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
