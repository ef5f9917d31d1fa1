package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/selfie2snap/selfie2snap/internal/logging"
)

// Defaults used when an option is not supplied.
const (
	DefaultConcurrency     = 3
	DefaultDispatchTimeout = 60 * time.Second
)

// Option configures an Orchestrator.
type Option func(*config)

type config struct {
	concurrency     int
	dispatchTimeout time.Duration
	maxAttempts     int
	logger          *logging.Logger
	newID           func() string
}

func defaultConfig() *config {
	return &config{
		concurrency:     DefaultConcurrency,
		dispatchTimeout: DefaultDispatchTimeout,
		logger:          logging.NopLogger(),
		newID:           uuid.NewString,
	}
}

// WithConcurrency bounds simultaneous provider calls across all jobs.
// Zero means unlimited; negative values are treated as zero.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithDispatchTimeout bounds a single provider call. An expired call fails
// the frame with kind Timeout. A zero or negative value is replaced with
// the default (60s).
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.dispatchTimeout = d
	}
}

// WithMaxAttempts bounds dispatches per frame including retries.
// Zero means unlimited.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		c.maxAttempts = n
	}
}

// WithLogger sets the logger for the orchestrator.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithIDGenerator overrides how job IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(c *config) {
		c.newID = fn
	}
}
