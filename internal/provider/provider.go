// Package provider builds the configured image generation backend.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/config"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/media"
	"github.com/selfie2snap/selfie2snap/internal/orchestrator"
	"github.com/selfie2snap/selfie2snap/internal/provider/ark"
	"github.com/selfie2snap/selfie2snap/internal/provider/gemini"
	"github.com/selfie2snap/selfie2snap/internal/provider/mock"
)

// ErrUnknownBackend is returned for a backend name outside mock|ark|gemini.
var ErrUnknownBackend = errors.New("unknown provider backend")

// New returns the Generator selected by cfg.Backend, wrapped with dispatch
// logging.
func New(ctx context.Context, cfg config.ProviderConfig, logger *logging.Logger) (orchestrator.Generator, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	var gen orchestrator.Generator
	switch cfg.Backend {
	case "", "mock":
		gen = mock.New(time.Duration(cfg.MockLatencyMs)*time.Millisecond, cfg.MockFailureRate)
	case "ark":
		g, err := ark.New(cfg.APIKey(), cfg.Model, cfg.Watermark)
		if err != nil {
			return nil, err
		}
		gen = g
	case "gemini":
		g, err := gemini.New(ctx, cfg.APIKey(), cfg.Model)
		if err != nil {
			return nil, err
		}
		gen = g
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}

	backend := cfg.Backend
	if backend == "" {
		backend = "mock"
	}
	return &logged{next: gen, logger: logger.WithComponent("provider").With("backend", backend)}, nil
}

// logged records each provider call with its outcome and latency.
type logged struct {
	next   orchestrator.Generator
	logger *logging.Logger
}

func (l *logged) Generate(ctx context.Context, req job.FrameRequest) (media.Image, error) {
	start := time.Now()
	img, err := l.next.Generate(ctx, req)
	log := l.logger.WithJob(req.JobID).WithFrame(req.Index).With(
		"attempt", req.Attempt,
		"request_id", req.RequestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		log.Debug("provider call failed", "error", err)
	} else {
		log.Debug("provider call returned", "bytes", len(img.Data))
	}
	return img, err
}
