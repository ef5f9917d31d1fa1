// Package mock is an offline image provider. It renders a small solid PNG
// per dispatch after a configurable latency and fails a configurable share
// of dispatches, deterministically per seed.
package mock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

// ErrSimulatedFailure is returned for dispatches picked to fail.
var ErrSimulatedFailure = errors.New("simulated provider failure")

// Generator is the mock provider.
type Generator struct {
	latency     time.Duration
	failureRate float64
	scale       int
}

// New creates a mock Generator. failureRate is clamped into [0, 1].
func New(latency time.Duration, failureRate float64) *Generator {
	return &Generator{
		latency:     max(latency, 0),
		failureRate: min(max(failureRate, 0), 1),
		scale:       16,
	}
}

// Generate waits for the configured latency, then returns a PNG whose color
// is derived from the request seed.
func (g *Generator) Generate(ctx context.Context, req job.FrameRequest) (media.Image, error) {
	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return media.Image{}, ctx.Err()
		case <-timer.C:
		}
	}

	rng := rand.New(rand.NewPCG(uint64(req.Seed), uint64(req.Index)))
	if g.failureRate > 0 && rng.Float64() < g.failureRate {
		return media.Image{}, fmt.Errorf("%w: frame %d attempt %d", ErrSimulatedFailure, req.Index, req.Attempt)
	}

	w, h := req.Options.AspectRatio.Dimensions()
	data, err := render(w/g.scale, h/g.scale, color.RGBA{
		R: uint8(rng.IntN(256)),
		G: uint8(rng.IntN(256)),
		B: uint8(rng.IntN(256)),
		A: 255,
	})
	if err != nil {
		return media.Image{}, err
	}
	return media.Image{
		Data:      data,
		MediaType: "image/png",
		Name:      fmt.Sprintf("%s-%d.png", req.JobID, req.Index),
	}, nil
}

func render(w, h int, c color.Color) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
