package mock

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/options"
)

func request(index int, seed int64) job.FrameRequest {
	return job.FrameRequest{
		JobID:   "job-1",
		Index:   index,
		Attempt: 1,
		Seed:    seed,
		Options: options.Options{FrameCount: 4, AspectRatio: options.AspectPortrait, Scene: options.SceneCity},
	}
}

func TestGenerate_RendersPNG(t *testing.T) {
	g := New(0, 0)
	img, err := g.Generate(context.Background(), request(0, 7))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.MediaType != "image/png" {
		t.Errorf("MediaType = %q", img.MediaType)
	}
	decoded, err := png.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 48 || b.Dy() != 64 {
		t.Errorf("size = %dx%d, want 48x64 for 3:4", b.Dx(), b.Dy())
	}
}

func TestGenerate_DeterministicPerSeed(t *testing.T) {
	g := New(0, 0)
	a, _ := g.Generate(context.Background(), request(1, 99))
	b, _ := g.Generate(context.Background(), request(1, 99))
	c, _ := g.Generate(context.Background(), request(1, 100))
	if !bytes.Equal(a.Data, b.Data) {
		t.Error("same seed produced different output")
	}
	if bytes.Equal(a.Data, c.Data) {
		t.Error("different seeds produced identical output")
	}
}

func TestGenerate_FailureRate(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		wantFail bool
	}{
		{"never", 0, false},
		{"always", 1, true},
		{"clamped above one", 5, true},
		{"clamped below zero", -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(0, tt.rate).Generate(context.Background(), request(0, 1))
			if got := errors.Is(err, ErrSimulatedFailure); got != tt.wantFail {
				t.Errorf("failed = %v, want %v (err %v)", got, tt.wantFail, err)
			}
		})
	}
}

func TestGenerate_HonorsContext(t *testing.T) {
	g := New(time.Hour, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, request(0, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}
