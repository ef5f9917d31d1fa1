// Package store persists job snapshots, frame outputs and favorite marks
// outside the process. Redis is the production backend; Memory serves tests
// and single-process runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/selfie2snap/selfie2snap/internal/config"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

// ErrNotFound is returned when a job or frame output is not stored.
var ErrNotFound = errors.New("not found")

// Store is the external persistence collaborator.
type Store interface {
	SaveSnapshot(ctx context.Context, snap job.Snapshot) error
	LoadSnapshot(ctx context.Context, jobID string) (job.Snapshot, error)

	SaveOutput(ctx context.Context, jobID string, index int, img media.Image) error
	LoadOutput(ctx context.Context, jobID string, index int) (media.Image, error)

	AddFavorite(ctx context.Context, jobID string, index int) error
	RemoveFavorite(ctx context.Context, jobID string, index int) error
	ListFavorites(ctx context.Context, jobID string) ([]int, error)

	// Delete forgets everything stored for a job.
	Delete(ctx context.Context, jobID string) error
	Close() error
}

// Open builds the configured backend. For Redis it verifies the connection
// with a PING before returning.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client, cfg.KeyPrefix, cfg.TTL()), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
