package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

// Redis stores each job under three keys:
//
//	<prefix>:job:<id>            snapshot JSON
//	<prefix>:job:<id>:outputs    hash of "<index>" -> bytes, "<index>:type" -> media type
//	<prefix>:job:<id>:favorites  set of frame indices
//
// Every write refreshes the TTL of the key it touches.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client. A zero ttl keeps keys forever.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "selfie2snap"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) snapshotKey(jobID string) string  { return r.prefix + ":job:" + jobID }
func (r *Redis) outputsKey(jobID string) string   { return r.prefix + ":job:" + jobID + ":outputs" }
func (r *Redis) favoritesKey(jobID string) string { return r.prefix + ":job:" + jobID + ":favorites" }

func (r *Redis) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
}

// SaveSnapshot writes the job snapshot as JSON. Output bytes are not part of
// the snapshot; use SaveOutput.
func (r *Redis) SaveSnapshot(ctx context.Context, snap job.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.snapshotKey(snap.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// LoadSnapshot reads a job snapshot.
func (r *Redis) LoadSnapshot(ctx context.Context, jobID string) (job.Snapshot, error) {
	data, err := r.client.Get(ctx, r.snapshotKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return job.Snapshot{}, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if err != nil {
		return job.Snapshot{}, fmt.Errorf("failed to load snapshot %s: %w", jobID, err)
	}

	var snap job.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return job.Snapshot{}, fmt.Errorf("failed to decode snapshot %s: %w", jobID, err)
	}
	return snap, nil
}

// SaveOutput stores a frame's image bytes.
func (r *Redis) SaveOutput(ctx context.Context, jobID string, index int, img media.Image) error {
	key := r.outputsKey(jobID)
	field := strconv.Itoa(index)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, img.Data, field+":type", img.MediaType)
		r.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save output %s/%d: %w", jobID, index, err)
	}
	return nil
}

// LoadOutput reads a frame's image bytes.
func (r *Redis) LoadOutput(ctx context.Context, jobID string, index int) (media.Image, error) {
	field := strconv.Itoa(index)
	vals, err := r.client.HMGet(ctx, r.outputsKey(jobID), field, field+":type").Result()
	if err != nil {
		return media.Image{}, fmt.Errorf("failed to load output %s/%d: %w", jobID, index, err)
	}
	data, ok := vals[0].(string)
	if !ok || data == "" {
		return media.Image{}, fmt.Errorf("%w: job %s frame %d", ErrNotFound, jobID, index)
	}
	mediaType, _ := vals[1].(string)
	return media.Image{Data: []byte(data), MediaType: mediaType}, nil
}

// AddFavorite marks a frame.
func (r *Redis) AddFavorite(ctx context.Context, jobID string, index int) error {
	key := r.favoritesKey(jobID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, index)
		r.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add favorite %s/%d: %w", jobID, index, err)
	}
	return nil
}

// RemoveFavorite unmarks a frame.
func (r *Redis) RemoveFavorite(ctx context.Context, jobID string, index int) error {
	if err := r.client.SRem(ctx, r.favoritesKey(jobID), index).Err(); err != nil {
		return fmt.Errorf("failed to remove favorite %s/%d: %w", jobID, index, err)
	}
	return nil
}

// ListFavorites returns the marked frame indices in ascending order.
func (r *Redis) ListFavorites(ctx context.Context, jobID string) ([]int, error) {
	members, err := r.client.SMembers(ctx, r.favoritesKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites %s: %w", jobID, err)
	}
	out := make([]int, 0, len(members))
	for _, m := range members {
		i, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		out = append(out, i)
	}
	slices.Sort(out)
	return out, nil
}

// Delete removes all keys of a job.
func (r *Redis) Delete(ctx context.Context, jobID string) error {
	err := r.client.Del(ctx, r.snapshotKey(jobID), r.outputsKey(jobID), r.favoritesKey(jobID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
