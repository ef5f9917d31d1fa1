package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

type memoryJob struct {
	snapshot  *job.Snapshot
	outputs   map[int]media.Image
	favorites map[int]struct{}
}

// Memory is an in-process Store. It never expires anything.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*memoryJob
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*memoryJob)}
}

func (m *Memory) jobLocked(jobID string) *memoryJob {
	mj, ok := m.jobs[jobID]
	if !ok {
		mj = &memoryJob{
			outputs:   make(map[int]media.Image),
			favorites: make(map[int]struct{}),
		}
		m.jobs[jobID] = mj
	}
	return mj
}

func (m *Memory) SaveSnapshot(_ context.Context, snap job.Snapshot) error {
	snap.Frames = slices.Clone(snap.Frames)
	m.mu.Lock()
	m.jobLocked(snap.ID).snapshot = &snap
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadSnapshot(_ context.Context, jobID string) (job.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mj, ok := m.jobs[jobID]
	if !ok || mj.snapshot == nil {
		return job.Snapshot{}, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	snap := *mj.snapshot
	snap.Frames = slices.Clone(snap.Frames)
	return snap, nil
}

func (m *Memory) SaveOutput(_ context.Context, jobID string, index int, img media.Image) error {
	m.mu.Lock()
	m.jobLocked(jobID).outputs[index] = img.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadOutput(_ context.Context, jobID string, index int) (media.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mj, ok := m.jobs[jobID]; ok {
		if img, ok := mj.outputs[index]; ok {
			return img.Clone(), nil
		}
	}
	return media.Image{}, fmt.Errorf("%w: job %s frame %d", ErrNotFound, jobID, index)
}

func (m *Memory) AddFavorite(_ context.Context, jobID string, index int) error {
	m.mu.Lock()
	m.jobLocked(jobID).favorites[index] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) RemoveFavorite(_ context.Context, jobID string, index int) error {
	m.mu.Lock()
	if mj, ok := m.jobs[jobID]; ok {
		delete(mj.favorites, index)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListFavorites(_ context.Context, jobID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mj, ok := m.jobs[jobID]
	if !ok {
		return []int{}, nil
	}
	out := make([]int, 0, len(mj.favorites))
	for i := range mj.favorites {
		out = append(out, i)
	}
	slices.Sort(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	delete(m.jobs, jobID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
