package session

import (
	"errors"
	"testing"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/options"
)

func TestManager_CreateGetRemove(t *testing.T) {
	jobs := &fakeJobs{}
	m := NewManager(jobs, nil, options.Default(), nil, nil)

	s := m.Create()
	if s.ID == "" {
		t.Fatal("empty session ID")
	}
	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}

	fill(t, s)
	j, _ := s.Submit()

	if err := m.Remove(s.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove error = %v, want ErrNotFound", err)
	}
	if len(jobs.discarded) != 1 || jobs.discarded[0] != j.ID {
		t.Errorf("Remove did not discard the job: %v", jobs.discarded)
	}
	if err := m.Remove(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove error = %v", err)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := NewManager(&fakeJobs{}, nil, options.Default(), nil, nil)
	a, b := m.Create(), m.Create()

	a.Options.SetFrameCount(10)
	if b.Options.Snapshot().FrameCount != options.Default().FrameCount {
		t.Error("option change leaked across sessions")
	}
	fill(t, a)
	if b.Uploads.Ready() {
		t.Error("upload leaked across sessions")
	}
}

func TestManager_Sweep(t *testing.T) {
	m := NewManager(&fakeJobs{}, nil, options.Default(), nil, nil)
	idle := m.Create()
	active := m.Create()

	idle.mu.Lock()
	idle.lastSeen = time.Now().Add(-2 * time.Hour)
	idle.mu.Unlock()

	if n := m.Sweep(time.Hour); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, err := m.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Error("idle session survived sweep")
	}
	if _, err := m.Get(active.ID); err != nil {
		t.Errorf("active session removed: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}
