package event

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

// recorder collects event types in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) handle(prefix string) Handler {
	return func(e Event) {
		r.mu.Lock()
		r.events = append(r.events, prefix+e.EventType())
		r.mu.Unlock()
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBus_DeliversPayload(t *testing.T) {
	bus := NewBus()

	var received Event
	id := bus.Subscribe(TypeFrameSucceeded, func(e Event) { received = e })
	if id == "" {
		t.Fatal("Subscribe returned an empty ID")
	}
	if received != nil {
		t.Fatal("handler ran before anything was published")
	}

	bus.Publish(NewFrameDispatchedEvent("job-1", 2, 1))
	if received != nil {
		t.Fatalf("frame.succeeded handler got %s", received.EventType())
	}

	bus.Publish(NewFrameSucceededEvent("job-1", 2, 1, "image/png", []byte{1, 2, 3}))
	done, ok := received.(FrameSucceededEvent)
	if !ok {
		t.Fatalf("expected FrameSucceededEvent, got %T", received)
	}
	if done.JobID != "job-1" || done.Index != 2 || done.Attempt != 1 || done.Size != 3 {
		t.Errorf("unexpected payload: %+v", done)
	}
}

func TestBus_DeliveryOrder(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	// Wildcard registered first still runs after the specific handlers.
	bus.SubscribeAll(rec.handle("all:"))
	bus.Subscribe(TypeFrameFailed, rec.handle("gallery:"))
	bus.Subscribe(TypeFrameFailed, rec.handle("tui:"))

	bus.Publish(NewFrameFailedEvent("job-1", 0, 1, "dispatch_failure", "provider returned 500"))
	bus.Publish(NewJobProgressEvent("job-1", 1, 1, 100, "all_failed"))

	want := []string{
		"gallery:" + TypeFrameFailed,
		"tui:" + TypeFrameFailed,
		"all:" + TypeFrameFailed,
		"all:" + TypeJobProgress,
	}
	if got := rec.got(); !equal(got, want) {
		t.Errorf("delivery = %v, want %v", got, want)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	gallery := bus.Subscribe(TypeFrameSucceeded, rec.handle("gallery:"))
	bus.Subscribe(TypeFrameSucceeded, rec.handle("tui:"))
	sink := bus.SubscribeAll(rec.handle("sink:"))
	if n := bus.SubscriptionCount(); n != 3 {
		t.Fatalf("SubscriptionCount = %d, want 3", n)
	}

	tests := []struct {
		id   string
		want bool
	}{
		{gallery, true},
		{gallery, false},
		{sink, true},
		{"sub-unknown", false},
	}
	for _, tt := range tests {
		if got := bus.Unsubscribe(tt.id); got != tt.want {
			t.Errorf("Unsubscribe(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	bus.Publish(NewFrameSucceededEvent("job-1", 0, 1, "image/png", nil))
	if got, want := rec.got(), []string{"tui:" + TypeFrameSucceeded}; !equal(got, want) {
		t.Errorf("after unsubscribe delivery = %v, want %v", got, want)
	}
	if n := bus.SubscriptionCount(); n != 1 {
		t.Errorf("SubscriptionCount = %d, want 1", n)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeJobSubmitted, func(Event) {})
	bus.SubscribeJob("job-1", func(Event) {})
	bus.SubscribeAll(func(Event) {})

	bus.Clear()

	if n := bus.SubscriptionCount(); n != 0 {
		t.Errorf("SubscriptionCount after Clear = %d, want 0", n)
	}
	bus.Publish(NewJobDiscardedEvent("job-1"))
}

func TestBus_HandlerPanicDoesNotStarveOthers(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	bus.Subscribe(TypeFrameSucceeded, func(Event) { panic("gallery exploded") })
	bus.Subscribe(TypeFrameSucceeded, rec.handle("tui:"))
	bus.SubscribeAll(rec.handle("sink:"))

	bus.Publish(NewFrameSucceededEvent("job-1", 0, 1, "image/png", nil))

	want := []string{"tui:" + TypeFrameSucceeded, "sink:" + TypeFrameSucceeded}
	if got := rec.got(); !equal(got, want) {
		t.Errorf("delivery = %v, want %v", got, want)
	}
}

func TestBus_ConcurrentFrames(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	perFrame := make(map[int]int)
	bus.Subscribe(TypeFrameSucceeded, func(e Event) {
		mu.Lock()
		perFrame[e.(FrameSucceededEvent).Index]++
		mu.Unlock()
	})

	// Frames finish on their own goroutines while subscribers come and go.
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() {
			for range 10 {
				bus.Publish(NewFrameSucceededEvent("job-1", i, 1, "image/png", nil))
			}
		})
		wg.Go(func() {
			id := bus.SubscribeJob("job-1", func(Event) {})
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()

	for i := range 10 {
		if perFrame[i] != 10 {
			t.Errorf("frame %d delivered %d times, want 10", i, perFrame[i])
		}
	}
	if n := bus.SubscriptionCount(); n != 1 {
		t.Errorf("SubscriptionCount = %d, want 1", n)
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()

	ids := make(map[string]bool)
	for i := range 100 {
		var id string
		if i%2 == 0 {
			id = bus.SubscribeAll(func(Event) {})
		} else {
			id = bus.SubscribeJob("job-1", func(Event) {})
		}
		if ids[id] {
			t.Fatalf("duplicate subscription ID: %s", id)
		}
		ids[id] = true
	}
}

func TestBus_SubscribeJob(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	bus.SubscribeJob("job-a", rec.handle(""))

	bus.Publish(NewFrameDispatchedEvent("job-a", 0, 1))
	bus.Publish(NewFrameDispatchedEvent("job-b", 0, 1))
	bus.Publish(NewPreferencesChangedEvent("dark", "all"))
	bus.Publish(NewUploadChangedEvent("session-1", "left", true, false))
	bus.Publish(NewJobFinishedEvent("job-a", "completed", 1, 0, 0))

	want := []string{TypeFrameDispatched, TypeJobFinished}
	if got := rec.got(); !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMarshal(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		check map[string]any
	}{
		{
			name:  "frame succeeded",
			event: NewFrameSucceededEvent("job-1", 0, 1, "image/png", []byte("secret-bytes")),
			check: map[string]any{"job_id": "job-1"},
		},
		{
			name:  "frame failed",
			event: NewFrameFailedEvent("job-1", 3, 2, "timeout", "deadline exceeded"),
			check: map[string]any{"job_id": "job-1", "kind": "timeout"},
		},
		{
			name:  "preferences",
			event: NewPreferencesChangedEvent("light", "essential"),
			check: map[string]any{"theme": "light"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.event)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}

			var decoded struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if decoded.Type != tt.event.EventType() {
				t.Errorf("type = %q, want %q", decoded.Type, tt.event.EventType())
			}
			for k, v := range tt.check {
				if decoded.Data[k] != v {
					t.Errorf("data.%s = %v, want %v", k, decoded.Data[k], v)
				}
			}
			if strings.Contains(string(data), "secret") {
				t.Error("encoded event leaks output bytes")
			}
		})
	}
}
