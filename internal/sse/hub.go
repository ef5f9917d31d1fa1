// Package sse fans domain events out to per-topic stream subscribers. A
// topic is a job ID or a session topic; the HTTP layer drains subscriber
// channels into Server-Sent Events or WebSocket frames.
package sse

import (
	"context"
	"sync"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/logging"
)

// Message is one encoded event bound for a topic.
type Message struct {
	Event string
	Data  []byte
}

type subscription struct {
	ch    chan Message
	topic string
}

type topicMessage struct {
	topic string
	msg   Message
}

// Hub manages topic subscribers. All topic map mutations happen on the Run
// goroutine; mu only guards reads from other goroutines.
type Hub struct {
	topics map[string]map[chan Message]struct{}
	mu     sync.Mutex

	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan topicMessage
	done        chan struct{}

	logger *logging.Logger
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Hub{
		topics:      make(map[string]map[chan Message]struct{}),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan topicMessage, 100),
		done:        make(chan struct{}),
		logger:      logger.WithComponent("sse"),
	}
}

// Run processes subscriptions and publishes until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.subscribe:
			h.mu.Lock()
			subs, ok := h.topics[s.topic]
			if !ok {
				subs = make(map[chan Message]struct{})
				h.topics[s.topic] = subs
			}
			subs[s.ch] = struct{}{}
			h.mu.Unlock()
		case s := <-h.unsubscribe:
			h.mu.Lock()
			if subs, ok := h.topics[s.topic]; ok {
				delete(subs, s.ch)
				if len(subs) == 0 {
					delete(h.topics, s.topic)
				}
			}
			h.mu.Unlock()
		case tm := <-h.publish:
			h.mu.Lock()
			for ch := range h.topics[tm.topic] {
				select {
				case ch <- tm.msg:
				default:
					h.logger.Debug("dropped message for slow subscriber", "topic", tm.topic, "event", tm.msg.Event)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Publish queues msg for every subscriber of topic. It returns false once
// the hub has stopped.
func (h *Hub) Publish(topic string, msg Message) bool {
	select {
	case h.publish <- topicMessage{topic: topic, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// Subscribe registers a buffered channel for topic. The returned cancel
// func unsubscribes; the channel is never closed by the hub.
func (h *Hub) Subscribe(topic string, buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)
	s := subscription{ch: ch, topic: topic}

	select {
	case h.subscribe <- s:
	case <-h.done:
		return ch, func() {}
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			select {
			case h.unsubscribe <- s:
			case <-h.done:
			}
		})
	}
}

// Subscribers returns how many channels listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// SessionTopic is the topic carrying a session's upload events.
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}

// Forward publishes every bus event to the hub. Job events go to the job's
// topic, upload events to the session topic. It returns the bus
// subscription ID.
func Forward(bus *event.Bus, h *Hub) string {
	return bus.SubscribeAll(func(e event.Event) {
		var topic string
		switch ev := e.(type) {
		case event.JobEvent:
			topic = ev.JobRef()
		case event.UploadChangedEvent:
			if ev.SessionID == "" {
				return
			}
			topic = SessionTopic(ev.SessionID)
		default:
			return
		}

		data, err := event.Marshal(e)
		if err != nil {
			h.logger.Warn("failed to encode event", "event", e.EventType(), "error", err)
			return
		}
		h.Publish(topic, Message{Event: e.EventType(), Data: data})
	})
}
