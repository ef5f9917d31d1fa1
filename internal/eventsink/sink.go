// Package eventsink exports every domain event to a RabbitMQ fanout
// exchange so out-of-process subscribers (presentation effects, analytics)
// can react without linking against this module.
package eventsink

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/logging"
)

// Channel is the subset of *amqp.Channel the sink uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

const defaultQueueSize = 256

// Sink buffers bus events and publishes them from a single worker, so a
// slow broker never stalls the publisher. Events are dropped when the
// buffer is full.
type Sink struct {
	ch       Channel
	conn     io.Closer
	exchange string
	logger   *logging.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan amqp.Publishing
	done   chan struct{}

	bus   *event.Bus
	subID string

	published atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the sink logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithQueueSize sets the buffer size.
func WithQueueSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.queue = make(chan amqp.Publishing, n)
		}
	}
}

// Dial connects to url and returns a Sink publishing to exchange.
func Dial(url, exchange string, opts ...Option) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	s, err := New(ch, exchange, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.conn = conn
	return s, nil
}

// New declares a durable fanout exchange on ch and starts the publish
// worker.
func New(ch Channel, exchange string, opts ...Option) (*Sink, error) {
	if ch == nil {
		return nil, errors.New("eventsink: channel must not be nil")
	}
	if exchange == "" {
		return nil, errors.New("eventsink: exchange must not be empty")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	s := &Sink{
		ch:       ch,
		exchange: exchange,
		logger:   logging.NopLogger(),
		queue:    make(chan amqp.Publishing, defaultQueueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("eventsink").With("exchange", exchange)

	go s.run()
	return s, nil
}

// Attach subscribes the sink to every event on bus. Attach once.
func (s *Sink) Attach(bus *event.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus != nil || s.closed {
		return
	}
	s.bus = bus
	s.subID = bus.SubscribeAll(s.enqueue)
}

func (s *Sink) enqueue(e event.Event) {
	body, err := event.Marshal(e)
	if err != nil {
		s.logger.Warn("failed to encode event", "event", e.EventType(), "error", err)
		return
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    e.Timestamp(),
		Type:         e.EventType(),
		Body:         body,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- msg:
	default:
		s.dropped.Add(1)
		s.logger.Warn("event dropped, queue full", "event", e.EventType())
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for msg := range s.queue {
		// Routing key is ignored by fanout exchanges but lets topic
		// rebinding work without a code change.
		if err := s.ch.Publish(s.exchange, msg.Type, false, false, msg); err != nil {
			s.dropped.Add(1)
			s.logger.Warn("failed to publish event", "event", msg.Type, "error", err)
			continue
		}
		s.published.Add(1)
	}
}

// Published returns how many events reached the broker.
func (s *Sink) Published() int64 { return s.published.Load() }

// Dropped returns how many events were lost to a full queue or publish
// error.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes, drains the queue and closes the channel and
// connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.bus != nil {
		s.bus.Unsubscribe(s.subID)
	}
	close(s.queue)
	s.mu.Unlock()

	<-s.done

	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
