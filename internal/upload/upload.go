// Package upload holds the two selfie slots a generation job is built from.
package upload

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

// ErrMissingInput is returned when a snapshot is requested while a slot is
// empty.
var ErrMissingInput = errors.New("missing input")

// ErrInvalidPosition is returned for a position other than Left or Right.
var ErrInvalidPosition = errors.New("invalid slot position")

// Position identifies one of the two slots.
type Position int

const (
	Left Position = iota
	Right
)

// String returns "left" or "right".
func (p Position) String() string {
	switch p {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

// Valid reports whether p names a slot.
func (p Position) Valid() bool {
	return p == Left || p == Right
}

// ParsePosition accepts "left"/"right" as well as the "1"/"2" labels used by
// the portrait pickers.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "1", "portrait1":
		return Left, nil
	case "right", "2", "portrait2":
		return Right, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPosition, s)
	}
}

// Inputs is the pair of images a job is generated from.
type Inputs [2]media.Image

// Left returns the left portrait.
func (in Inputs) Left() media.Image { return in[Left] }

// Right returns the right portrait.
func (in Inputs) Right() media.Image { return in[Right] }

// Store holds at most one image per position. It is safe for concurrent
// use.
type Store struct {
	mu        sync.RWMutex
	slots     [2]media.Image
	bus       *event.Bus
	sessionID string
}

// Option configures a Store.
type Option func(*Store)

// WithBus publishes an upload.changed event after every mutation.
func WithBus(bus *event.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithSessionID tags emitted events with the owning session.
func WithSessionID(id string) Option {
	return func(s *Store) { s.sessionID = id }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetImage replaces the content of pos. The image must have an image/ media
// type; otherwise ErrInvalidMediaType is returned and the slot is left
// untouched.
func (s *Store) SetImage(pos Position, img media.Image) error {
	if !pos.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, int(pos))
	}
	if img.Empty() {
		return fmt.Errorf("%w: empty image", media.ErrInvalidMediaType)
	}
	if !media.IsImageType(img.MediaType) {
		return fmt.Errorf("%w: %q", media.ErrInvalidMediaType, img.MediaType)
	}

	s.mu.Lock()
	s.slots[pos] = img.Clone()
	ready := s.readyLocked()
	s.mu.Unlock()

	s.publish(pos.String(), true, ready)
	return nil
}

// SetBlob validates raw bytes with NewImage and stores them in pos.
func (s *Store) SetBlob(pos Position, name, declaredType string, data []byte) error {
	img, err := media.NewImage(name, declaredType, data)
	if err != nil {
		return err
	}
	return s.SetImage(pos, img)
}

// RemoveImage clears pos unconditionally.
func (s *Store) RemoveImage(pos Position) error {
	if !pos.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, int(pos))
	}

	s.mu.Lock()
	s.slots[pos] = media.Image{}
	s.mu.Unlock()

	s.publish(pos.String(), false, false)
	return nil
}

// Swap exchanges the Left and Right contents.
func (s *Store) Swap() {
	s.mu.Lock()
	s.slots[Left], s.slots[Right] = s.slots[Right], s.slots[Left]
	ready := s.readyLocked()
	s.mu.Unlock()

	s.publish("", ready, ready)
}

// Clear empties both slots.
func (s *Store) Clear() {
	s.mu.Lock()
	s.slots = [2]media.Image{}
	s.mu.Unlock()

	s.publish("", false, false)
}

// Image returns a copy of the image at pos and whether the slot is filled.
func (s *Store) Image(pos Position) (media.Image, bool) {
	if !pos.Valid() {
		return media.Image{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	img := s.slots[pos]
	return img.Clone(), !img.Empty()
}

// Filled reports whether pos holds an image.
func (s *Store) Filled(pos Position) bool {
	_, ok := s.Image(pos)
	return ok
}

// Ready reports whether both slots hold an image.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readyLocked()
}

func (s *Store) readyLocked() bool {
	return !s.slots[Left].Empty() && !s.slots[Right].Empty()
}

// Snapshot returns deep copies of both images. It fails with ErrMissingInput
// naming the empty slot(s) if the store is not Ready.
func (s *Store) Snapshot() (Inputs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, pos := range []Position{Left, Right} {
		if s.slots[pos].Empty() {
			missing = append(missing, pos.String())
		}
	}
	if len(missing) > 0 {
		return Inputs{}, fmt.Errorf("%w: %s slot empty", ErrMissingInput, strings.Join(missing, " and "))
	}

	return Inputs{s.slots[Left].Clone(), s.slots[Right].Clone()}, nil
}

func (s *Store) publish(position string, filled, ready bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.NewUploadChangedEvent(s.sessionID, position, filled, ready))
}
