// Package options holds the user-selected generation parameters and produces
// immutable snapshots of them for job construction.
package options

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrInvalidOption is returned when an enumerated option is set to a value
// outside its domain.
var ErrInvalidOption = errors.New("invalid option")

// Frame count bounds. Values outside the range are clamped, never rejected.
const (
	MinFrameCount = 1
	MaxFrameCount = 10
)

// MaxStyleLength bounds the free-form style label, in runes.
const MaxStyleLength = 64

// AspectRatio is the output image shape.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "3:4"
	AspectLandscape AspectRatio = "4:3"
	AspectStory     AspectRatio = "9:16"
	AspectWide      AspectRatio = "16:9"
)

// AspectRatios returns every supported aspect ratio in display order.
func AspectRatios() []AspectRatio {
	return []AspectRatio{AspectSquare, AspectPortrait, AspectLandscape, AspectStory, AspectWide}
}

// Valid reports whether a is one of the supported aspect ratios.
func (a AspectRatio) Valid() bool {
	return slices.Contains(AspectRatios(), a)
}

// Dimensions returns a pixel size for the ratio with a long edge of 1024.
func (a AspectRatio) Dimensions() (width, height int) {
	switch a {
	case AspectPortrait:
		return 768, 1024
	case AspectLandscape:
		return 1024, 768
	case AspectStory:
		return 576, 1024
	case AspectWide:
		return 1024, 576
	default:
		return 1024, 1024
	}
}

// Scene is the background setting of the composite.
type Scene string

const (
	SceneNatural   Scene = "natural"
	SceneBeach     Scene = "beach"
	SceneCity      Scene = "city"
	SceneMountains Scene = "mountains"
	SceneStudio    Scene = "studio"
	SceneParty     Scene = "party"
)

// Scenes returns every supported scene in display order.
func Scenes() []Scene {
	return []Scene{SceneNatural, SceneBeach, SceneCity, SceneMountains, SceneStudio, SceneParty}
}

// Valid reports whether s is one of the supported scenes.
func (s Scene) Valid() bool {
	return slices.Contains(Scenes(), s)
}

// Options is an immutable snapshot of generation parameters.
type Options struct {
	FrameCount  int         `json:"frame_count"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
	Scene       Scene       `json:"scene"`
	Style       string      `json:"style,omitempty"`
}

// Default returns the options a fresh session starts with.
func Default() Options {
	return Options{
		FrameCount:  4,
		AspectRatio: AspectSquare,
		Scene:       SceneNatural,
	}
}

// Validate checks every field, returning the first violation wrapped in
// ErrInvalidOption.
func (o Options) Validate() error {
	if o.FrameCount < MinFrameCount || o.FrameCount > MaxFrameCount {
		return fmt.Errorf("%w: frame count %d outside [%d,%d]", ErrInvalidOption, o.FrameCount, MinFrameCount, MaxFrameCount)
	}
	if !o.AspectRatio.Valid() {
		return fmt.Errorf("%w: aspect ratio %q", ErrInvalidOption, o.AspectRatio)
	}
	if !o.Scene.Valid() {
		return fmt.Errorf("%w: scene %q", ErrInvalidOption, o.Scene)
	}
	if utf8.RuneCountInString(o.Style) > MaxStyleLength {
		return fmt.Errorf("%w: style longer than %d characters", ErrInvalidOption, MaxStyleLength)
	}
	return nil
}

// ClampFrameCount forces n into [MinFrameCount, MaxFrameCount].
func ClampFrameCount(n int) int {
	return max(MinFrameCount, min(n, MaxFrameCount))
}

// ParseAspectRatio converts s to an AspectRatio.
func ParseAspectRatio(s string) (AspectRatio, error) {
	a := AspectRatio(strings.TrimSpace(s))
	if !a.Valid() {
		return "", fmt.Errorf("%w: aspect ratio %q", ErrInvalidOption, s)
	}
	return a, nil
}

// ParseScene converts s to a Scene. Matching is case-insensitive.
func ParseScene(s string) (Scene, error) {
	sc := Scene(strings.ToLower(strings.TrimSpace(s)))
	if !sc.Valid() {
		return "", fmt.Errorf("%w: scene %q", ErrInvalidOption, s)
	}
	return sc, nil
}

func normalizeStyle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxStyleLength {
		return "", fmt.Errorf("%w: style longer than %d characters", ErrInvalidOption, MaxStyleLength)
	}
	return s, nil
}

// Update is a partial change to State. Nil fields are left untouched.
type Update struct {
	FrameCount  *int    `json:"frame_count,omitempty"`
	AspectRatio *string `json:"aspect_ratio,omitempty"`
	Scene       *string `json:"scene,omitempty"`
	Style       *string `json:"style,omitempty"`
}

// State is the mutable option set owned by a session. It is safe for
// concurrent use.
type State struct {
	mu   sync.RWMutex
	opts Options
}

// NewState creates a State seeded with initial. Invalid enumerated fields
// fall back to their defaults and the frame count is clamped.
func NewState(initial Options) *State {
	def := Default()
	opts := Options{
		FrameCount:  ClampFrameCount(initial.FrameCount),
		AspectRatio: initial.AspectRatio,
		Scene:       initial.Scene,
	}
	if !opts.AspectRatio.Valid() {
		opts.AspectRatio = def.AspectRatio
	}
	if !opts.Scene.Valid() {
		opts.Scene = def.Scene
	}
	if style, err := normalizeStyle(initial.Style); err == nil {
		opts.Style = style
	}
	return &State{opts: opts}
}

// SetFrameCount stores n clamped to the supported range and returns the
// stored value.
func (s *State) SetFrameCount(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.FrameCount = ClampFrameCount(n)
	return s.opts.FrameCount
}

// SetAspectRatio stores ratio or returns ErrInvalidOption without change.
func (s *State) SetAspectRatio(ratio string) error {
	a, err := ParseAspectRatio(ratio)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.opts.AspectRatio = a
	s.mu.Unlock()
	return nil
}

// SetScene stores scene or returns ErrInvalidOption without change.
func (s *State) SetScene(scene string) error {
	sc, err := ParseScene(scene)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.opts.Scene = sc
	s.mu.Unlock()
	return nil
}

// SetStyle stores the trimmed style label. An empty label clears it.
func (s *State) SetStyle(style string) error {
	normalized, err := normalizeStyle(style)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.opts.Style = normalized
	s.mu.Unlock()
	return nil
}

// Apply validates every field of u and stores them together. If any field
// is invalid nothing is changed.
func (s *State) Apply(u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.opts
	if u.FrameCount != nil {
		next.FrameCount = ClampFrameCount(*u.FrameCount)
	}
	if u.AspectRatio != nil {
		a, err := ParseAspectRatio(*u.AspectRatio)
		if err != nil {
			return err
		}
		next.AspectRatio = a
	}
	if u.Scene != nil {
		sc, err := ParseScene(*u.Scene)
		if err != nil {
			return err
		}
		next.Scene = sc
	}
	if u.Style != nil {
		style, err := normalizeStyle(*u.Style)
		if err != nil {
			return err
		}
		next.Style = style
	}
	s.opts = next
	return nil
}

// Snapshot returns the current options by value. Later setter calls do not
// affect a snapshot already taken.
func (s *State) Snapshot() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}
