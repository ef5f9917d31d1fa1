// Package settings holds user preferences (theme and cookie consent) as an
// explicit object backed by an injected Store, read once at startup and
// written on every change.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/logging"
)

// ErrInvalidPreference is returned for a theme or consent value outside its
// domain.
var ErrInvalidPreference = errors.New("invalid preference")

// Theme is the UI color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Consent is the cookie consent level. The zero value means the user has
// not answered yet.
type Consent string

const (
	ConsentUnset     Consent = ""
	ConsentAll       Consent = "all"
	ConsentEssential Consent = "essential"
)

// Preferences is a snapshot of the persisted flags.
type Preferences struct {
	Theme         Theme   `json:"theme" yaml:"theme"`
	CookieConsent Consent `json:"cookie_consent" yaml:"cookie_consent"`
}

// Default returns the preferences used before anything is stored.
func Default() Preferences {
	return Preferences{Theme: ThemeDark, CookieConsent: ConsentUnset}
}

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeDark, ThemeLight:
		return t, nil
	default:
		return "", fmt.Errorf("%w: theme %q", ErrInvalidPreference, s)
	}
}

// ParseConsent validates a consent level.
func ParseConsent(s string) (Consent, error) {
	switch c := Consent(strings.ToLower(strings.TrimSpace(s))); c {
	case ConsentAll, ConsentEssential:
		return c, nil
	default:
		return "", fmt.Errorf("%w: cookie consent %q", ErrInvalidPreference, s)
	}
}

// Validate checks both fields.
func (p Preferences) Validate() error {
	if _, err := ParseTheme(string(p.Theme)); err != nil {
		return err
	}
	if p.CookieConsent != ConsentUnset {
		if _, err := ParseConsent(string(p.CookieConsent)); err != nil {
			return err
		}
	}
	return nil
}

// Store persists preferences.
type Store interface {
	// Load returns the stored preferences, or ErrNotFound if none exist.
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
}

// ErrNotFound is returned by Store.Load when nothing has been saved yet.
var ErrNotFound = errors.New("preferences not found")

// ErrCorrupt is returned by Store.Load when stored data cannot be decoded.
var ErrCorrupt = errors.New("preferences corrupt")

// Settings is the live preference object passed into sessions. It is safe
// for concurrent use.
type Settings struct {
	store Store
	bus   *event.Bus

	mu    sync.RWMutex
	prefs Preferences
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	logger *logging.Logger
}

// WithLogger sets the logger that reports preferences replaced by defaults.
func WithLogger(l *logging.Logger) Option {
	return func(c *openConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Open reads preferences from store. Missing, undecodable or invalid stored
// values fall back to Default; the next change overwrites them. Other load
// errors are returned. bus may be nil.
func Open(ctx context.Context, store Store, bus *event.Bus, opts ...Option) (*Settings, error) {
	if store == nil {
		return nil, errors.New("settings: store must not be nil")
	}
	cfg := openConfig{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger.WithComponent("settings")

	prefs, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		prefs = Default()
	case errors.Is(err, ErrCorrupt):
		log.Warn("stored preferences unreadable, using defaults", "error", err)
		prefs = Default()
	case err != nil:
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	default:
		if verr := prefs.Validate(); verr != nil {
			log.Warn("stored preferences invalid, using defaults", "error", verr)
			prefs = Default()
		}
	}

	return &Settings{store: store, bus: bus, prefs: prefs}, nil
}

// Preferences returns the current preferences.
func (s *Settings) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetTheme persists a new theme.
func (s *Settings) SetTheme(ctx context.Context, theme string) (Preferences, error) {
	t, err := ParseTheme(theme)
	if err != nil {
		return s.Preferences(), err
	}
	return s.update(ctx, func(p *Preferences) { p.Theme = t })
}

// SetCookieConsent persists a new consent level.
func (s *Settings) SetCookieConsent(ctx context.Context, consent string) (Preferences, error) {
	c, err := ParseConsent(consent)
	if err != nil {
		return s.Preferences(), err
	}
	return s.update(ctx, func(p *Preferences) { p.CookieConsent = c })
}

// Update persists both fields. Empty fields are left unchanged.
func (s *Settings) Update(ctx context.Context, theme, consent string) (Preferences, error) {
	var t Theme
	var c Consent
	var err error
	if theme != "" {
		if t, err = ParseTheme(theme); err != nil {
			return s.Preferences(), err
		}
	}
	if consent != "" {
		if c, err = ParseConsent(consent); err != nil {
			return s.Preferences(), err
		}
	}
	return s.update(ctx, func(p *Preferences) {
		if t != "" {
			p.Theme = t
		}
		if c != "" {
			p.CookieConsent = c
		}
	})
}

func (s *Settings) update(ctx context.Context, mutate func(*Preferences)) (Preferences, error) {
	s.mu.Lock()
	next := s.prefs
	mutate(&next)
	if next == s.prefs {
		s.mu.Unlock()
		return next, nil
	}
	if err := s.store.Save(ctx, next); err != nil {
		prev := s.prefs
		s.mu.Unlock()
		return prev, fmt.Errorf("failed to save preferences: %w", err)
	}
	s.prefs = next
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(event.NewPreferencesChangedEvent(string(next.Theme), string(next.CookieConsent)))
	}
	return next, nil
}
