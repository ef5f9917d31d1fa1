package settings

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/logging"
)

type failingStore struct {
	MemoryStore
	saveErr error
	loadErr error
}

func (f *failingStore) Load(ctx context.Context) (Preferences, error) {
	if f.loadErr != nil {
		return Preferences{}, f.loadErr
	}
	return f.MemoryStore.Load(ctx)
}

func (f *failingStore) Save(ctx context.Context, p Preferences) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, p)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when nothing stored", func(t *testing.T) {
		s, err := Open(ctx, NewMemoryStore(), nil)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if s.Preferences() != Default() {
			t.Errorf("Preferences() = %+v, want defaults", s.Preferences())
		}
	})

	t.Run("reads stored values", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Save(ctx, Preferences{Theme: ThemeLight, CookieConsent: ConsentEssential})
		s, _ := Open(ctx, store, nil)
		if got := s.Preferences(); got.Theme != ThemeLight || got.CookieConsent != ConsentEssential {
			t.Errorf("Preferences() = %+v", got)
		}
	})

	t.Run("invalid stored values fall back", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Save(ctx, Preferences{Theme: "neon"})
		s, _ := Open(ctx, store, nil)
		if s.Preferences() != Default() {
			t.Errorf("Preferences() = %+v, want defaults", s.Preferences())
		}
	})

	t.Run("load error surfaces", func(t *testing.T) {
		_, err := Open(ctx, &failingStore{loadErr: errors.New("disk gone")}, nil)
		if err == nil {
			t.Error("expected error")
		}
	})
}

func TestSettings_SetTheme(t *testing.T) {
	ctx := context.Background()
	bus := event.NewBus()
	var changes []event.PreferencesChangedEvent
	bus.Subscribe(event.TypePreferencesChanged, func(e event.Event) {
		changes = append(changes, e.(event.PreferencesChangedEvent))
	})

	store := NewMemoryStore()
	s, _ := Open(ctx, store, bus)

	if _, err := s.SetTheme(ctx, "LIGHT"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if s.Preferences().Theme != ThemeLight {
		t.Errorf("Theme = %q, want light", s.Preferences().Theme)
	}
	if len(changes) != 1 || changes[0].Theme != "light" {
		t.Errorf("changes = %+v", changes)
	}

	// Unchanged value is not written again
	_, _ = s.SetTheme(ctx, "light")
	if store.Saves() != 1 || len(changes) != 1 {
		t.Errorf("saves = %d, changes = %d; want 1 each", store.Saves(), len(changes))
	}

	if _, err := s.SetTheme(ctx, "sepia"); !errors.Is(err, ErrInvalidPreference) {
		t.Errorf("SetTheme(sepia) error = %v, want ErrInvalidPreference", err)
	}
}

func TestSettings_SetCookieConsent(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(ctx, NewMemoryStore(), nil)

	tests := []struct {
		input   string
		want    Consent
		wantErr bool
	}{
		{"all", ConsentAll, false},
		{"essential", ConsentEssential, false},
		{"none", ConsentEssential, true},
		{"", ConsentEssential, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := s.SetCookieConsent(ctx, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetCookieConsent(%q) error = %v", tt.input, err)
			}
			if got := s.Preferences().CookieConsent; got != tt.want {
				t.Errorf("CookieConsent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSettings_SaveFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	s, _ := Open(ctx, store, nil)
	store.saveErr = errors.New("read-only")

	if _, err := s.SetTheme(ctx, "light"); err == nil {
		t.Fatal("expected save error")
	}
	if s.Preferences().Theme != ThemeDark {
		t.Errorf("Theme = %q after failed save, want dark", s.Preferences().Theme)
	}
}

func TestSettings_Update(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(ctx, NewMemoryStore(), nil)

	got, err := s.Update(ctx, "", "all")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Theme != ThemeDark || got.CookieConsent != ConsentAll {
		t.Errorf("Update = %+v", got)
	}
	if _, err := s.Update(ctx, "light", "maybe"); !errors.Is(err, ErrInvalidPreference) {
		t.Errorf("Update error = %v, want ErrInvalidPreference", err)
	}
	if s.Preferences().Theme != ThemeDark {
		t.Error("rejected update changed the theme")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "preferences.yaml")
	store := NewFileStore(path)

	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on missing file error = %v, want ErrNotFound", err)
	}

	s, _ := Open(ctx, store, nil)
	if _, err := s.Update(ctx, "light", "essential"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := Open(ctx, NewFileStore(path), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	want := Preferences{Theme: ThemeLight, CookieConsent: ConsentEssential}
	if reopened.Preferences() != want {
		t.Errorf("reopened = %+v, want %+v", reopened.Preferences(), want)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "theme: light\ncookie_consent: essential\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.yaml")
	if err := os.WriteFile(path, []byte("theme: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path)
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load error = %v, want ErrCorrupt", err)
	}

	var logs bytes.Buffer
	s, err := Open(context.Background(), store, nil, WithLogger(logging.NewWithWriter(&logs, "debug")))
	if err != nil {
		t.Fatalf("Open over a corrupt file: %v", err)
	}
	if s.Preferences() != Default() {
		t.Errorf("Preferences() = %+v, want defaults", s.Preferences())
	}
	if !strings.Contains(logs.String(), "using defaults") {
		t.Errorf("fallback not logged: %q", logs.String())
	}

	// The next change repairs the file.
	if _, err := s.SetTheme(context.Background(), "light"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil || got.Theme != ThemeLight {
		t.Errorf("Load after repair = %+v, %v", got, err)
	}
}
