package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default generation config
	if cfg.Generation.MaxConcurrent != 3 {
		t.Errorf("Generation.MaxConcurrent = %d, want 3", cfg.Generation.MaxConcurrent)
	}
	if cfg.Generation.DispatchTimeoutSeconds != 60 {
		t.Errorf("Generation.DispatchTimeoutSeconds = %d, want 60", cfg.Generation.DispatchTimeoutSeconds)
	}
	if cfg.Generation.MaxAttempts != 0 {
		t.Errorf("Generation.MaxAttempts = %d, want 0 (unlimited)", cfg.Generation.MaxAttempts)
	}
	if cfg.Generation.DefaultAspectRatio != "1:1" {
		t.Errorf("Generation.DefaultAspectRatio = %q, want %q", cfg.Generation.DefaultAspectRatio, "1:1")
	}
	if cfg.Generation.DefaultScene != "natural" {
		t.Errorf("Generation.DefaultScene = %q, want %q", cfg.Generation.DefaultScene, "natural")
	}

	// Verify default provider config
	if cfg.Provider.Backend != "mock" {
		t.Errorf("Provider.Backend = %q, want %q", cfg.Provider.Backend, "mock")
	}

	// Verify default store config
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "memory")
	}
	if cfg.Store.TTLHours != 24 {
		t.Errorf("Store.TTLHours = %d, want 24", cfg.Store.TTLHours)
	}

	// Event export is opt-in
	if cfg.Events.AMQPURL != "" {
		t.Errorf("Events.AMQPURL = %q, want empty", cfg.Events.AMQPURL)
	}

	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
}

func TestDurations(t *testing.T) {
	tests := []struct {
		name     string
		got      time.Duration
		expected time.Duration
	}{
		{"dispatch timeout", (&GenerationConfig{DispatchTimeoutSeconds: 60}).DispatchTimeout(), time.Minute},
		{"zero dispatch timeout", (&GenerationConfig{}).DispatchTimeout(), 0},
		{"store ttl", (&StoreConfig{TTLHours: 2}).TTL(), 2 * time.Hour},
		{"shutdown timeout", (&ServerConfig{ShutdownTimeoutSeconds: 5}).ShutdownTimeout(), 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, want %v", tt.got, tt.expected)
			}
		})
	}
}

func TestServerConfig_MaxUploadBytes(t *testing.T) {
	cfg := ServerConfig{MaxUploadMB: 10}
	if got := cfg.MaxUploadBytes(); got != 10*1024*1024 {
		t.Errorf("MaxUploadBytes() = %d, want %d", got, 10*1024*1024)
	}
}

func TestProviderConfig_APIKey(t *testing.T) {
	t.Setenv("ARK_API_KEY", "ark-secret")
	t.Setenv("GEMINI_API_KEY", "gemini-secret")
	t.Setenv("CUSTOM_KEY", "custom-secret")

	tests := []struct {
		name string
		cfg  ProviderConfig
		want string
	}{
		{"ark default env", ProviderConfig{Backend: "ark"}, "ark-secret"},
		{"gemini default env", ProviderConfig{Backend: "gemini"}, "gemini-secret"},
		{"explicit env", ProviderConfig{Backend: "ark", APIKeyEnv: "CUSTOM_KEY"}, "custom-secret"},
		{"mock has no key", ProviderConfig{Backend: "mock"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.APIKey(); got != tt.want {
				t.Errorf("APIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPathsConfig_Resolve(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	t.Run("expands home in output dir", func(t *testing.T) {
		p := PathsConfig{OutputDir: "~/snaps"}
		if got, want := p.ResolveOutputDir(), filepath.Join(home, "snaps"); got != want {
			t.Errorf("ResolveOutputDir() = %q, want %q", got, want)
		}
	})

	t.Run("relative output dir unchanged", func(t *testing.T) {
		p := PathsConfig{OutputDir: "out"}
		if got := p.ResolveOutputDir(); got != "out" {
			t.Errorf("ResolveOutputDir() = %q, want %q", got, "out")
		}
	})

	t.Run("preferences default to config dir", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		p := PathsConfig{}
		if got, want := p.ResolvePreferencesFile(), "/custom/config/selfie2snap/preferences.yaml"; got != want {
			t.Errorf("ResolvePreferencesFile() = %q, want %q", got, want)
		}
	})
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/selfie2snap"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "selfie2snap")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/selfie2snap/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Provider.Backend != "mock" {
		t.Errorf("Get().Provider.Backend = %q, want %q", cfg.Provider.Backend, "mock")
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`generation:
  max_concurrent: 5
  max_attempts: 3
provider:
  backend: ark
store:
  backend: redis
  redis_addr: "127.0.0.1:6380"
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Generation.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.Generation.MaxConcurrent)
	}
	if cfg.Generation.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Generation.MaxAttempts)
	}
	if cfg.Store.RedisAddr != "127.0.0.1:6380" {
		t.Errorf("RedisAddr = %q, want %q", cfg.Store.RedisAddr, "127.0.0.1:6380")
	}
	// Unset keys keep their defaults
	if cfg.Generation.DispatchTimeoutSeconds != 60 {
		t.Errorf("DispatchTimeoutSeconds = %d, want default 60", cfg.Generation.DispatchTimeoutSeconds)
	}
}

func TestLoad_InvalidReturnsValidationErrors(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("generation.max_concurrent", 0)
	viper.Set("provider.backend", "dalle")

	_, err := Load()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Load() error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
	}

	// Get falls back to defaults
	if cfg := Get(); cfg.Generation.MaxConcurrent != 3 {
		t.Errorf("Get() MaxConcurrent = %d, want default 3", cfg.Generation.MaxConcurrent)
	}
}
