package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Selfie2Snap configuration
type Config struct {
	Generation GenerationConfig `mapstructure:"generation"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Events     EventsConfig     `mapstructure:"events"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Paths      PathsConfig      `mapstructure:"paths"`
}

// GenerationConfig controls how frames are dispatched to the provider
type GenerationConfig struct {
	// MaxConcurrent bounds simultaneous provider calls across all jobs (default: 3).
	// Changes are picked up at runtime when the config file is edited.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// DispatchTimeoutSeconds bounds a single provider call; an expired call fails
	// the frame with reason "timeout" (default: 60)
	DispatchTimeoutSeconds int `mapstructure:"dispatch_timeout_seconds"`
	// MaxAttempts limits dispatches per frame including retries (0 = unlimited)
	MaxAttempts int `mapstructure:"max_attempts"`
	// DefaultFrameCount seeds new sessions (1-10, default: 4)
	DefaultFrameCount int `mapstructure:"default_frame_count"`
	// DefaultAspectRatio seeds new sessions (default: "1:1")
	DefaultAspectRatio string `mapstructure:"default_aspect_ratio"`
	// DefaultScene seeds new sessions (default: "natural")
	DefaultScene string `mapstructure:"default_scene"`
	// DefaultStyle seeds new sessions (default: "")
	DefaultStyle string `mapstructure:"default_style"`
}

// ProviderConfig selects the external image generation backend
type ProviderConfig struct {
	// Backend is one of "mock", "ark" (Volcengine Seedream) or "gemini" (default: "mock")
	Backend string `mapstructure:"backend"`
	// Model overrides the backend's default model name
	Model string `mapstructure:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	// Empty uses the backend default (ARK_API_KEY or GEMINI_API_KEY).
	APIKeyEnv string `mapstructure:"api_key_env"`
	// Watermark asks the backend to watermark outputs when supported (default: false)
	Watermark bool `mapstructure:"watermark"`
	// MockLatencyMs is the simulated latency of the mock backend (default: 400)
	MockLatencyMs int `mapstructure:"mock_latency_ms"`
	// MockFailureRate is the fraction of mock dispatches that fail, 0-1 (default: 0)
	MockFailureRate float64 `mapstructure:"mock_failure_rate"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `mapstructure:"addr"`
	// Mode is the gin mode: "debug", "release" or "test" (default: "release")
	Mode string `mapstructure:"mode"`
	// MaxUploadMB caps a single selfie upload (default: 10)
	MaxUploadMB int `mapstructure:"max_upload_mb"`
	// ShutdownTimeoutSeconds bounds graceful shutdown (default: 10)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// StoreConfig controls where job snapshots, outputs and favorites are kept
type StoreConfig struct {
	// Backend is "memory" or "redis" (default: "memory")
	Backend string `mapstructure:"backend"`
	// RedisAddr is host:port of the Redis server (default: "localhost:6379")
	RedisAddr string `mapstructure:"redis_addr"`
	// RedisPassword authenticates to Redis (default: "")
	RedisPassword string `mapstructure:"redis_password"`
	// RedisDB selects the Redis database (default: 0)
	RedisDB int `mapstructure:"redis_db"`
	// TTLHours expires stored jobs (default: 24, 0 = never)
	TTLHours int `mapstructure:"ttl_hours"`
	// KeyPrefix namespaces every key (default: "selfie2snap")
	KeyPrefix string `mapstructure:"key_prefix"`
}

// EventsConfig controls out-of-process event export
type EventsConfig struct {
	// AMQPURL enables publishing every domain event to RabbitMQ when set (default: "")
	AMQPURL string `mapstructure:"amqp_url"`
	// Exchange is the fanout exchange name (default: "selfie2snap.events")
	Exchange string `mapstructure:"exchange"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory; empty logs to stderr (default: "")
	Dir string `mapstructure:"dir"`
}

// PathsConfig controls where Selfie2Snap reads and writes local files
type PathsConfig struct {
	// OutputDir is where exported frames are written (default: "snaps").
	// Supports ~ for home directory expansion.
	OutputDir string `mapstructure:"output_dir"`
	// PreferencesFile stores theme and cookie consent
	// (default: "" uses preferences.yaml in the config directory)
	PreferencesFile string `mapstructure:"preferences_file"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			MaxConcurrent:          3,
			DispatchTimeoutSeconds: 60,
			MaxAttempts:            0,
			DefaultFrameCount:      4,
			DefaultAspectRatio:     "1:1",
			DefaultScene:           "natural",
			DefaultStyle:           "",
		},
		Provider: ProviderConfig{
			Backend:         "mock",
			Model:           "",
			APIKeyEnv:       "",
			Watermark:       false,
			MockLatencyMs:   400,
			MockFailureRate: 0,
		},
		Server: ServerConfig{
			Addr:                   ":8080",
			Mode:                   "release",
			MaxUploadMB:            10,
			ShutdownTimeoutSeconds: 10,
		},
		Store: StoreConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			RedisDB:   0,
			TTLHours:  24,
			KeyPrefix: "selfie2snap",
		},
		Events: EventsConfig{
			AMQPURL:  "",
			Exchange: "selfie2snap.events",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
		Paths: PathsConfig{
			OutputDir:       "snaps",
			PreferencesFile: "",
		},
	}
}

// DispatchTimeout returns the per-dispatch timeout as a time.Duration
func (c *GenerationConfig) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSeconds) * time.Second
}

// TTL returns the store expiry as a time.Duration (0 means no expiry)
func (c *StoreConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// ShutdownTimeout returns the graceful shutdown bound as a time.Duration
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the upload cap in bytes
func (c *ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// APIKey resolves the provider API key from the environment.
func (c *ProviderConfig) APIKey() string {
	name := c.APIKeyEnv
	if name == "" {
		switch c.Backend {
		case "ark":
			name = "ARK_API_KEY"
		case "gemini":
			name = "GEMINI_API_KEY"
		default:
			return ""
		}
	}
	return os.Getenv(name)
}

// ResolveOutputDir returns OutputDir with ~ expanded. Relative paths are
// returned unchanged and resolve against the working directory.
func (p *PathsConfig) ResolveOutputDir() string {
	return expandHome(p.OutputDir)
}

// ResolvePreferencesFile returns the preferences file path, defaulting to
// preferences.yaml in the config directory.
func (p *PathsConfig) ResolvePreferencesFile() string {
	if p.PreferencesFile == "" {
		return filepath.Join(ConfigDir(), "preferences.yaml")
	}
	return expandHome(p.PreferencesFile)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Generation defaults
	viper.SetDefault("generation.max_concurrent", defaults.Generation.MaxConcurrent)
	viper.SetDefault("generation.dispatch_timeout_seconds", defaults.Generation.DispatchTimeoutSeconds)
	viper.SetDefault("generation.max_attempts", defaults.Generation.MaxAttempts)
	viper.SetDefault("generation.default_frame_count", defaults.Generation.DefaultFrameCount)
	viper.SetDefault("generation.default_aspect_ratio", defaults.Generation.DefaultAspectRatio)
	viper.SetDefault("generation.default_scene", defaults.Generation.DefaultScene)
	viper.SetDefault("generation.default_style", defaults.Generation.DefaultStyle)

	// Provider defaults
	viper.SetDefault("provider.backend", defaults.Provider.Backend)
	viper.SetDefault("provider.model", defaults.Provider.Model)
	viper.SetDefault("provider.api_key_env", defaults.Provider.APIKeyEnv)
	viper.SetDefault("provider.watermark", defaults.Provider.Watermark)
	viper.SetDefault("provider.mock_latency_ms", defaults.Provider.MockLatencyMs)
	viper.SetDefault("provider.mock_failure_rate", defaults.Provider.MockFailureRate)

	// Server defaults
	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("server.mode", defaults.Server.Mode)
	viper.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	viper.SetDefault("server.shutdown_timeout_seconds", defaults.Server.ShutdownTimeoutSeconds)

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.redis_addr", defaults.Store.RedisAddr)
	viper.SetDefault("store.redis_password", defaults.Store.RedisPassword)
	viper.SetDefault("store.redis_db", defaults.Store.RedisDB)
	viper.SetDefault("store.ttl_hours", defaults.Store.TTLHours)
	viper.SetDefault("store.key_prefix", defaults.Store.KeyPrefix)

	// Events defaults
	viper.SetDefault("events.amqp_url", defaults.Events.AMQPURL)
	viper.SetDefault("events.exchange", defaults.Events.Exchange)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Paths defaults
	viper.SetDefault("paths.output_dir", defaults.Paths.OutputDir)
	viper.SetDefault("paths.preferences_file", defaults.Paths.PreferencesFile)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "selfie2snap")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".selfie2snap"
	}
	return filepath.Join(home, ".config", "selfie2snap")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
