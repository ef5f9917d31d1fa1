package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/selfie2snap/selfie2snap/internal/options"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "generation.max_concurrent")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidProviderBackends returns the list of supported generation backends
func ValidProviderBackends() []string {
	return []string{"mock", "ark", "gemini"}
}

// ValidStoreBackends returns the list of supported job store backends
func ValidStoreBackends() []string {
	return []string{"memory", "redis"}
}

// ValidServerModes returns the list of valid gin modes
func ValidServerModes() []string {
	return []string{"debug", "release", "test"}
}

// Upper bounds that keep a misconfigured service from flooding the provider
const (
	maxConcurrentLimit   = 32
	maxDispatchTimeout   = 600
	maxUploadMBLimit     = 50
	maxStoreTTLHours     = 24 * 30
	maxShutdownTimeout   = 300
	maxMockLatencyMillis = 60_000
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateGeneration()...)
	errors = append(errors, c.validateProvider()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateEvents()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePaths()...)

	return errors
}

// validateGeneration validates the GenerationConfig
func (c *Config) validateGeneration() []ValidationError {
	var errors []ValidationError
	g := c.Generation

	if g.MaxConcurrent < 1 || g.MaxConcurrent > maxConcurrentLimit {
		errors = append(errors, ValidationError{
			Field:   "generation.max_concurrent",
			Value:   g.MaxConcurrent,
			Message: fmt.Sprintf("must be between 1 and %d", maxConcurrentLimit),
		})
	}

	if g.DispatchTimeoutSeconds < 1 || g.DispatchTimeoutSeconds > maxDispatchTimeout {
		errors = append(errors, ValidationError{
			Field:   "generation.dispatch_timeout_seconds",
			Value:   g.DispatchTimeoutSeconds,
			Message: fmt.Sprintf("must be between 1 and %d", maxDispatchTimeout),
		})
	}

	if g.MaxAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.max_attempts",
			Value:   g.MaxAttempts,
			Message: "must be non-negative (0 means unlimited)",
		})
	}

	// The frame count default is clamped at runtime like user input, but a
	// config file that asks for 0 or 50 frames is almost certainly a typo.
	if g.DefaultFrameCount < options.MinFrameCount || g.DefaultFrameCount > options.MaxFrameCount {
		errors = append(errors, ValidationError{
			Field:   "generation.default_frame_count",
			Value:   g.DefaultFrameCount,
			Message: fmt.Sprintf("must be between %d and %d", options.MinFrameCount, options.MaxFrameCount),
		})
	}

	if g.DefaultAspectRatio != "" && !options.AspectRatio(g.DefaultAspectRatio).Valid() {
		errors = append(errors, ValidationError{
			Field:   "generation.default_aspect_ratio",
			Value:   g.DefaultAspectRatio,
			Message: fmt.Sprintf("must be one of: %s", joinValues(options.AspectRatios())),
		})
	}

	if g.DefaultScene != "" && !options.Scene(g.DefaultScene).Valid() {
		errors = append(errors, ValidationError{
			Field:   "generation.default_scene",
			Value:   g.DefaultScene,
			Message: fmt.Sprintf("must be one of: %s", joinValues(options.Scenes())),
		})
	}

	if len([]rune(g.DefaultStyle)) > options.MaxStyleLength {
		errors = append(errors, ValidationError{
			Field:   "generation.default_style",
			Value:   g.DefaultStyle,
			Message: fmt.Sprintf("exceeds maximum of %d characters", options.MaxStyleLength),
		})
	}

	return errors
}

// validateProvider validates the ProviderConfig
func (c *Config) validateProvider() []ValidationError {
	var errors []ValidationError
	p := c.Provider

	if !slices.Contains(ValidProviderBackends(), p.Backend) {
		errors = append(errors, ValidationError{
			Field:   "provider.backend",
			Value:   p.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviderBackends(), ", ")),
		})
	}

	if p.MockLatencyMs < 0 || p.MockLatencyMs > maxMockLatencyMillis {
		errors = append(errors, ValidationError{
			Field:   "provider.mock_latency_ms",
			Value:   p.MockLatencyMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxMockLatencyMillis),
		})
	}

	if p.MockFailureRate < 0 || p.MockFailureRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "provider.mock_failure_rate",
			Value:   p.MockFailureRate,
			Message: "must be between 0 and 1",
		})
	}

	if strings.ContainsAny(p.APIKeyEnv, " =") {
		errors = append(errors, ValidationError{
			Field:   "provider.api_key_env",
			Value:   p.APIKeyEnv,
			Message: "must be an environment variable name",
		})
	}

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError
	s := c.Server

	if strings.TrimSpace(s.Addr) == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   s.Addr,
			Message: "must not be empty",
		})
	}

	if !slices.Contains(ValidServerModes(), s.Mode) {
		errors = append(errors, ValidationError{
			Field:   "server.mode",
			Value:   s.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidServerModes(), ", ")),
		})
	}

	if s.MaxUploadMB < 1 || s.MaxUploadMB > maxUploadMBLimit {
		errors = append(errors, ValidationError{
			Field:   "server.max_upload_mb",
			Value:   s.MaxUploadMB,
			Message: fmt.Sprintf("must be between 1 and %d", maxUploadMBLimit),
		})
	}

	if s.ShutdownTimeoutSeconds < 0 || s.ShutdownTimeoutSeconds > maxShutdownTimeout {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout_seconds",
			Value:   s.ShutdownTimeoutSeconds,
			Message: fmt.Sprintf("must be between 0 and %d", maxShutdownTimeout),
		})
	}

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError
	s := c.Store

	if !slices.Contains(ValidStoreBackends(), s.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   s.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreBackends(), ", ")),
		})
	}

	if s.Backend == "redis" && strings.TrimSpace(s.RedisAddr) == "" {
		errors = append(errors, ValidationError{
			Field:   "store.redis_addr",
			Value:   s.RedisAddr,
			Message: "is required when store.backend is redis",
		})
	}

	if s.RedisDB < 0 || s.RedisDB > 15 {
		errors = append(errors, ValidationError{
			Field:   "store.redis_db",
			Value:   s.RedisDB,
			Message: "must be between 0 and 15",
		})
	}

	if s.TTLHours < 0 || s.TTLHours > maxStoreTTLHours {
		errors = append(errors, ValidationError{
			Field:   "store.ttl_hours",
			Value:   s.TTLHours,
			Message: fmt.Sprintf("must be between 0 and %d", maxStoreTTLHours),
		})
	}

	if strings.ContainsAny(s.KeyPrefix, " \t\n") {
		errors = append(errors, ValidationError{
			Field:   "store.key_prefix",
			Value:   s.KeyPrefix,
			Message: "must not contain whitespace",
		})
	}

	return errors
}

// validateEvents validates the EventsConfig
func (c *Config) validateEvents() []ValidationError {
	var errors []ValidationError
	e := c.Events

	if e.AMQPURL == "" {
		return errors
	}

	u, err := url.Parse(e.AMQPURL)
	if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "events.amqp_url",
			Value:   redactURL(e.AMQPURL),
			Message: "must be an amqp:// or amqps:// URL",
		})
	}

	if strings.TrimSpace(e.Exchange) == "" {
		errors = append(errors, ValidationError{
			Field:   "events.exchange",
			Value:   e.Exchange,
			Message: "is required when events.amqp_url is set",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.output_dir",
			Value:   c.Paths.OutputDir,
			Message: "must not be empty",
		})
	}

	if p := c.Paths.PreferencesFile; p != "" && !strings.HasSuffix(p, ".yaml") && !strings.HasSuffix(p, ".yml") {
		errors = append(errors, ValidationError{
			Field:   "paths.preferences_file",
			Value:   p,
			Message: "must be a .yaml or .yml file",
		})
	}

	return errors
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// redactURL hides credentials so validation errors are safe to print.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
