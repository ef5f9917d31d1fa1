package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/selfie2snap/selfie2snap/internal/config"
	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/orchestrator"
	"github.com/selfie2snap/selfie2snap/internal/provider"
	"github.com/selfie2snap/selfie2snap/internal/settings"
)

// newLogger builds the logger described by cfg. With logging disabled, or
// when fallback is nil and no directory is configured, logs are discarded.
func newLogger(cfg config.LoggingConfig, fallback io.Writer) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NopLogger(), nil
	}
	if cfg.Dir != "" {
		return logging.NewLogger(cfg.Dir, cfg.Level)
	}
	if fallback == nil {
		return logging.NopLogger(), nil
	}
	return logging.NewWithWriter(fallback, cfg.Level), nil
}

// sessionDefaults turns the generation config into the options a new
// session starts with. Out-of-range frame counts are clamped.
func sessionDefaults(gen config.GenerationConfig) (options.Options, error) {
	state := options.NewState(options.Default())
	u := options.Update{FrameCount: &gen.DefaultFrameCount, Style: &gen.DefaultStyle}
	// Empty ratio and scene keep the built-in defaults.
	if gen.DefaultAspectRatio != "" {
		u.AspectRatio = &gen.DefaultAspectRatio
	}
	if gen.DefaultScene != "" {
		u.Scene = &gen.DefaultScene
	}
	if err := state.Apply(u); err != nil {
		return options.Options{}, fmt.Errorf("invalid generation defaults: %w", err)
	}
	return state.Snapshot(), nil
}

// newOrchestrator wires the configured provider into an orchestrator.
func newOrchestrator(ctx context.Context, cfg *config.Config, bus *event.Bus, logger *logging.Logger) (*orchestrator.Orchestrator, error) {
	gen, err := provider.New(ctx, cfg.Provider, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return orchestrator.New(gen, bus,
		orchestrator.WithConcurrency(cfg.Generation.MaxConcurrent),
		orchestrator.WithDispatchTimeout(cfg.Generation.DispatchTimeout()),
		orchestrator.WithMaxAttempts(cfg.Generation.MaxAttempts),
		orchestrator.WithLogger(logger),
	), nil
}

// openSettings loads the shared preferences from the configured file.
func openSettings(ctx context.Context, cfg config.PathsConfig, bus *event.Bus, logger *logging.Logger) (*settings.Settings, error) {
	return settings.Open(ctx, settings.NewFileStore(cfg.ResolvePreferencesFile()), bus, settings.WithLogger(logger))
}

// limiter is the part of the orchestrator a config reload adjusts.
type limiter interface {
	SetLimit(n int)
	Limit() int
}

// reloadHandler applies a changed config file to a running process. Only
// the dispatch concurrency is live; other settings need a restart.
func reloadHandler(lim limiter, logger *logging.Logger) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		cfg, err := config.Load()
		if err != nil {
			logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		if n := cfg.Generation.MaxConcurrent; n != lim.Limit() {
			lim.SetLimit(n)
			logger.Info("dispatch concurrency changed", "max_concurrent", n)
		}
	}
}

// watchConfig starts watching the config file in use, if any.
func watchConfig(lim limiter, logger *logging.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(reloadHandler(lim, logger))
	viper.WatchConfig()
}
