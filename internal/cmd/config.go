package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/selfie2snap/selfie2snap/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify Selfie2Snap configuration",
	Long: `View or modify Selfie2Snap configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  selfie2snap config set generation.max_concurrent 5
  selfie2snap config set provider.backend ark
  selfie2snap config set store.backend redis

Run 'selfie2snap config show' to list every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/selfie2snap/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// secretKeys are masked by config show.
var secretKeys = map[string]bool{
	"store.redis_password": true,
	"events.amqp_url":      true,
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", used)
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n\n")
	}

	settings := viper.AllSettings()
	for key := range secretKeys {
		section, name, _ := strings.Cut(key, ".")
		if m, ok := settings[section].(map[string]any); ok {
			if v, ok := m[name].(string); ok && v != "" {
				m[name] = "********"
			}
		}
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// settableKeys maps every key config set accepts to its value kind.
func settableKeys() map[string]string {
	keys := make(map[string]string)
	for _, key := range viper.AllKeys() {
		switch viper.Get(key).(type) {
		case bool:
			keys[key] = "bool"
		case int:
			keys[key] = "int"
		case float64:
			keys[key] = "float"
		default:
			keys[key] = "string"
		}
	}
	return keys
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := strings.ToLower(args[0]), args[1]

	keyType, ok := settableKeys()[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'selfie2snap config show' to see valid keys", key)
	}

	var typedValue any
	switch keyType {
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = b
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typedValue = n
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected number", key)
		}
		typedValue = f
	default:
		typedValue = value
	}

	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigContent = `# Selfie2Snap Configuration

# Frame dispatch
generation:
  # Simultaneous provider calls across all jobs (editable while serving)
  max_concurrent: 3
  # A provider call running longer than this fails the frame with "timeout"
  dispatch_timeout_seconds: 60
  # Dispatches per frame including retries (0 = unlimited)
  max_attempts: 0
  # Options a new session starts with
  default_frame_count: 4
  default_aspect_ratio: "1:1"
  default_scene: natural
  default_style: ""

# Image generation backend: mock, ark or gemini
provider:
  backend: mock
  model: ""
  # Environment variable holding the API key (default ARK_API_KEY / GEMINI_API_KEY)
  api_key_env: ""
  watermark: false
  mock_latency_ms: 400
  mock_failure_rate: 0

# HTTP API
server:
  addr: ":8080"
  mode: release
  max_upload_mb: 10
  shutdown_timeout_seconds: 10

# Where jobs, outputs and favorites are kept: memory or redis
store:
  backend: memory
  redis_addr: localhost:6379
  redis_password: ""
  redis_db: 0
  ttl_hours: 24
  key_prefix: selfie2snap

# Publish every event to a RabbitMQ fanout exchange when amqp_url is set
events:
  amqp_url: ""
  exchange: selfie2snap.events

logging:
  enabled: true
  # debug, info, warn or error
  level: info
  # Empty logs to stderr
  dir: ""

paths:
  output_dir: snaps
  # Empty uses preferences.yaml next to this file
  preferences_file: ""
`

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'selfie2snap config set' to modify values", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize Selfie2Snap's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")

	fmt.Fprintln(out, "\nEnvironment variables: SELFIE2SNAP_* (e.g., SELFIE2SNAP_GENERATION_MAX_CONCURRENT)")
	return nil
}
