// Package config provides configuration types, defaults and validation for
// osgi-utils.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/tracing"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration options.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  tracing.Config `mapstructure:"tracing"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// RegistryConfig locates the publication database shared by CLI invocations.
type RegistryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// TrackerConfig tunes tracking collections.
type TrackerConfig struct {
	// BufferSize is the event channel capacity per collection.
	BufferSize int `mapstructure:"buffer_size"`

	// BackfillConcurrency bounds parallel proxy construction on start.
	BackfillConcurrency int `mapstructure:"backfill_concurrency"`
}

// WatchConfig tunes the database watcher.
type WatchConfig struct {
	// Debounce coalesces bursts of file events into one reload.
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogConfig holds logging options. Logging stays off unless Path is set or
// debug mode is enabled.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"` // debug, info (default), warn, error
}

// CacheConfig holds cache options.
type CacheConfig struct {
	// Expiration of compiled filters and resolved types. Zero disables caching.
	Expiration time.Duration `mapstructure:"expiration"`
}

const (
	DefaultDir        = ".osgi-utils"
	DefaultConfigPath = DefaultDir + "/config.yaml"
	DefaultDBPath     = DefaultDir + "/registry.db"
)

// DefaultTracesFilePath returns ~/.config/osgi-utils/traces/traces.jsonl, or
// "" when the home directory is unknown.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "osgi-utils", "traces", "traces.jsonl")
}

// UserConfigDir returns ~/.config/osgi-utils, or "" when the home directory
// is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "osgi-utils")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Registry: RegistryConfig{
			DBPath: DefaultDBPath,
		},
		Tracker: TrackerConfig{
			BufferSize:          64,
			BackfillConcurrency: 8,
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: tracing.DefaultConfig(),
		Cache: CacheConfig{
			Expiration: 10 * time.Minute,
		},
	}
}

// SetDefaults registers every default with v, so that keys missing from the
// config file still unmarshal to their defaults.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("registry.db_path", d.Registry.DBPath)
	v.SetDefault("tracker.buffer_size", d.Tracker.BufferSize)
	v.SetDefault("tracker.backfill_concurrency", d.Tracker.BackfillConcurrency)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("cache.expiration", d.Cache.Expiration)
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Exporter == "file" && cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = DefaultTracesFilePath()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	log.Debug(log.CatConfig, "config loaded", "file", v.ConfigFileUsed(), "db", cfg.Registry.DBPath)
	return cfg, nil
}

// Validate checks every section. Errors wrap ErrInvalid.
func (c Config) Validate() error {
	if c.Registry.DBPath == "" {
		return fmt.Errorf("%w: registry.db_path is required", ErrInvalid)
	}
	if err := ValidateTracker(c.Tracker); err != nil {
		return err
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("%w: watch.debounce must not be negative, got %s", ErrInvalid, c.Watch.Debounce)
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
		}
	}
	if c.Cache.Expiration < 0 {
		return fmt.Errorf("%w: cache.expiration must not be negative, got %s", ErrInvalid, c.Cache.Expiration)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateTracker checks tracker tuning. Zero values fall back to defaults.
func ValidateTracker(t TrackerConfig) error {
	if t.BufferSize < 0 {
		return fmt.Errorf("%w: tracker.buffer_size must not be negative, got %d", ErrInvalid, t.BufferSize)
	}
	if t.BackfillConcurrency < 0 {
		return fmt.Errorf("%w: tracker.backfill_concurrency must not be negative, got %d", ErrInvalid, t.BackfillConcurrency)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("%w: tracing.sample_rate must be between 0.0 and 1.0, got %v", ErrInvalid, t.SampleRate)
	}

	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("%w: tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", ErrInvalid, t.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if t.Enabled {
		if t.Exporter == "file" && t.FilePath == "" {
			return fmt.Errorf("%w: tracing.file_path is required when exporter is \"file\"", ErrInvalid)
		}
		if t.Exporter == "otlp" && t.OTLPEndpoint == "" {
			return fmt.Errorf("%w: tracing.otlp_endpoint is required when exporter is \"otlp\"", ErrInvalid)
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# osgi-utils configuration

# Publication database shared by publish, withdraw, list and watch
registry:
  db_path: .osgi-utils/registry.db

# Tracking collections
tracker:
  buffer_size: 64            # Event channel capacity per collection
  backfill_concurrency: 8    # Parallel proxy construction on start

# Database watcher used by 'watch'
watch:
  debounce: 100ms

# Logging (also enabled by --debug or OSGI_UTILS_DEBUG=1)
log:
  # path: debug.log
  level: info                # debug, info, warn or error

# Distributed tracing
tracing:
  enabled: false             # Enable/disable tracing (default: false)
  exporter: file             # Export backend: none, file, stdout, otlp
  # file_path: ~/.config/osgi-utils/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1.0           # Trace sampling rate 0.0-1.0
  service_name: osgi-utils

# Compiled filter and resolved type cache
cache:
  expiration: 10m            # 0 disables caching
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
