// Package config provides configuration types, defaults, loading and
// persistence for svcreg.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/svcreg/internal/filter"
	"github.com/zjrosen/svcreg/internal/flags"
	"github.com/zjrosen/svcreg/internal/log"
	"github.com/zjrosen/svcreg/internal/registry"
	"github.com/zjrosen/svcreg/internal/tracing"
)

// Config holds all svcreg configuration.
type Config struct {
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
	Registry RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	History  HistoryConfig   `mapstructure:"history" yaml:"history"`
	Tracing  tracing.Config  `mapstructure:"tracing" yaml:"tracing"`
	Flags    map[string]bool `mapstructure:"flags" yaml:"flags"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`   // empty disables logging
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn or error
}

// RegistryConfig tunes the service registry.
type RegistryConfig struct {
	FilterCache FilterCacheConfig `mapstructure:"filter_cache" yaml:"filter_cache"`
	FaultBuffer int               `mapstructure:"fault_buffer" yaml:"fault_buffer"` // per-subscriber buffer of the fault stream
}

// HistoryConfig controls the replay history database.
type HistoryConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // empty disables recording
	Keep int    `mapstructure:"keep" yaml:"keep"` // runs kept after each record, 0 keeps all
}

// FilterCacheConfig controls the compiled-filter cache.
type FilterCacheConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Expiration      time.Duration `mapstructure:"expiration" yaml:"expiration"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Registry: RegistryConfig{
			FilterCache: FilterCacheConfig{
				Enabled:         true,
				Expiration:      10 * time.Minute,
				CleanupInterval: 30 * time.Minute,
			},
			FaultBuffer: 64,
		},
		History: HistoryConfig{
			Keep: 200,
		},
		Tracing: tracing.DefaultConfig(),
		Flags:   flags.Defaults(),
	}
}

// DefaultConfigPath returns ~/.config/svcreg/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "svcreg", "config.yaml")
	}
	return filepath.Join(home, ".config", "svcreg", "config.yaml")
}

// LocalConfigPath is the per-project config file, checked before the
// user config.
const LocalConfigPath = ".svcreg/config.yaml"

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("registry.filter_cache.enabled", d.Registry.FilterCache.Enabled)
	v.SetDefault("registry.filter_cache.expiration", d.Registry.FilterCache.Expiration)
	v.SetDefault("registry.filter_cache.cleanup_interval", d.Registry.FilterCache.CleanupInterval)
	v.SetDefault("registry.fault_buffer", d.Registry.FaultBuffer)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.keep", d.History.Keep)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("flags", d.Flags)
}

// Load reads configuration into a fresh viper instance. An explicit path
// must exist. Without one, LocalConfigPath and then DefaultConfigPath are
// tried, and a missing file yields the defaults. It returns the file used,
// or "" when none was found.
func Load(path string) (Config, string, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")

	used := ""
	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, "", fmt.Errorf("reading config %s: %w", path, err)
		}
		used = path
	default:
		for _, candidate := range []string{LocalConfigPath, DefaultConfigPath()} {
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, "", fmt.Errorf("reading config %s: %w", candidate, err)
			}
			used = candidate
			break
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, "", err
	}

	log.Debug(log.CatConfig, "config loaded", "path", used)
	return cfg, used, nil
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	if cfg.Log.Level != "" {
		if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	if err := ValidateRegistry(cfg.Registry); err != nil {
		return err
	}
	if cfg.History.Keep < 0 {
		return fmt.Errorf("history.keep must not be negative, got %d", cfg.History.Keep)
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateRegistry checks registry tuning values.
func ValidateRegistry(reg RegistryConfig) error {
	if reg.FaultBuffer < 0 {
		return fmt.Errorf("registry.fault_buffer must not be negative, got %d", reg.FaultBuffer)
	}
	if reg.FilterCache.Enabled && reg.FilterCache.Expiration <= 0 {
		return errors.New("registry.filter_cache.expiration must be positive when the cache is enabled")
	}
	if reg.FilterCache.CleanupInterval < 0 {
		return fmt.Errorf("registry.filter_cache.cleanup_interval must not be negative, got %s", reg.FilterCache.CleanupInterval)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tc tracing.Config) error {
	return tc.Validate()
}

// FeatureFlags builds the flag registry. Flags missing from the config keep
// their defaults.
func (c Config) FeatureFlags() *flags.Registry {
	merged := flags.Defaults()
	for name, on := range c.Flags {
		merged[name] = on
	}
	return flags.New(merged)
}

// RegistryOptions turns configuration into registry options. The filter
// cache is used only when both the config and the filter-cache flag allow it.
func RegistryOptions(cfg Config, ff *flags.Registry, provider *tracing.Provider) []registry.Option {
	opts := []registry.Option{
		registry.WithFaultBuffer(cfg.Registry.FaultBuffer),
	}

	fc := cfg.Registry.FilterCache
	if fc.Enabled && ff.Enabled(flags.FlagFilterCache) {
		opts = append(opts, registry.WithFilterCache(filter.NewInMemoryCache(fc.Expiration, fc.CleanupInterval, true)))
	}
	if provider != nil && provider.Enabled() {
		opts = append(opts, registry.WithTracer(provider.Tracer()))
	}
	return opts
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# svcreg configuration

# Logging (disabled when path is empty)
log:
  path: ""
  level: info          # debug, info, warn or error

registry:
  # Compiled filters are cached by their text
  filter_cache:
    enabled: true
    expiration: 10m
    cleanup_interval: 30m
  # Faults a slow subscriber may fall behind before it misses some
  fault_buffer: 64

# Replay history (disabled when path is empty)
history:
  path: ""
  keep: 200            # newest runs kept, 0 keeps all

# Distributed tracing
tracing:
  enabled: false
  exporter: file       # none, file, stdout or otlp
  # file_path: ~/.config/svcreg/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1.0     # 0.0-1.0
  service_name: svcreg

# Feature flags
flags:
  filter-cache: true   # cache compiled filters for lookups and subscriptions
  snapshot-diff: true  # show property diffs for MODIFIED events in replay output
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", configPath)
	return nil
}
