// Package config provides configuration types and defaults for keystone.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/keystone/internal/log"
	"github.com/zjrosen/keystone/internal/tracing"
	"github.com/zjrosen/keystone/scan"
)

// Config holds all configuration options for keystone.
type Config struct {
	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug"`

	// LogFile is the path keystone logs to. Empty disables file logging.
	LogFile string `mapstructure:"log_file"`

	// Watch re-scans base paths when their manifests change.
	Watch bool `mapstructure:"watch"`

	// WatchDebounce is the quiet period in milliseconds before a re-scan
	// fires.
	WatchDebounce int `mapstructure:"watch_debounce"`

	Scan    scan.Config    `mapstructure:"scan"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// DefaultLogFilePath returns ~/.config/keystone/keystone.log, or empty
// string if the home dir is unavailable.
func DefaultLogFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "keystone", "keystone.log")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "keystone", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	t := tracing.DefaultConfig()
	t.FilePath = "" // derived from config dir at runtime
	return Config{
		Debug:         false,
		WatchDebounce: 250,
		Scan:          scan.DefaultConfig(),
		Tracing:       t,
	}
}

// ValidateScan checks the scan configuration for errors. Strategy and
// filter resolution happens later against a catalog; this only checks
// what can be known statically.
func ValidateScan(sc scan.Config) error {
	if sc.ScopeResolver != "" && sc.ScopedProxy != "" {
		return fmt.Errorf("scan.scope_resolver and scan.scoped_proxy are mutually exclusive")
	}
	if sc.ScopedProxy != "" {
		switch sc.ScopedProxy {
		case "none", "interfaces", "targetClass":
		default:
			return fmt.Errorf("scan.scoped_proxy must be \"none\", \"interfaces\", or \"targetClass\", got %q", sc.ScopedProxy)
		}
	}
	for i, f := range sc.IncludeFilters {
		if f.Kind == "" {
			return fmt.Errorf("scan.include_filters[%d]: kind is required", i)
		}
	}
	for i, f := range sc.ExcludeFilters {
		if f.Kind == "" {
			return fmt.Errorf("scan.exclude_filters[%d]: kind is required", i)
		}
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}
	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}
	if t.Enabled {
		if t.Exporter == "file" && t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if t.Exporter == "otlp" && t.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// Validate checks the whole configuration.
func Validate(c Config) error {
	if c.WatchDebounce < 0 {
		return fmt.Errorf("watch_debounce must be non-negative, got %d", c.WatchDebounce)
	}
	if err := ValidateScan(c.Scan); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Keystone Configuration

# Enable debug-level logging
debug: false

# Log file path (empty disables file logging)
# log_file: ~/.config/keystone/keystone.log

# Re-scan base paths when manifests change
watch: false
watch_debounce: 250  # quiet period in milliseconds

# Component scanning
scan:
  # Base paths holding type manifests, comma or semicolon delimited.
  # Environment placeholders are resolved: "$APP_ROOT/components"
  base_packages: ""

  # Apply the built-in component-stereotype include filter
  use_default_filters: true

  # Manifest file pattern
  resource_pattern: "*.yaml"

  # Register the fixed infrastructure extension set after scanning
  annotation_config: true

  # Custom strategies (catalog type names)
  # name_generator: myapp.FqnNameGenerator
  # scope_resolver: myapp.MetadataScopeResolver   # exclusive with scoped_proxy
  # scoped_proxy: interfaces                      # none, interfaces, targetClass

  # Filter kinds: annotation, assignable, expression, regex, custom
  # include_filters:
  #   - kind: annotation
  #     expression: service
  # exclude_filters:
  #   - kind: regex
  #     expression: ".*Stub"

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp
#   file_path: ~/.config/keystone/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
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
