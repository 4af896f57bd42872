package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/keystone/internal/config"
	"github.com/zjrosen/keystone/internal/tracing"
	"github.com/zjrosen/keystone/scan"
)

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()

	assert.False(t, cfg.Debug)
	assert.False(t, cfg.Watch)
	assert.Equal(t, 250, cfg.WatchDebounce)
	assert.True(t, cfg.Scan.UseDefaultFilters)
	assert.True(t, cfg.Scan.AnnotationConfig)
	assert.Equal(t, scan.DefaultResourcePattern, cfg.Scan.ResourcePattern)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.Tracing.FilePath, "trace file path is derived from the config dir at runtime")
}

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, config.Validate(config.Defaults()))
}

func TestValidate_NegativeWatchDebounce(t *testing.T) {
	cfg := config.Defaults()
	cfg.WatchDebounce = -1

	err := config.Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "watch_debounce")
}

func TestValidateScan_ResolverAndProxyExclusive(t *testing.T) {
	sc := scan.DefaultConfig()
	sc.ScopeResolver = "myapp.MetadataScopeResolver"
	sc.ScopedProxy = "interfaces"

	err := config.ValidateScan(sc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidateScan_ProxyModes(t *testing.T) {
	for _, mode := range []string{"none", "interfaces", "targetClass"} {
		sc := scan.DefaultConfig()
		sc.ScopedProxy = mode
		require.NoError(t, config.ValidateScan(sc), "mode %q should be valid", mode)
	}

	sc := scan.DefaultConfig()
	sc.ScopedProxy = "cglib"
	err := config.ValidateScan(sc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "scoped_proxy")
}

func TestValidateScan_FilterKindRequired(t *testing.T) {
	sc := scan.DefaultConfig()
	sc.IncludeFilters = []scan.FilterSpecConfig{{Expression: "service"}}

	err := config.ValidateScan(sc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "include_filters[0]")

	sc = scan.DefaultConfig()
	sc.ExcludeFilters = []scan.FilterSpecConfig{{Expression: ".*Stub"}}

	err = config.ValidateScan(sc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exclude_filters[0]")
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     tracing.Config
		wantErr string
	}{
		{
			name: "valid disabled",
			cfg:  tracing.Config{Enabled: false},
		},
		{
			name: "valid file exporter",
			cfg:  tracing.Config{Enabled: true, Exporter: "file", FilePath: "/tmp/traces.jsonl", SampleRate: 1.0},
		},
		{
			name:    "sample rate too high",
			cfg:     tracing.Config{SampleRate: 1.5},
			wantErr: "sample_rate",
		},
		{
			name:    "sample rate negative",
			cfg:     tracing.Config{SampleRate: -0.1},
			wantErr: "sample_rate",
		},
		{
			name:    "unknown exporter",
			cfg:     tracing.Config{Exporter: "jaeger"},
			wantErr: "tracing.exporter",
		},
		{
			name:    "file exporter without path",
			cfg:     tracing.Config{Enabled: true, Exporter: "file"},
			wantErr: "file_path",
		},
		{
			name:    "otlp exporter without endpoint",
			cfg:     tracing.Config{Enabled: true, Exporter: "otlp"},
			wantErr: "otlp_endpoint",
		},
		{
			name: "file exporter path not required when disabled",
			cfg:  tracing.Config{Enabled: false, Exporter: "file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.ValidateTracing(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfigTemplate_IsValidYAML(t *testing.T) {
	var doc map[string]any
	err := yaml.Unmarshal([]byte(config.DefaultConfigTemplate()), &doc)
	require.NoError(t, err, "template should be parseable YAML")

	assert.Equal(t, false, doc["debug"])
	assert.Equal(t, 250, doc["watch_debounce"])

	scanSection, ok := doc["scan"].(map[string]any)
	require.True(t, ok, "template should have a scan section")
	assert.Equal(t, true, scanSection["use_default_filters"])
	assert.Equal(t, true, scanSection["annotation_config"])
}

func TestWriteDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	err := config.WriteDefaultConfig(configPath)
	require.NoError(t, err)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err, "config file should exist")
	assert.Equal(t, config.DefaultConfigTemplate(), string(content))
}
