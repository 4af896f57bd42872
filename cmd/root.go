package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/keystone/internal/config"
	"github.com/zjrosen/keystone/internal/log"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:     "keystone",
	Short:   "Component scanning and bootstrap orchestration",
	Long:    `Keystone discovers component definitions from type manifests, registers them with configurable filters and naming strategies, and orchestrates the phased bootstrap extension pipeline over them.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/keystone/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"enable debug logging")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("debug", defaults.Debug)
	viper.SetDefault("watch", defaults.Watch)
	viper.SetDefault("watch_debounce", defaults.WatchDebounce)
	viper.SetDefault("scan.use_default_filters", defaults.Scan.UseDefaultFilters)
	viper.SetDefault("scan.resource_pattern", defaults.Scan.ResourcePattern)
	viper.SetDefault("scan.annotation_config", defaults.Scan.AnnotationConfig)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .keystone/config.yaml (current directory)
		// 2. ~/.config/keystone/config.yaml (user config)
		if _, err := os.Stat(".keystone/config.yaml"); err == nil {
			viper.SetConfigFile(".keystone/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "keystone"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".keystone/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)

	if debugFlag || os.Getenv("KEYSTONE_DEBUG") != "" {
		cfg.Debug = true
	}
	initLogging()
}

// initLogging wires the file logger when configured; debug mode without a
// log file falls back to stderr.
func initLogging() {
	if cfg.Debug {
		log.SetMinLevel(log.LevelDebug)
	}
	switch {
	case cfg.LogFile != "":
		if _, err := log.Init(cfg.LogFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		}
	case cfg.Debug:
		log.InitWithWriter(os.Stderr)
	default:
		log.SetEnabled(false)
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
