package scan

import (
	"os"
	"strings"

	"github.com/zjrosen/keystone/container"
)

// FilterSpecConfig is the declarative form of one include/exclude filter.
type FilterSpecConfig struct {
	Kind       string `mapstructure:"kind" yaml:"kind"`
	Expression string `mapstructure:"expression" yaml:"expression"`
}

// Config is the declarative scanning surface consumed by bootstrap
// front-ends (config files, CLI flags).
type Config struct {
	// BasePackages lists base paths, comma or semicolon delimited.
	// Environment placeholders ($VAR or ${VAR}) are resolved.
	BasePackages string `mapstructure:"base_packages" yaml:"base_packages"`

	// UseDefaultFilters enables the built-in component-stereotype include
	// filter.
	UseDefaultFilters bool `mapstructure:"use_default_filters" yaml:"use_default_filters"`

	// ResourcePattern overrides the manifest file pattern.
	ResourcePattern string `mapstructure:"resource_pattern" yaml:"resource_pattern"`

	// NameGenerator names a catalog-registered NameGenerator strategy.
	NameGenerator string `mapstructure:"name_generator" yaml:"name_generator"`

	// ScopeResolver names a catalog-registered ScopeResolver strategy.
	// Mutually exclusive with ScopedProxy.
	ScopeResolver string `mapstructure:"scope_resolver" yaml:"scope_resolver"`

	// ScopedProxy selects proxy wrapping: "none", "interfaces" or
	// "targetClass". Mutually exclusive with ScopeResolver.
	ScopedProxy string `mapstructure:"scoped_proxy" yaml:"scoped_proxy"`

	IncludeFilters []FilterSpecConfig `mapstructure:"include_filters" yaml:"include_filters"`
	ExcludeFilters []FilterSpecConfig `mapstructure:"exclude_filters" yaml:"exclude_filters"`

	// AnnotationConfig registers the fixed infrastructure extension set
	// after scanning.
	AnnotationConfig bool `mapstructure:"annotation_config" yaml:"annotation_config"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		UseDefaultFilters: true,
		ResourcePattern:   DefaultResourcePattern,
		ScopedProxy:       "",
		AnnotationConfig:  true,
	}
}

// BasePaths tokenizes BasePackages on commas and semicolons, resolving
// environment placeholders first.
func (c Config) BasePaths() []string {
	expanded := os.ExpandEnv(c.BasePackages)
	parts := strings.FieldsFunc(expanded, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var paths []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// NewScannerFromConfig builds a fully configured scanner. All strategy and
// filter misconfiguration is raised here, before any scanning happens:
// unknown strategies and wrong-typed strategies are ConfigErrors, while
// unresolvable filter expressions are logged and skipped by AddFilterSpecs.
func NewScannerFromConfig(cfg Config, registry container.DefinitionRegistry, loader ResourceLoader, catalog *Catalog) (*Scanner, error) {
	s := NewScanner(registry, loader, cfg.UseDefaultFilters, catalog)
	s.SetResourcePattern(cfg.ResourcePattern)

	if cfg.NameGenerator != "" {
		v, err := instantiateStrategy(cfg.NameGenerator, catalog)
		if err != nil {
			return nil, err
		}
		g, ok := v.(NameGenerator)
		if !ok {
			return nil, newConfigError("name generator %q does not implement NameGenerator (got %T)", cfg.NameGenerator, v)
		}
		s.SetNameGenerator(g)
	}

	if cfg.ScopeResolver != "" && cfg.ScopedProxy != "" {
		return nil, newConfigError("cannot configure both a scope resolver and a scoped-proxy mode")
	}
	if cfg.ScopeResolver != "" {
		v, err := instantiateStrategy(cfg.ScopeResolver, catalog)
		if err != nil {
			return nil, err
		}
		r, ok := v.(ScopeResolver)
		if !ok {
			return nil, newConfigError("scope resolver %q does not implement ScopeResolver (got %T)", cfg.ScopeResolver, v)
		}
		if err := s.SetScopeResolver(r); err != nil {
			return nil, err
		}
	}
	if cfg.ScopedProxy != "" {
		if err := s.SetScopedProxyMode(container.ProxyMode(cfg.ScopedProxy)); err != nil {
			return nil, err
		}
	}

	includes := make([]FilterSpec, 0, len(cfg.IncludeFilters))
	for _, f := range cfg.IncludeFilters {
		includes = append(includes, FilterSpec{Kind: Kind(f.Kind), Expression: f.Expression})
	}
	excludes := make([]FilterSpec, 0, len(cfg.ExcludeFilters))
	for _, f := range cfg.ExcludeFilters {
		excludes = append(excludes, FilterSpec{Kind: Kind(f.Kind), Expression: f.Expression})
	}
	if err := s.AddFilterSpecs(includes, excludes); err != nil {
		return nil, err
	}

	return s, nil
}

// ScanAndRegister is the declarative entry point: configure a scanner, scan
// every base path, and when annotation config is enabled register the fixed
// infrastructure extension set. Returns everything registered by this call.
func ScanAndRegister(cfg Config, registry container.DefinitionRegistry, loader ResourceLoader, catalog *Catalog) ([]container.Holder, error) {
	scanner, err := NewScannerFromConfig(cfg, registry, loader, catalog)
	if err != nil {
		return nil, err
	}
	registered, err := scanner.Scan(cfg.BasePaths()...)
	if err != nil {
		return registered, err
	}
	if cfg.AnnotationConfig {
		infra, err := container.RegisterInfrastructureProcessors(registry)
		registered = append(registered, infra...)
		if err != nil {
			return registered, err
		}
	}
	return registered, nil
}

// instantiateStrategy resolves and zero-argument constructs a named
// strategy. A missing strategy is fatal, unlike a missing filter type.
func instantiateStrategy(name string, catalog *Catalog) (any, error) {
	if catalog == nil {
		return nil, newConfigError("strategy %q cannot be resolved: no catalog configured", name)
	}
	ctor, ok := catalog.Constructor(name)
	if !ok {
		return nil, newConfigError("strategy %q not found in catalog", name)
	}
	return ctor(), nil
}
