package scan

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/zjrosen/keystone/container"
	"github.com/zjrosen/keystone/internal/log"
)

// StereotypeComponent is the built-in marker annotation. With default filters
// enabled, any type carrying it (directly or via meta-annotations) is a
// component candidate.
const StereotypeComponent = "component"

// NameGenerator derives a registration name for a candidate type.
type NameGenerator interface {
	GenerateName(td *TypeDescriptor) string
}

// ScopeResolver decides the scope of a candidate type.
type ScopeResolver interface {
	ResolveScope(td *TypeDescriptor) container.Scope
}

// defaultNameGenerator derives a lower-camel short name from the type name:
// "app/service.UserService" becomes "userService". A name starting with two
// capitals (e.g. "URLResolver") is kept as-is.
type defaultNameGenerator struct{}

func (defaultNameGenerator) GenerateName(td *TypeDescriptor) string {
	name := td.Name
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		name = name[i+1:]
	}
	return decapitalize(name)
}

func decapitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	if len(runes) > 1 && unicode.IsUpper(runes[0]) && unicode.IsUpper(runes[1]) {
		return s
	}
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// defaultScopeResolver honors the declared scope annotation and falls back
// to singleton.
type defaultScopeResolver struct{}

func (defaultScopeResolver) ResolveScope(td *TypeDescriptor) container.Scope {
	if td.Scope != "" {
		return container.Scope(td.Scope)
	}
	return container.ScopeSingleton
}

// Scanner walks a resource space, filters candidate types, and registers the
// matches as component definitions. Configure it fully before the first Scan
// call; it is not safe for concurrent use.
type Scanner struct {
	registry container.DefinitionRegistry
	loader   ResourceLoader
	catalog  *Catalog

	includeFilters []TypeFilter
	excludeFilters []TypeFilter

	resourcePattern string
	nameGenerator   NameGenerator
	scopeResolver   ScopeResolver
	proxyMode       container.ProxyMode

	scopeResolverSet bool
	proxyModeSet     bool
}

// NewScanner creates a scanner over loader that registers into registry.
// With useDefaultFilters the built-in component-stereotype include filter is
// installed; explicit include filters are evaluated after it.
func NewScanner(registry container.DefinitionRegistry, loader ResourceLoader, useDefaultFilters bool, catalog *Catalog) *Scanner {
	s := &Scanner{
		registry:        registry,
		loader:          loader,
		catalog:         catalog,
		resourcePattern: DefaultResourcePattern,
		nameGenerator:   defaultNameGenerator{},
		scopeResolver:   defaultScopeResolver{},
		proxyMode:       container.ProxyNone,
	}
	if useDefaultFilters {
		s.includeFilters = append(s.includeFilters, NewAnnotationFilter(StereotypeComponent))
	}
	return s
}

// AddIncludeFilter appends an include filter.
func (s *Scanner) AddIncludeFilter(f TypeFilter) {
	s.includeFilters = append(s.includeFilters, f)
}

// AddExcludeFilter appends an exclude filter. Excludes win over includes.
func (s *Scanner) AddExcludeFilter(f TypeFilter) {
	s.excludeFilters = append(s.excludeFilters, f)
}

// AddFilterSpecs builds and installs declarative filters. A filter whose
// expression cannot be resolved is logged and skipped; every other build
// failure aborts configuration.
func (s *Scanner) AddFilterSpecs(includes, excludes []FilterSpec) error {
	for _, spec := range includes {
		f, err := BuildFilter(spec, s.catalog)
		if err != nil {
			if isUnresolvable(err) {
				log.Warn(log.CatScan, "ignoring include filter with unresolvable expression", "kind", spec.Kind, "expression", spec.Expression)
				continue
			}
			return err
		}
		s.AddIncludeFilter(f)
	}
	for _, spec := range excludes {
		f, err := BuildFilter(spec, s.catalog)
		if err != nil {
			if isUnresolvable(err) {
				log.Warn(log.CatScan, "ignoring exclude filter with unresolvable expression", "kind", spec.Kind, "expression", spec.Expression)
				continue
			}
			return err
		}
		s.AddExcludeFilter(f)
	}
	return nil
}

// SetResourcePattern overrides the manifest file pattern.
func (s *Scanner) SetResourcePattern(pattern string) {
	if pattern != "" {
		s.resourcePattern = pattern
	}
}

// SetNameGenerator installs a custom name-generation strategy.
func (s *Scanner) SetNameGenerator(g NameGenerator) {
	if g != nil {
		s.nameGenerator = g
	}
}

// SetScopeResolver installs a custom scope-resolution strategy. Mutually
// exclusive with SetScopedProxyMode.
func (s *Scanner) SetScopeResolver(r ScopeResolver) error {
	if s.proxyModeSet {
		return newConfigError("cannot configure both a scope resolver and a scoped-proxy mode")
	}
	if r != nil {
		s.scopeResolver = r
		s.scopeResolverSet = true
	}
	return nil
}

// SetScopedProxyMode selects the scoped-proxy wrapping applied to non-
// singleton components. Mutually exclusive with SetScopeResolver.
func (s *Scanner) SetScopedProxyMode(mode container.ProxyMode) error {
	if s.scopeResolverSet {
		return newConfigError("cannot configure both a scope resolver and a scoped-proxy mode")
	}
	switch mode {
	case container.ProxyNone, container.ProxyInterfaces, container.ProxyTargetClass:
		s.proxyMode = mode
		s.proxyModeSet = true
		return nil
	default:
		return newConfigError("unsupported scoped-proxy mode: %q", mode)
	}
}

// Scan walks every base path, evaluates the filter chain against each
// candidate, and registers the matches. It is eager and exhaustive; the
// returned holders are the definitions actually registered by this call.
func (s *Scanner) Scan(basePaths ...string) ([]container.Holder, error) {
	var registered []container.Holder
	for _, basePath := range basePaths {
		resources, err := s.loader.EnumerateResources(basePath, s.resourcePattern)
		if err != nil {
			return registered, err
		}
		log.Debug(log.CatScan, "scanning base path", "base_path", basePath, "resources", len(resources))

		for _, res := range resources {
			td, err := s.loader.LoadTypeDescriptor(res)
			if err != nil {
				log.Warn(log.CatScan, "skipping unreadable resource", "path", res.Path, "error", err)
				continue
			}
			if !s.isCandidate(td) {
				continue
			}

			holder, err := s.registerCandidate(td)
			if err != nil {
				return registered, err
			}
			if holder != nil {
				registered = append(registered, *holder)
			}
		}
	}
	log.Info(log.CatScan, "scan complete", "base_paths", strings.Join(basePaths, ","), "registered", len(registered))
	return registered, nil
}

// isCandidate applies the chain: excluded by any exclude filter loses;
// otherwise any include filter (the default stereotype filter among them)
// wins.
func (s *Scanner) isCandidate(td *TypeDescriptor) bool {
	for _, f := range s.excludeFilters {
		if f.Matches(td) {
			return false
		}
	}
	for _, f := range s.includeFilters {
		if f.Matches(td) {
			return true
		}
	}
	return false
}

// registerCandidate builds and registers the definition for one accepted
// type. Returns nil without error when an identical definition is already
// registered, which keeps rescans idempotent.
func (s *Scanner) registerCandidate(td *TypeDescriptor) (*container.Holder, error) {
	def := &container.Definition{
		Type:   td.Name,
		Scope:  s.scopeResolver.ResolveScope(td),
		Role:   container.RoleApplication,
		Source: td.Source,
	}
	for _, tag := range td.Capabilities {
		bits, ok := container.ParseCapability(tag)
		if !ok {
			log.Warn(log.CatScan, "ignoring unknown capability tag", "type", td.Name, "tag", tag)
			continue
		}
		def.Capabilities |= bits
	}
	if s.proxyModeSet && s.proxyMode != container.ProxyNone && def.EffectiveScope() != container.ScopeSingleton {
		def.ProxyMode = s.proxyMode
	}

	name := s.nameGenerator.GenerateName(td)

	if existing, ok := s.registry.Get(name); ok {
		if existing.Equivalent(def) {
			log.Debug(log.CatScan, "definition already registered, skipping", "name", name)
			return nil, nil
		}
	}
	if err := s.registry.Register(name, def); err != nil {
		return nil, fmt.Errorf("register scanned definition %q: %w", name, err)
	}
	return &container.Holder{Name: name, Definition: def}, nil
}

func isUnresolvable(err error) bool {
	return errors.Is(err, ErrUnresolvable)
}
