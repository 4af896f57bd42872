// Package engine provides a catalog-backed instantiation engine. It resolves
// definition types to zero-argument constructors, caches singletons, and runs
// the interceptor chain installed during bootstrap around every creation.
package engine

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/zjrosen/keystone/container"
	"github.com/zjrosen/keystone/internal/log"
	"github.com/zjrosen/keystone/scan"
)

// Engine implements container.Engine on top of a definition registry and a
// constructor catalog. It also exposes its registry and metadata cache to the
// orchestrator via container.RegistryAware and container.MetadataCache.
type Engine struct {
	mu           sync.Mutex
	registry     container.DefinitionRegistry
	catalog      *scan.Catalog
	singletons   map[string]any
	interceptors []container.CreationInterceptor
	cacheClears  int
}

// New creates an engine over the given registry and catalog. The catalog may
// be nil; infrastructure types still resolve through their built-in
// constructors.
func New(registry container.DefinitionRegistry, catalog *scan.Catalog) *Engine {
	return &Engine{
		registry:   registry,
		catalog:    catalog,
		singletons: make(map[string]any),
	}
}

// DefinitionRegistry exposes the backing registry for registry-mutating
// extensions.
func (e *Engine) DefinitionRegistry() container.DefinitionRegistry {
	return e.registry
}

// Instantiate materializes the named component. Singletons are created once
// and cached; prototypes are created fresh on every call. When capability is
// non-zero the definition must declare it.
func (e *Engine) Instantiate(name string, capability container.Capability) (any, error) {
	def, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("no definition registered under %q", name)
	}
	if capability != 0 && !def.Capabilities.Has(capability) {
		return nil, fmt.Errorf("definition %q does not declare capability %#x", name, uint(capability))
	}

	if def.EffectiveScope() == container.ScopeSingleton {
		e.mu.Lock()
		if instance, cached := e.singletons[name]; cached {
			e.mu.Unlock()
			return instance, nil
		}
		e.mu.Unlock()
	}

	instance, err := e.create(name, def)
	if err != nil {
		return nil, err
	}

	if def.EffectiveScope() == container.ScopeSingleton {
		e.mu.Lock()
		// A recursive Instantiate may have won the race; first one sticks.
		if existing, cached := e.singletons[name]; cached {
			instance = existing
		} else {
			e.singletons[name] = instance
		}
		e.mu.Unlock()
	}

	return instance, nil
}

// create constructs the instance and runs it through the interceptor chain.
func (e *Engine) create(name string, def *container.Definition) (any, error) {
	ctor, err := e.constructorFor(def)
	if err != nil {
		return nil, fmt.Errorf("instantiating %q: %w", name, err)
	}

	chain := e.interceptorSnapshot()

	// Merged-definition extensions see the definition before construction.
	for _, ic := range chain {
		if mp, ok := ic.(container.MergedDefinitionProcessor); ok {
			mp.ProcessMergedDefinition(name, def)
		}
	}

	instance := ctor()
	log.Debug(log.CatRegistry, "instantiated component", "name", name, "type", def.Type)

	for _, ic := range chain {
		next, err := ic.BeforeInit(name, instance)
		if err != nil {
			return nil, fmt.Errorf("before-init interceptor failed for %q: %w", name, err)
		}
		if next != nil {
			instance = next
		}
	}
	for _, ic := range chain {
		next, err := ic.AfterInit(name, instance)
		if err != nil {
			return nil, fmt.Errorf("after-init interceptor failed for %q: %w", name, err)
		}
		if next != nil {
			instance = next
		}
	}

	return instance, nil
}

func (e *Engine) constructorFor(def *container.Definition) (func() any, error) {
	if e.catalog != nil {
		if ctor, ok := e.catalog.Constructor(def.Type); ok {
			return ctor, nil
		}
	}
	if ctor, ok := container.InfrastructureConstructor(def.Type); ok {
		return ctor, nil
	}
	return nil, fmt.Errorf("no constructor for type %q", def.Type)
}

// IsTypeMatch reports whether the named definition declares capability,
// without instantiating it.
func (e *Engine) IsTypeMatch(name string, capability container.Capability) bool {
	def, ok := e.registry.Get(name)
	return ok && def.Capabilities.Has(capability)
}

// NamesByCapability enumerates definition names declaring capability, in
// discovery order.
func (e *Engine) NamesByCapability(capability container.Capability) []string {
	return e.registry.NamesByCapability(capability)
}

// InterceptorCount returns the number of installed creation interceptors.
func (e *Engine) InterceptorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.interceptors)
}

// AddInterceptor appends an interceptor to the chain. Re-adding an installed
// interceptor moves it to the end.
func (e *Engine) AddInterceptor(ic container.CreationInterceptor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.interceptors {
		if sameInterceptor(existing, ic) {
			e.interceptors = append(e.interceptors[:i], e.interceptors[i+1:]...)
			break
		}
	}
	e.interceptors = append(e.interceptors, ic)
}

// sameInterceptor compares interceptor identity without panicking on
// incomparable dynamic types (a plain == on the interface values would).
func sameInterceptor(a, b container.CreationInterceptor) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta != nil && !ta.Comparable() {
		return false
	}
	return a == b
}

// Interceptors returns a copy of the current interceptor chain, in order.
func (e *Engine) Interceptors() []container.CreationInterceptor {
	return e.interceptorSnapshot()
}

func (e *Engine) interceptorSnapshot() []container.CreationInterceptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]container.CreationInterceptor, len(e.interceptors))
	copy(out, e.interceptors)
	return out
}

// ClearMetadataCache invalidates derived definition metadata.
func (e *Engine) ClearMetadataCache() {
	e.mu.Lock()
	e.cacheClears++
	e.mu.Unlock()
	e.registry.ClearMetadataCache()
}

// MetadataCacheClears reports how many times the cache has been invalidated.
func (e *Engine) MetadataCacheClears() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cacheClears
}

// Singleton returns the cached singleton for name, if one has been created.
func (e *Engine) Singleton(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	instance, ok := e.singletons[name]
	return instance, ok
}
