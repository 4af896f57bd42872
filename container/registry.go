package container

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/zjrosen/keystone/internal/cachemanager"
	"github.com/zjrosen/keystone/internal/log"
)

// DefinitionRegistry stores component definitions during bootstrap, keyed by
// unique name. It is not safe for concurrent mutation; bootstrap is
// single-threaded by contract and the registry becomes read-mostly once the
// instantiation engine takes over.
type DefinitionRegistry interface {
	// Register stores a definition under name. Behavior on duplicate names
	// follows the overwrite policy: with override allowed the new definition
	// replaces the old one in place, otherwise re-registering an identical
	// definition is a no-op and a conflicting one is an error.
	Register(name string, def *Definition) error

	// Get retrieves a definition by name.
	Get(name string) (*Definition, bool)

	// Has reports whether a definition is registered under name.
	Has(name string) bool

	// Remove deletes a definition. Returns an error if the name is unknown.
	Remove(name string) error

	// Names returns all registered names in discovery order.
	Names() []string

	// NamesByCapability returns the names whose definitions carry every
	// capability in cap, in discovery order. The orchestrator re-queries
	// this between passes because extension hooks may register further
	// definitions mid-run.
	NamesByCapability(cap Capability) []string

	// ClearMetadataCache drops cached derived metadata. Called after
	// registry-mutating extensions have run, since they may have altered
	// definitions backing the cached query results.
	ClearMetadataCache()
}

// InMemoryRegistry is the default DefinitionRegistry implementation.
type InMemoryRegistry struct {
	mu            sync.RWMutex
	definitions   map[string]*Definition
	order         []string
	allowOverride bool

	// Capability query results are cached; any mutation flushes the cache.
	queryCache cachemanager.CacheManager[string, []string]
}

// NewInMemoryRegistry creates an empty registry with overriding allowed,
// matching the default bootstrap policy.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		definitions:   make(map[string]*Definition),
		allowOverride: true,
		queryCache: cachemanager.NewInMemoryCacheManager[string, []string](
			"registry-capability-query", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
	}
}

// SetAllowOverride controls the duplicate-name policy.
func (r *InMemoryRegistry) SetAllowOverride(allow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowOverride = allow
}

// Register stores a definition under name.
func (r *InMemoryRegistry) Register(name string, def *Definition) error {
	if name == "" {
		return fmt.Errorf("definition name cannot be empty")
	}
	if def == nil {
		return fmt.Errorf("definition for %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.definitions[name]; ok {
		if !r.allowOverride {
			if sameDefinition(existing, def) {
				return nil
			}
			return fmt.Errorf("definition %q already registered for type %s (override disabled)", name, existing.Type)
		}
		log.Debug(log.CatRegistry, "overriding definition", "name", name, "old_type", existing.Type, "new_type", def.Type)
		// Replaces in place: discovery order position is kept.
		r.definitions[name] = def
		r.flushQueryCache()
		return nil
	}

	r.definitions[name] = def
	r.order = append(r.order, name)
	r.flushQueryCache()
	log.Debug(log.CatRegistry, "registered definition", "name", name, "type", def.Type, "role", def.Role)
	return nil
}

// Get retrieves a definition by name.
func (r *InMemoryRegistry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	return def, ok
}

// Has reports whether a definition is registered under name.
func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.definitions[name]
	return ok
}

// Remove deletes a definition.
func (r *InMemoryRegistry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.definitions[name]; !ok {
		return fmt.Errorf("no definition registered under %q", name)
	}
	delete(r.definitions, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.flushQueryCache()
	return nil
}

// Names returns all registered names in discovery order.
func (r *InMemoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// NamesByCapability returns names carrying every capability in cap,
// in discovery order.
func (r *InMemoryRegistry) NamesByCapability(cap Capability) []string {
	key := strconv.FormatUint(uint64(cap), 16)
	if cached, ok := r.queryCache.Get(context.Background(), key); ok {
		return append([]string(nil), cached...)
	}

	r.mu.RLock()
	var names []string
	for _, name := range r.order {
		if r.definitions[name].Capabilities.Has(cap) {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	r.queryCache.Set(context.Background(), key, names, cachemanager.DefaultExpiration)
	return append([]string(nil), names...)
}

// ClearMetadataCache drops cached capability query results.
func (r *InMemoryRegistry) ClearMetadataCache() {
	r.flushQueryCache()
}

// Count returns the number of registered definitions.
func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.definitions)
}

func (r *InMemoryRegistry) flushQueryCache() {
	_ = r.queryCache.Flush(context.Background())
}

// sameDefinition reports whether two definitions describe the same component,
// which makes a rescan re-registration a harmless no-op.
func sameDefinition(a, b *Definition) bool {
	return a.Equivalent(b)
}
