package scan

import "sync"

// Catalog maps type names to zero-argument constructors, standing in for
// reflective class loading: custom filters and pluggable strategies are
// looked up here by name. It can also carry the set of known type names (the
// "type universe") so filter expressions referencing unknown annotations or
// types are caught at configuration time.
type Catalog struct {
	mu    sync.RWMutex
	ctors map[string]func() any
	types map[string]struct{}
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		ctors: make(map[string]func() any),
		types: make(map[string]struct{}),
	}
}

// RegisterConstructor registers a named zero-argument constructor. The name
// also becomes a known type.
func (c *Catalog) RegisterConstructor(name string, ctor func() any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctors[name] = ctor
	c.types[name] = struct{}{}
}

// Constructor looks up a constructor by name.
func (c *Catalog) Constructor(name string) (func() any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctor, ok := c.ctors[name]
	return ctor, ok
}

// RegisterTypes adds names to the known type universe without constructors.
func (c *Catalog) RegisterTypes(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		c.types[n] = struct{}{}
	}
}

// KnownType reports whether name is in the type universe.
func (c *Catalog) KnownType(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[name]
	return ok
}

// HasTypeUniverse reports whether any types were registered. With an empty
// universe, name resolution checks are skipped: there is nothing to resolve
// against.
func (c *Catalog) HasTypeUniverse() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types) > 0
}
