// Package container implements the bootstrap core of the keystone dependency
// injection container: the definition registry that holds component metadata
// during startup, and the orchestrator that runs registry-mutating,
// factory-mutating and instance-intercepting extensions in phase order before
// the instantiation engine takes over.
package container

// Scope describes the lifetime of a component instance.
type Scope string

const (
	// ScopeSingleton shares a single instance across the container.
	ScopeSingleton Scope = "singleton"
	// ScopePrototype creates a new instance per resolution.
	ScopePrototype Scope = "prototype"
)

// Role distinguishes user components from container plumbing.
type Role int

const (
	// RoleApplication marks a component that belongs to the user's application.
	RoleApplication Role = iota
	// RoleInfrastructure marks a component the container registers for its own
	// use. Infrastructure components are exempt from the early-creation
	// diagnostic emitted while interceptors are still being installed.
	RoleInfrastructure
)

func (r Role) String() string {
	switch r {
	case RoleInfrastructure:
		return "infrastructure"
	default:
		return "application"
	}
}

// ProxyMode records the scoped-proxy decision made for a scanned component.
// The proxy itself is created by the instantiation engine; the bootstrap core
// only records which wrapping was requested.
type ProxyMode string

const (
	ProxyNone        ProxyMode = "none"
	ProxyInterfaces  ProxyMode = "interfaces"
	ProxyTargetClass ProxyMode = "targetClass"
)

// Capability tags what a definition's type can do, resolved once at
// registration time so the registry can answer capability queries without
// instantiating anything.
type Capability uint16

const (
	// CapRegistryProcessor marks a registry-mutating extension.
	CapRegistryProcessor Capability = 1 << iota
	// CapFactoryProcessor marks a factory-mutating extension.
	CapFactoryProcessor
	// CapCreationInterceptor marks an instance-intercepting extension.
	CapCreationInterceptor
	// CapMergedDefinition marks an interceptor that also processes merged
	// definitions. Such interceptors are re-registered after every other tier.
	CapMergedDefinition
	// CapPriorityOrdered places an extension in the highest ordering tier.
	// A priority-ordered type matches CapOrdered too; engines and
	// registrations carry both bits.
	CapPriorityOrdered
	// CapOrdered places an extension in the middle ordering tier.
	CapOrdered
	// CapEventListener marks a type whose instances the listener detector
	// should record.
	CapEventListener
)

// Has reports whether every capability in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// ParseCapability resolves a declarative capability tag into its bitmask.
// Tags implying other capabilities resolve to the full set: a registry
// processor is always a factory processor, priority-ordered implies ordered.
func ParseCapability(tag string) (Capability, bool) {
	switch tag {
	case "registryProcessor":
		return CapRegistryProcessor | CapFactoryProcessor, true
	case "factoryProcessor":
		return CapFactoryProcessor, true
	case "creationInterceptor":
		return CapCreationInterceptor, true
	case "mergedDefinition":
		return CapMergedDefinition, true
	case "priorityOrdered":
		return CapPriorityOrdered | CapOrdered, true
	case "ordered":
		return CapOrdered, true
	case "eventListener":
		return CapEventListener, true
	default:
		return 0, false
	}
}

// Definition is the metadata record for one container-managed component.
// The name is assigned at registration and never changes; the remaining
// fields stay mutable until the registry is handed to the instantiation
// engine.
type Definition struct {
	// Type is the fully-qualified type name the definition constructs.
	Type string

	// Scope defaults to singleton when empty.
	Scope Scope

	// Role separates application components from container infrastructure.
	Role Role

	// Capabilities is the capability set of Type, resolved at registration.
	Capabilities Capability

	// ProxyMode is the scoped-proxy wrapping requested for this component.
	ProxyMode ProxyMode

	// Source is where the definition came from, for diagnostics only.
	Source string

	// Order is the declared order value used by the default comparator when
	// the instance itself does not implement Ordered.
	Order int

	// ConstructorArgs and Properties are construction hints. The bootstrap
	// core never interprets them; they are carried for the instantiation
	// engine.
	ConstructorArgs []any
	Properties      map[string]any
}

// Clone returns a deep-enough copy for safe mutation by extensions.
func (d *Definition) Clone() *Definition {
	out := *d
	if d.ConstructorArgs != nil {
		out.ConstructorArgs = append([]any(nil), d.ConstructorArgs...)
	}
	if d.Properties != nil {
		out.Properties = make(map[string]any, len(d.Properties))
		for k, v := range d.Properties {
			out.Properties[k] = v
		}
	}
	return &out
}

// EffectiveScope returns the scope, defaulting to singleton.
func (d *Definition) EffectiveScope() Scope {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}

// Equivalent reports whether two definitions describe the same component.
// It compares the identity surface (type, effective scope, role, source,
// capabilities, proxy mode), not the construction hints.
func (d *Definition) Equivalent(other *Definition) bool {
	return d.Type == other.Type &&
		d.EffectiveScope() == other.EffectiveScope() &&
		d.Role == other.Role &&
		d.Source == other.Source &&
		d.Capabilities == other.Capabilities &&
		d.ProxyMode == other.ProxyMode
}

// Holder pairs a definition with the name it was registered under.
// Scanning returns holders so callers can report what was registered.
type Holder struct {
	Name       string
	Definition *Definition
}
