package container

// Engine is the narrow view of the external instantiation engine consumed by
// the bootstrap core. Given a registered definition the engine can produce a
// live instance, answer capability questions without forcing instantiation,
// and hold the interceptor chain consulted around every component creation.
type Engine interface {
	// Instantiate materializes the named component, asserting it fulfils
	// capability. May recursively trigger dependency resolution, which can
	// register or create further components mid-call.
	Instantiate(name string, capability Capability) (any, error)

	// IsTypeMatch reports whether the named definition's type fulfils
	// capability, without instantiating it.
	IsTypeMatch(name string, capability Capability) bool

	// NamesByCapability enumerates registered definition names whose types
	// fulfil capability, in discovery order.
	NamesByCapability(capability Capability) []string

	// InterceptorCount returns the number of creation interceptors installed
	// so far.
	InterceptorCount() int

	// AddInterceptor appends a creation interceptor to the chain. Adding an
	// interceptor that is already installed moves it to the end of the chain.
	AddInterceptor(ic CreationInterceptor)
}

// RegistryAware is implemented by engines whose definition store supports
// direct mutation during bootstrap. When the engine is not registry-aware the
// orchestrator skips the registry-mutation phase entirely and runs the
// supplied extensions as plain factory-mutating ones.
type RegistryAware interface {
	DefinitionRegistry() DefinitionRegistry
}

// MetadataCache is implemented by engines that cache derived definition
// metadata. The orchestrator invalidates it after registry-mutating
// extensions have run.
type MetadataCache interface {
	ClearMetadataCache()
}
