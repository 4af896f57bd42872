package container

// FactoryProcessor is a factory-mutating extension: it may alter finalized
// definition metadata and property values after all definitions are loaded,
// but before any application component is instantiated. By convention it does
// not add new definitions; ones it adds anyway are only discovered by a
// subsequent orchestration run.
type FactoryProcessor interface {
	ProcessFactory(engine Engine) error
}

// RegistryProcessor is a registry-mutating extension: it runs before
// FactoryProcessors and may add, alter or remove definitions, including
// definitions of further extensions. The orchestrator guarantees every
// RegistryProcessor runs exactly once per run, even ones registered
// mid-run by other RegistryProcessors.
type RegistryProcessor interface {
	FactoryProcessor
	ProcessRegistry(registry DefinitionRegistry) error
}

// CreationInterceptor is an instance-intercepting extension. The orchestrator
// only installs interceptors onto the engine; the engine invokes them around
// every component it creates.
type CreationInterceptor interface {
	// BeforeInit runs before a new instance is initialized. It may return a
	// replacement instance.
	BeforeInit(name string, instance any) (any, error)

	// AfterInit runs after initialization. It may wrap or replace the
	// instance, e.g. with a proxy.
	AfterInit(name string, instance any) (any, error)
}

// MergedDefinitionProcessor is implemented by interceptors that also want to
// see the merged definition of each component before creation. Interceptors
// with this capability are re-registered after every other tier so they
// observe proxies installed by earlier interceptors.
type MergedDefinitionProcessor interface {
	ProcessMergedDefinition(name string, def *Definition)
}

// EventListener marks instances the listener detector records during
// creation. Event dispatch itself is not a bootstrap concern; only the
// detection hook is installed here.
type EventListener interface {
	OnEvent(event any)
}
