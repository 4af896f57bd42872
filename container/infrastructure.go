package container

import (
	"github.com/zjrosen/keystone/internal/log"
)

// Well-known names of the infrastructure extensions registered when
// annotation config is enabled. The orchestrator treats them like any other
// extension; the fixed names exist so bootstrap front-ends and tools can
// recognize them.
const (
	ConfigurationProcessorName   = "keystone.internal.configurationProcessor"
	AutowireProcessorName        = "keystone.internal.autowireProcessor"
	CommonLifecycleProcessorName = "keystone.internal.commonLifecycleProcessor"
	EventListenerProcessorName   = "keystone.internal.eventListenerProcessor"
	EventListenerFactoryName     = "keystone.internal.eventListenerFactory"
)

// Type names backing the infrastructure definitions.
const (
	configurationProcessorType   = "keystone/container.ConfigurationProcessor"
	autowireProcessorType        = "keystone/container.AutowireProcessor"
	commonLifecycleProcessorType = "keystone/container.CommonLifecycleProcessor"
	eventListenerProcessorType   = "keystone/container.EventListenerProcessor"
	eventListenerFactoryType     = "keystone/container.EventListenerFactory"
)

// InfrastructureDefinitions builds the default extension-set table. The
// result is a fresh copy each call; callers may mutate it.
func InfrastructureDefinitions() []Holder {
	return []Holder{
		{
			Name: ConfigurationProcessorName,
			Definition: &Definition{
				Type:         configurationProcessorType,
				Role:         RoleInfrastructure,
				Capabilities: CapRegistryProcessor | CapFactoryProcessor | CapPriorityOrdered | CapOrdered,
			},
		},
		{
			Name: AutowireProcessorName,
			Definition: &Definition{
				Type:         autowireProcessorType,
				Role:         RoleInfrastructure,
				Capabilities: CapCreationInterceptor | CapMergedDefinition | CapOrdered,
			},
		},
		{
			Name: CommonLifecycleProcessorName,
			Definition: &Definition{
				Type:         commonLifecycleProcessorType,
				Role:         RoleInfrastructure,
				Capabilities: CapCreationInterceptor | CapMergedDefinition | CapOrdered,
			},
		},
		{
			Name: EventListenerProcessorName,
			Definition: &Definition{
				Type:         eventListenerProcessorType,
				Role:         RoleInfrastructure,
				Capabilities: CapFactoryProcessor,
			},
		},
		{
			Name: EventListenerFactoryName,
			Definition: &Definition{
				Type: eventListenerFactoryType,
				Role: RoleInfrastructure,
			},
		},
	}
}

// RegisterInfrastructureProcessors registers the default extension set into
// the registry, skipping names already present, and returns the holders it
// actually registered.
func RegisterInfrastructureProcessors(registry DefinitionRegistry) ([]Holder, error) {
	var registered []Holder
	for _, h := range InfrastructureDefinitions() {
		if registry.Has(h.Name) {
			continue
		}
		if err := registry.Register(h.Name, h.Definition); err != nil {
			return registered, err
		}
		registered = append(registered, h)
	}
	if len(registered) > 0 {
		log.Debug(log.CatRegistry, "registered infrastructure extension set", "count", len(registered))
	}
	return registered, nil
}

// InfrastructureConstructor returns the constructor for an infrastructure
// type name, so instantiation engines can build the default extension set
// without special-casing it.
func InfrastructureConstructor(typeName string) (func() any, bool) {
	switch typeName {
	case configurationProcessorType:
		return func() any { return &ConfigurationProcessor{} }, true
	case autowireProcessorType:
		return func() any { return &AutowireProcessor{} }, true
	case commonLifecycleProcessorType:
		return func() any { return &CommonLifecycleProcessor{} }, true
	case eventListenerProcessorType:
		return func() any { return &EventListenerProcessor{} }, true
	case eventListenerFactoryType:
		return func() any { return &EventListenerFactory{} }, true
	default:
		return nil, false
	}
}

// ConfigurationProcessor is the registry-mutating infrastructure extension.
// It runs in the priority tier, before any user extension, and normalizes
// scanned definitions: empty scopes become singleton and definitions without
// an explicit role stay application-scoped.
type ConfigurationProcessor struct{}

func (p *ConfigurationProcessor) Order() int      { return 0 }
func (p *ConfigurationProcessor) PriorityOrdered() {}

func (p *ConfigurationProcessor) ProcessRegistry(registry DefinitionRegistry) error {
	for _, name := range registry.Names() {
		def, ok := registry.Get(name)
		if !ok {
			continue
		}
		if def.Scope == "" {
			def.Scope = ScopeSingleton
		}
	}
	return nil
}

func (p *ConfigurationProcessor) ProcessFactory(engine Engine) error {
	return nil
}

// AutowireProcessor is the instance-intercepting infrastructure extension
// responsible for dependency injection into created instances. The wiring
// itself belongs to the instantiation engine; the bootstrap core only
// guarantees the interceptor is installed, in the merged-definition tier.
type AutowireProcessor struct{}

func (p *AutowireProcessor) Order() int { return 100 }

func (p *AutowireProcessor) BeforeInit(name string, instance any) (any, error) {
	return instance, nil
}

func (p *AutowireProcessor) AfterInit(name string, instance any) (any, error) {
	return instance, nil
}

func (p *AutowireProcessor) ProcessMergedDefinition(name string, def *Definition) {
	log.Debug(log.CatOrch, "merged definition seen by autowire processor", "name", name, "type", def.Type)
}

// CommonLifecycleProcessor is the instance-intercepting infrastructure
// extension handling init/destroy lifecycle callbacks. Also installed in the
// merged-definition tier.
type CommonLifecycleProcessor struct{}

func (p *CommonLifecycleProcessor) Order() int { return 200 }

func (p *CommonLifecycleProcessor) BeforeInit(name string, instance any) (any, error) {
	return instance, nil
}

func (p *CommonLifecycleProcessor) AfterInit(name string, instance any) (any, error) {
	return instance, nil
}

func (p *CommonLifecycleProcessor) ProcessMergedDefinition(name string, def *Definition) {
}

// EventListenerProcessor is the factory-mutating infrastructure extension.
// It marks every definition whose type can receive events so the listener
// detector and the (external) dispatch layer can find them by name.
type EventListenerProcessor struct{}

func (p *EventListenerProcessor) ProcessFactory(engine Engine) error {
	names := engine.NamesByCapability(CapEventListener)
	for _, name := range names {
		log.Debug(log.CatOrch, "definition is listener-capable", "name", name)
	}
	return nil
}

// EventListenerFactory is a plain infrastructure component consulted by the
// dispatch layer when listener instances are created. It carries no bootstrap
// hook; it exists so the dispatch layer finds it under a well-known name.
type EventListenerFactory struct{}
