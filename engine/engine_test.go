package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/keystone/container"
	"github.com/zjrosen/keystone/scan"
)

type widget struct{ serial int }

func newFixture(t *testing.T) (*Engine, *container.InMemoryRegistry, *scan.Catalog) {
	t.Helper()
	registry := container.NewInMemoryRegistry()
	catalog := scan.NewCatalog()
	return New(registry, catalog), registry, catalog
}

func TestEngine_InstantiateSingletonOnce(t *testing.T) {
	eng, registry, catalog := newFixture(t)

	serial := 0
	catalog.RegisterConstructor("app.Widget", func() any {
		serial++
		return &widget{serial: serial}
	})
	require.NoError(t, registry.Register("widget", &container.Definition{Type: "app.Widget"}))

	first, err := eng.Instantiate("widget", 0)
	require.NoError(t, err)
	second, err := eng.Instantiate("widget", 0)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, serial, "singleton constructed exactly once")

	cached, ok := eng.Singleton("widget")
	require.True(t, ok)
	require.Same(t, first, cached)
}

func TestEngine_InstantiatePrototypeFresh(t *testing.T) {
	eng, registry, catalog := newFixture(t)

	serial := 0
	catalog.RegisterConstructor("app.Widget", func() any {
		serial++
		return &widget{serial: serial}
	})
	require.NoError(t, registry.Register("widget", &container.Definition{
		Type:  "app.Widget",
		Scope: container.ScopePrototype,
	}))

	first, err := eng.Instantiate("widget", 0)
	require.NoError(t, err)
	second, err := eng.Instantiate("widget", 0)
	require.NoError(t, err)
	require.NotSame(t, first, second)

	_, ok := eng.Singleton("widget")
	require.False(t, ok, "prototypes are never cached")
}

func TestEngine_InstantiateUnknownName(t *testing.T) {
	eng, _, _ := newFixture(t)
	_, err := eng.Instantiate("ghost", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no definition")
}

func TestEngine_InstantiateCapabilityMismatch(t *testing.T) {
	eng, registry, catalog := newFixture(t)
	catalog.RegisterConstructor("app.Widget", func() any { return &widget{} })
	require.NoError(t, registry.Register("widget", &container.Definition{Type: "app.Widget"}))

	_, err := eng.Instantiate("widget", container.CapRegistryProcessor)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not declare capability")
}

func TestEngine_InstantiateMissingConstructor(t *testing.T) {
	eng, registry, _ := newFixture(t)
	require.NoError(t, registry.Register("widget", &container.Definition{Type: "app.Unbuildable"}))

	_, err := eng.Instantiate("widget", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no constructor")
}

func TestEngine_InfrastructureConstructorFallback(t *testing.T) {
	eng, registry, _ := newFixture(t)
	_, err := container.RegisterInfrastructureProcessors(registry)
	require.NoError(t, err)

	inst, err := eng.Instantiate(container.AutowireProcessorName, container.CapCreationInterceptor)
	require.NoError(t, err)
	require.IsType(t, &container.AutowireProcessor{}, inst)
}

func TestEngine_IsTypeMatchAndNamesByCapability(t *testing.T) {
	eng, registry, _ := newFixture(t)
	require.NoError(t, registry.Register("rp", &container.Definition{
		Type:         "app.RP",
		Capabilities: container.CapRegistryProcessor | container.CapFactoryProcessor,
	}))
	require.NoError(t, registry.Register("plain", &container.Definition{Type: "app.Plain"}))

	require.True(t, eng.IsTypeMatch("rp", container.CapRegistryProcessor))
	require.False(t, eng.IsTypeMatch("plain", container.CapRegistryProcessor))
	require.False(t, eng.IsTypeMatch("ghost", container.CapRegistryProcessor))

	require.Equal(t, []string{"rp"}, eng.NamesByCapability(container.CapFactoryProcessor))
}

// chainInterceptor records the order hooks fire in and optionally wraps.
type chainInterceptor struct {
	name   string
	events *[]string
	fail   error
}

func (i *chainInterceptor) BeforeInit(name string, instance any) (any, error) {
	*i.events = append(*i.events, i.name+":before:"+name)
	return instance, i.fail
}

func (i *chainInterceptor) AfterInit(name string, instance any) (any, error) {
	*i.events = append(*i.events, i.name+":after:"+name)
	return instance, nil
}

func (i *chainInterceptor) ProcessMergedDefinition(name string, def *container.Definition) {
	*i.events = append(*i.events, i.name+":merged:"+name)
}

func TestEngine_InterceptorChainAroundCreation(t *testing.T) {
	eng, registry, catalog := newFixture(t)
	catalog.RegisterConstructor("app.Widget", func() any { return &widget{} })
	require.NoError(t, registry.Register("widget", &container.Definition{Type: "app.Widget"}))

	var events []string
	eng.AddInterceptor(&chainInterceptor{name: "a", events: &events})
	eng.AddInterceptor(&chainInterceptor{name: "b", events: &events})

	_, err := eng.Instantiate("widget", 0)
	require.NoError(t, err)

	require.Equal(t, []string{
		"a:merged:widget",
		"b:merged:widget",
		"a:before:widget",
		"b:before:widget",
		"a:after:widget",
		"b:after:widget",
	}, events, "merged hooks precede construction, then before, then after, each in chain order")
}

func TestEngine_InterceptorErrorAbortsCreation(t *testing.T) {
	eng, registry, catalog := newFixture(t)
	catalog.RegisterConstructor("app.Widget", func() any { return &widget{} })
	require.NoError(t, registry.Register("widget", &container.Definition{Type: "app.Widget"}))

	var events []string
	eng.AddInterceptor(&chainInterceptor{name: "a", events: &events, fail: fmt.Errorf("veto")})

	_, err := eng.Instantiate("widget", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "veto")

	_, cached := eng.Singleton("widget")
	require.False(t, cached, "a failed creation is not cached")
}

func TestEngine_AddInterceptorMovesToEnd(t *testing.T) {
	eng, _, _ := newFixture(t)
	var events []string
	a := &chainInterceptor{name: "a", events: &events}
	b := &chainInterceptor{name: "b", events: &events}

	eng.AddInterceptor(a)
	eng.AddInterceptor(b)
	require.Equal(t, 2, eng.InterceptorCount())

	eng.AddInterceptor(a)
	require.Equal(t, 2, eng.InterceptorCount(), "re-adding does not duplicate")

	chain := eng.Interceptors()
	require.Same(t, b, chain[0])
	require.Same(t, a, chain[1], "re-added interceptor moved to the end")
}

// valueInterceptor is deliberately a non-pointer struct with a slice field,
// so its dynamic type is not comparable with ==.
type valueInterceptor struct {
	tags []string
}

func (valueInterceptor) BeforeInit(name string, instance any) (any, error) { return nil, nil }
func (valueInterceptor) AfterInit(name string, instance any) (any, error)  { return nil, nil }

func TestEngine_AddInterceptorToleratesIncomparableTypes(t *testing.T) {
	eng, _, _ := newFixture(t)
	var events []string
	a := &chainInterceptor{name: "a", events: &events}

	eng.AddInterceptor(a)
	require.NotPanics(t, func() {
		eng.AddInterceptor(valueInterceptor{tags: []string{"x"}})
	})
	require.Equal(t, 2, eng.InterceptorCount())

	// Move-to-end for pointer interceptors still works with value
	// interceptors in the chain.
	require.NotPanics(t, func() {
		eng.AddInterceptor(a)
	})
	require.Equal(t, 2, eng.InterceptorCount())
	chain := eng.Interceptors()
	require.Same(t, a, chain[1])
}

func TestEngine_ClearMetadataCache(t *testing.T) {
	eng, _, _ := newFixture(t)
	require.Equal(t, 0, eng.MetadataCacheClears())
	eng.ClearMetadataCache()
	eng.ClearMetadataCache()
	require.Equal(t, 2, eng.MetadataCacheClears())
}

func TestEngine_DrivesOrchestratorEndToEnd(t *testing.T) {
	eng, registry, catalog := newFixture(t)
	_, err := container.RegisterInfrastructureProcessors(registry)
	require.NoError(t, err)

	catalog.RegisterConstructor("app.Component", func() any { return &widget{} })
	require.NoError(t, registry.Register("component", &container.Definition{Type: "app.Component"}))

	orch := container.NewOrchestrator(eng)
	require.NoError(t, orch.Run(context.Background(), nil))

	require.Equal(t, 4, eng.InterceptorCount(), "checker, autowire, lifecycle, listener detector")
	require.GreaterOrEqual(t, eng.MetadataCacheClears(), 2)

	def, ok := registry.Get("component")
	require.True(t, ok)
	require.Equal(t, container.ScopeSingleton, def.Scope)
}
