package container

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zjrosen/keystone/internal/log"
)

// interceptorChecker is installed before any discovered interceptor. A
// component created while the chain is still shorter than the target count
// was not seen by every interceptor (it cannot be auto-proxied, for example),
// which is worth a diagnostic unless the component is container
// infrastructure or itself an interceptor.
type interceptorChecker struct {
	engine      Engine
	targetCount int
}

func newInterceptorChecker(engine Engine, targetCount int) *interceptorChecker {
	return &interceptorChecker{engine: engine, targetCount: targetCount}
}

func (c *interceptorChecker) BeforeInit(name string, instance any) (any, error) {
	return instance, nil
}

func (c *interceptorChecker) AfterInit(name string, instance any) (any, error) {
	if _, isInterceptor := instance.(CreationInterceptor); isInterceptor {
		return instance, nil
	}
	if c.isInfrastructure(name) {
		return instance, nil
	}
	if c.engine.InterceptorCount() < c.targetCount {
		log.Info(log.CatOrch, "component created before all creation interceptors were installed; it is not eligible for the full interceptor chain",
			"name", name, "type", fmt.Sprintf("%T", instance))
	}
	return instance, nil
}

func (c *interceptorChecker) isInfrastructure(name string) bool {
	ra, ok := c.engine.(RegistryAware)
	if !ok {
		return false
	}
	def, found := ra.DefinitionRegistry().Get(name)
	return found && def.Role == RoleInfrastructure
}

// listenerDetector is appended after every other interceptor, including the
// re-registered merged-definition tier, so it observes the final (possibly
// wrapped) instance of every component and records the ones that can receive
// events.
type listenerDetector struct {
	engine Engine

	mu        sync.Mutex
	listeners map[string]struct{}
}

func newListenerDetector(engine Engine) *listenerDetector {
	return &listenerDetector{
		engine:    engine,
		listeners: make(map[string]struct{}),
	}
}

func (d *listenerDetector) BeforeInit(name string, instance any) (any, error) {
	return instance, nil
}

func (d *listenerDetector) AfterInit(name string, instance any) (any, error) {
	if _, ok := instance.(EventListener); ok {
		d.mu.Lock()
		d.listeners[name] = struct{}{}
		d.mu.Unlock()
		log.Debug(log.CatOrch, "detected event listener", "name", name)
	}
	return instance, nil
}

// Listeners returns the names of detected listener components, sorted.
func (d *listenerDetector) Listeners() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.listeners))
	for name := range d.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
