package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/keystone/internal/log"
	"github.com/zjrosen/keystone/internal/tracing"
)

// maxFixpointPasses bounds the re-discovery loop for registry-mutating
// extensions. The loop normally terminates as soon as a full pass finds no
// unprocessed extension; the bound exists so a misbehaving extension that
// keeps registering new extensions fails loudly instead of hanging bootstrap.
const maxFixpointPasses = 1000

// Orchestrator runs the three post-processor phases against an instantiation
// engine: registry-mutating extensions (with fixpoint re-discovery), then
// factory-mutating extensions, then registration of creation interceptors.
//
// Orchestration is strictly single-threaded. Mutating the engine's registry
// from a hook is expected; touching it concurrently is not.
type Orchestrator struct {
	engine Engine
	tracer trace.Tracer
	runID  string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracer attaches an OpenTelemetry tracer; one span is emitted per phase.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// NewOrchestrator creates an orchestrator bound to an engine.
func NewOrchestrator(engine Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine: engine,
		tracer: noop.NewTracerProvider().Tracer("noop"),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunID identifies this orchestration run in logs and spans.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes all phases: factory processors (registry-mutating first, then
// factory-mutating), then interceptor registration. A failure in any phase
// aborts immediately; nothing already applied is rolled back.
func (o *Orchestrator) Run(ctx context.Context, initial []FactoryProcessor) error {
	ctx, span := o.tracer.Start(ctx, tracing.SpanOrchestrate,
		trace.WithAttributes(attribute.String(tracing.AttrRunID, o.runID)))
	defer span.End()

	if err := o.InvokeFactoryProcessors(ctx, initial); err != nil {
		span.RecordError(err)
		return err
	}
	if err := o.RegisterCreationInterceptors(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// InvokeFactoryProcessors runs the registry-mutation and factory-mutation
// phases. The initial slice is the externally supplied extension list; its
// registry-mutating members run first, in supplied order, before any
// extension discovered through the registry.
func (o *Orchestrator) InvokeFactoryProcessors(ctx context.Context, initial []FactoryProcessor) error {
	// Names already invoked in this run, across both hook kinds.
	processed := make(map[string]struct{})

	if ra, ok := o.engine.(RegistryAware); ok {
		if err := o.invokeRegistryPhase(ctx, ra.DefinitionRegistry(), initial, processed); err != nil {
			return err
		}
	} else {
		// Engine without a mutable registry: the supplied list runs as plain
		// factory processors.
		if err := o.invokeFactoryHooksPlain(initial); err != nil {
			return err
		}
	}

	return o.invokeDiscoveredFactoryProcessors(ctx, processed)
}

// invokeRegistryPhase runs every registry-mutating extension exactly once:
// the supplied ones first, then three increasingly inclusive sweeps over the
// registry (priority-ordered, ordered, the rest), the last iterated to a
// fixpoint. Afterwards the factory hooks of everything invoked so far run in
// accumulation order.
func (o *Orchestrator) invokeRegistryPhase(ctx context.Context, registry DefinitionRegistry, initial []FactoryProcessor, processed map[string]struct{}) (err error) {
	_, span := o.startPhase(ctx, tracing.SpanRegistryPhase)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	var registryProcessors []RegistryProcessor
	var regularProcessors []FactoryProcessor

	// Supplied extensions first: registry-mutating ones are invoked
	// immediately in supplied order, the rest wait for the factory phase.
	for _, p := range initial {
		if rp, isRegistry := p.(RegistryProcessor); isRegistry {
			if err = rp.ProcessRegistry(registry); err != nil {
				return fmt.Errorf("registry processor (supplied) %T: %w", rp, err)
			}
			registryProcessors = append(registryProcessors, rp)
		} else {
			regularProcessors = append(regularProcessors, p)
		}
	}

	// Tier 1: priority-ordered registry processors from the registry.
	current, err := o.collectRegistryProcessors(processed, func(name string) bool {
		return o.engine.IsTypeMatch(name, CapPriorityOrdered)
	})
	if err != nil {
		return err
	}
	registryProcessors = append(registryProcessors, current...)
	if err = o.invokeRegistryProcessors(current, registry); err != nil {
		return err
	}

	// Tier 2: ordered ones, re-queried because tier 1 may have added more.
	current, err = o.collectRegistryProcessors(processed, func(name string) bool {
		return o.engine.IsTypeMatch(name, CapOrdered)
	})
	if err != nil {
		return err
	}
	registryProcessors = append(registryProcessors, current...)
	if err = o.invokeRegistryProcessors(current, registry); err != nil {
		return err
	}

	// Tier 3: everything else, iterated to a fixpoint. Invoking a registry
	// processor may register further registry processors; the loop ends only
	// when a full pass discovers no new unprocessed name.
	for pass := 1; ; pass++ {
		if pass > maxFixpointPasses {
			return fmt.Errorf("registry processor fixpoint did not terminate after %d passes; unprocessed: %s",
				maxFixpointPasses, strings.Join(o.unprocessedRegistryProcessors(processed), ", "))
		}
		current, err = o.collectRegistryProcessors(processed, func(string) bool { return true })
		if err != nil {
			return err
		}
		if len(current) == 0 {
			break
		}
		log.Debug(log.CatOrch, "registry processor fixpoint pass", "run_id", o.runID, "pass", pass, "discovered", len(current))
		registryProcessors = append(registryProcessors, current...)
		if err = o.invokeRegistryProcessors(current, registry); err != nil {
			return err
		}
	}

	// Registry processors are factory processors too: run their factory
	// hooks in accumulated order, then the supplied plain ones.
	if err = o.invokeFactoryHooks(registryProcessors); err != nil {
		return err
	}
	if err = o.invokeFactoryHooksPlain(regularProcessors); err != nil {
		return err
	}

	// Mutation may have altered definitions backing cached metadata.
	o.clearMetadataCache()

	span.SetAttributes(attribute.Int(tracing.AttrProcessorCount, len(registryProcessors)+len(regularProcessors)))
	return nil
}

// invokeDiscoveredFactoryProcessors is the factory-mutation phase: every
// factory processor found in the registry that has not already run, in three
// tiers. No fixpoint here; definitions a factory processor registers are only
// picked up by a later orchestration run.
func (o *Orchestrator) invokeDiscoveredFactoryProcessors(ctx context.Context, processed map[string]struct{}) error {
	_, span := o.startPhase(ctx, tracing.SpanFactoryPhase)
	defer span.End()

	var priority []FactoryProcessor
	var orderedNames, plainNames []string

	for _, name := range o.engine.NamesByCapability(CapFactoryProcessor) {
		if _, done := processed[name]; done {
			continue
		}
		switch {
		case o.engine.IsTypeMatch(name, CapPriorityOrdered):
			fp, err := o.instantiateFactoryProcessor(name)
			if err != nil {
				span.RecordError(err)
				return err
			}
			priority = append(priority, fp)
		case o.engine.IsTypeMatch(name, CapOrdered):
			orderedNames = append(orderedNames, name)
		default:
			plainNames = append(plainNames, name)
		}
	}

	cmp := comparatorFor(o.engine)

	sortProcessors(priority, cmp)
	if err := o.invokeFactoryHooksPlain(priority); err != nil {
		span.RecordError(err)
		return err
	}

	ordered := make([]FactoryProcessor, 0, len(orderedNames))
	for _, name := range orderedNames {
		fp, err := o.instantiateFactoryProcessor(name)
		if err != nil {
			span.RecordError(err)
			return err
		}
		ordered = append(ordered, fp)
	}
	sortProcessors(ordered, cmp)
	if err := o.invokeFactoryHooksPlain(ordered); err != nil {
		span.RecordError(err)
		return err
	}

	plain := make([]FactoryProcessor, 0, len(plainNames))
	for _, name := range plainNames {
		fp, err := o.instantiateFactoryProcessor(name)
		if err != nil {
			span.RecordError(err)
			return err
		}
		plain = append(plain, fp)
	}
	if err := o.invokeFactoryHooksPlain(plain); err != nil {
		span.RecordError(err)
		return err
	}

	// Factory processors may have replaced property values and the like.
	o.clearMetadataCache()

	span.SetAttributes(attribute.Int(tracing.AttrProcessorCount, len(priority)+len(ordered)+len(plain)))
	return nil
}

// RegisterCreationInterceptors discovers every instance-intercepting
// extension, instantiates it tier by tier, and installs it onto the engine.
// Interceptors are not invoked here; the engine consults them around every
// component creation once bootstrap hands over.
func (o *Orchestrator) RegisterCreationInterceptors(ctx context.Context) error {
	_, span := o.startPhase(ctx, tracing.SpanInterceptorPhase)
	defer span.End()

	names := o.engine.NamesByCapability(CapCreationInterceptor)

	// The checker goes in first so it can report components created while the
	// chain is still incomplete. Target count: whatever is installed now,
	// plus the checker itself, plus everything about to be registered.
	target := o.engine.InterceptorCount() + 1 + len(names)
	o.engine.AddInterceptor(newInterceptorChecker(o.engine, target))

	var priority []CreationInterceptor
	var internal []CreationInterceptor
	var orderedNames, plainNames []string

	for _, name := range names {
		switch {
		case o.engine.IsTypeMatch(name, CapPriorityOrdered):
			ic, err := o.instantiateInterceptor(name)
			if err != nil {
				span.RecordError(err)
				return err
			}
			priority = append(priority, ic)
			if _, merged := ic.(MergedDefinitionProcessor); merged {
				internal = append(internal, ic)
			}
		case o.engine.IsTypeMatch(name, CapOrdered):
			orderedNames = append(orderedNames, name)
		default:
			plainNames = append(plainNames, name)
		}
	}

	cmp := comparatorFor(o.engine)

	sortProcessors(priority, cmp)
	o.installInterceptors(priority)

	ordered := make([]CreationInterceptor, 0, len(orderedNames))
	for _, name := range orderedNames {
		ic, err := o.instantiateInterceptor(name)
		if err != nil {
			span.RecordError(err)
			return err
		}
		ordered = append(ordered, ic)
		if _, merged := ic.(MergedDefinitionProcessor); merged {
			internal = append(internal, ic)
		}
	}
	sortProcessors(ordered, cmp)
	o.installInterceptors(ordered)

	plain := make([]CreationInterceptor, 0, len(plainNames))
	for _, name := range plainNames {
		ic, err := o.instantiateInterceptor(name)
		if err != nil {
			span.RecordError(err)
			return err
		}
		plain = append(plain, ic)
		if _, merged := ic.(MergedDefinitionProcessor); merged {
			internal = append(internal, ic)
		}
	}
	o.installInterceptors(plain)

	// Merged-definition interceptors are re-registered last, regardless of
	// their declared order, so they observe wrappers installed by every
	// earlier interceptor. AddInterceptor moves an existing entry to the end.
	sortProcessors(internal, cmp)
	o.installInterceptors(internal)

	// The listener detector runs after everything, including the re-registered
	// internal tier, so it sees the final wrapped instances.
	o.engine.AddInterceptor(newListenerDetector(o.engine))

	span.SetAttributes(attribute.Int(tracing.AttrInterceptorCount, o.engine.InterceptorCount()))
	log.Info(log.CatOrch, "creation interceptors registered", "run_id", o.runID, "count", o.engine.InterceptorCount())
	return nil
}

// collectRegistryProcessors instantiates every unprocessed registry processor
// accepted by match, marks it processed, and returns the batch sorted.
func (o *Orchestrator) collectRegistryProcessors(processed map[string]struct{}, match func(name string) bool) ([]RegistryProcessor, error) {
	var current []RegistryProcessor
	for _, name := range o.engine.NamesByCapability(CapRegistryProcessor) {
		if _, done := processed[name]; done {
			continue
		}
		if !match(name) {
			continue
		}
		inst, err := o.engine.Instantiate(name, CapRegistryProcessor)
		if err != nil {
			return nil, fmt.Errorf("instantiate registry processor %q: %w", name, err)
		}
		rp, ok := inst.(RegistryProcessor)
		if !ok {
			return nil, fmt.Errorf("definition %q does not implement RegistryProcessor (got %T)", name, inst)
		}
		current = append(current, rp)
		processed[name] = struct{}{}
	}
	sortProcessors(current, comparatorFor(o.engine))
	return current, nil
}

func (o *Orchestrator) unprocessedRegistryProcessors(processed map[string]struct{}) []string {
	var names []string
	for _, name := range o.engine.NamesByCapability(CapRegistryProcessor) {
		if _, done := processed[name]; !done {
			names = append(names, name)
		}
	}
	return names
}

func (o *Orchestrator) invokeRegistryProcessors(processors []RegistryProcessor, registry DefinitionRegistry) error {
	for _, p := range processors {
		log.Debug(log.CatOrch, "invoking registry processor", "run_id", o.runID, "processor", fmt.Sprintf("%T", p))
		if err := p.ProcessRegistry(registry); err != nil {
			return fmt.Errorf("registry processor %T: %w", p, err)
		}
	}
	return nil
}

func (o *Orchestrator) invokeFactoryHooks(processors []RegistryProcessor) error {
	for _, p := range processors {
		if err := p.ProcessFactory(o.engine); err != nil {
			return fmt.Errorf("factory hook of registry processor %T: %w", p, err)
		}
	}
	return nil
}

func (o *Orchestrator) invokeFactoryHooksPlain(processors []FactoryProcessor) error {
	for _, p := range processors {
		log.Debug(log.CatOrch, "invoking factory processor", "run_id", o.runID, "processor", fmt.Sprintf("%T", p))
		if err := p.ProcessFactory(o.engine); err != nil {
			return fmt.Errorf("factory processor %T: %w", p, err)
		}
	}
	return nil
}

func (o *Orchestrator) instantiateFactoryProcessor(name string) (FactoryProcessor, error) {
	inst, err := o.engine.Instantiate(name, CapFactoryProcessor)
	if err != nil {
		return nil, fmt.Errorf("instantiate factory processor %q: %w", name, err)
	}
	fp, ok := inst.(FactoryProcessor)
	if !ok {
		return nil, fmt.Errorf("definition %q does not implement FactoryProcessor (got %T)", name, inst)
	}
	return fp, nil
}

func (o *Orchestrator) instantiateInterceptor(name string) (CreationInterceptor, error) {
	inst, err := o.engine.Instantiate(name, CapCreationInterceptor)
	if err != nil {
		return nil, fmt.Errorf("instantiate creation interceptor %q: %w", name, err)
	}
	ic, ok := inst.(CreationInterceptor)
	if !ok {
		return nil, fmt.Errorf("definition %q does not implement CreationInterceptor (got %T)", name, inst)
	}
	return ic, nil
}

func (o *Orchestrator) installInterceptors(interceptors []CreationInterceptor) {
	for _, ic := range interceptors {
		o.engine.AddInterceptor(ic)
	}
}

func (o *Orchestrator) clearMetadataCache() {
	if mc, ok := o.engine.(MetadataCache); ok {
		mc.ClearMetadataCache()
		return
	}
	if ra, ok := o.engine.(RegistryAware); ok {
		ra.DefinitionRegistry().ClearMetadataCache()
	}
}

func (o *Orchestrator) startPhase(ctx context.Context, name string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name,
		trace.WithAttributes(attribute.String(tracing.AttrRunID, o.runID)))
}
