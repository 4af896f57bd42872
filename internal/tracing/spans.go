package tracing

// Span names for the bootstrap pipeline.
const (
	// SpanOrchestrate is the root span for one orchestration run.
	SpanOrchestrate = "bootstrap.orchestrate"

	// SpanRegistryPhase covers registry-mutating extensions, including the
	// fixpoint sweeps.
	SpanRegistryPhase = "orchestrate.registry_phase"

	// SpanFactoryPhase covers factory-mutating extensions.
	SpanFactoryPhase = "orchestrate.factory_phase"

	// SpanInterceptorPhase covers creation-interceptor registration.
	SpanInterceptorPhase = "orchestrate.interceptor_phase"

	// SpanScan covers one component-scan invocation.
	SpanScan = "bootstrap.scan"
)

// Span attribute keys. These constants define the semantic conventions for
// span attributes in the bootstrap pipeline.
const (
	// Orchestration attributes
	AttrRunID            = "run.id"
	AttrProcessorCount   = "processor.count"
	AttrInterceptorCount = "interceptor.count"
	AttrFixpointPasses   = "fixpoint.passes"

	// Scan attributes
	AttrBasePath        = "scan.base_path"
	AttrCandidateCount  = "scan.candidate_count"
	AttrRegisteredCount = "scan.registered_count"

	// Error attributes
	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)
