// Package orchestrator provisions a chain of dependent external resources, validates
// the deployed workload and guarantees a dependency-aware teardown.
//
// # Overview
//
// A run moves through a fixed state machine:
//
//	Idle -> Provisioning -> Validating -> TearingDown -> Done
//
// Provisioning walks the chain in forward (topological) order, one step at a time,
// because later steps consume identifiers produced by earlier ones. The first failed
// step halts provisioning; the remaining steps are reported as Skipped and
// Validating is skipped. TearingDown always runs, in reverse order, for every
// resource that became Active.
//
// # Chains
//
// Steps declare their dependencies by name:
//
//	chain, err := orchestrator.NewChain(
//	    orchestrator.Step{Name: "role", Kind: orchestrator.KindRole, Capability: roles},
//	    orchestrator.Step{Name: "unit", Kind: orchestrator.KindDeployedUnit, DependsOn: []string{"role"},
//	        Capability: units, EventualConsistencyDelay: 10 * time.Second, MaxRetries: 3},
//	    orchestrator.Step{Name: "logs", Kind: orchestrator.KindLogGroup, DependsOn: []string{"unit"}, Capability: logs},
//	)
//
// NewChain rejects duplicate names, unknown dependencies and cycles before any
// capability is called. Ties between independent steps are broken by declaration
// order, so ForwardOrder is reproducible and ReverseOrder is its exact reverse.
//
// # Capabilities
//
// The orchestrator never talks to a provider directly. Each step carries a
// Capability whose Create returns an external ID and whose Delete removes it.
// Create signals "not yet propagated" with a *TransientConsistencyError, which the
// StepExecutor retries after the step's EventualConsistencyDelay, at most MaxRetries
// times. Delete returns ErrResourceAbsent when there is nothing left to remove;
// teardown counts that as success.
//
// # Validation
//
// Once every step is Active, each ValidationCase is sent to the deployed unit via
// the Invoker given to WithValidation. Expectations are either literal (Equals,
// FieldEquals) or predicates (Satisfies, Contains). A failed invocation fails only
// its own case. Capabilities that implement Inspector are then asked for the
// operational state of their resources.
//
// # Reports
//
// Run returns an ExecutionReport listing every step, validation case and teardown
// outcome. The report's Result is ResultPartialFailure if anything failed, was
// skipped or the run was cancelled. Teardown failures are recorded, never returned;
// LeftBehind lists the resources a caller may want to clean up later.
//
// # Cancellation
//
// ctx is checked between steps, not inside an in-flight capability call, and it
// also interrupts a retry wait. After cancellation the orchestrator goes straight to
// TearingDown, which runs on a context detached from ctx.
package orchestrator
