package orchestrator

import (
	"context"
	"time"
)

// Step is one provisioning unit of a chain.
//
// Capability performs the create call when the chain is provisioned and the delete
// call when it is torn down. DependsOn names the steps whose resources must exist
// first; their Active handles are passed to Create so data can flow between steps
// (a deployed unit needs the ARN of its role).
type Step struct {
	Name       string
	Kind       Kind
	DependsOn  []string
	Params     map[string]string
	Capability Capability

	// EventualConsistencyDelay is the wait between attempts after a transient error.
	EventualConsistencyDelay time.Duration
	// MaxRetries bounds the number of retries after transient errors.
	// The step fails on the (MaxRetries+1)-th transient error.
	MaxRetries int
}

// CreateRequest is passed to Capability.Create.
type CreateRequest struct {
	Step   string
	Kind   Kind
	Params map[string]string
	// Dependencies holds the Active handles of the step's direct dependencies, keyed by step name.
	Dependencies map[string]ResourceHandle
}

// Param returns the named parameter, or def if it is unset or empty.
func (r CreateRequest) Param(name, def string) string {
	if v := r.Params[name]; v != "" {
		return v
	}
	return def
}

// Dependency returns the first dependency of the given kind.
func (r CreateRequest) Dependency(kind Kind) (ResourceHandle, bool) {
	var (
		found ResourceHandle
		ok    bool
	)
	for _, h := range r.Dependencies {
		if h.Kind != kind {
			continue
		}
		// Map order is random; pick the lexically smallest step so the choice is stable.
		if !ok || h.Step < found.Step {
			found, ok = h, true
		}
	}
	return found, ok
}

// CreateResult is returned by a successful Capability.Create.
type CreateResult struct {
	ExternalID string
	// Attributes holds the raw response fields a later step or the report may need.
	Attributes map[string]string
}

// Capability creates and deletes one kind of external resource.
//
// Create returns a *TransientConsistencyError when a dependency is not yet visible;
// any other error is permanent. Delete returns ErrResourceAbsent (possibly wrapped)
// when the resource is already gone.
type Capability interface {
	Create(ctx context.Context, req CreateRequest) (CreateResult, error)
	Delete(ctx context.Context, handle ResourceHandle) error
}

// Invoker runs the deployed workload with a test payload.
type Invoker interface {
	Invoke(ctx context.Context, unit ResourceHandle, payload any) (any, error)
}

// Inspector is implemented by capabilities that can report the operational state
// of a resource they created.
type Inspector interface {
	Inspect(ctx context.Context, handle ResourceHandle) (map[string]string, error)
}

// Packager builds a deployable artifact from source files. The result is opaque.
type Packager interface {
	Build(ctx context.Context, files []string) ([]byte, error)
}

// StatusSink receives short human-readable progress messages per step.
type StatusSink interface {
	Set(step, status string)
}

// Observer receives lifecycle events for metrics collection.
type Observer interface {
	StepFinished(step StepResult)
	ValidationFinished(result ValidationResult)
	TeardownFinished(result TeardownResult)
	RunFinished(report *ExecutionReport)
}

type nopObserver struct{}

func (nopObserver) StepFinished(StepResult)             {}
func (nopObserver) ValidationFinished(ValidationResult) {}
func (nopObserver) TeardownFinished(TeardownResult)     {}
func (nopObserver) RunFinished(*ExecutionReport)        {}
