package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResourceAbsent is returned by Capability.Delete when the resource no longer exists.
// Teardown treats it as success.
var ErrResourceAbsent = errors.New("resource absent")

// ErrAlreadyRun is returned when Run is called on an orchestrator that has already run.
var ErrAlreadyRun = errors.New("orchestrator has already run")

// TransientConsistencyError marks a failure caused by a dependency that is not yet
// visible or propagated. StepExecutor retries these up to the step's MaxRetries.
type TransientConsistencyError struct {
	Op  string
	Err error
}

// Transient wraps err as a *TransientConsistencyError for the given operation.
func Transient(op string, err error) error {
	return &TransientConsistencyError{Op: op, Err: err}
}

func (e *TransientConsistencyError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("not yet consistent: %v", e.Err)
	}
	return fmt.Sprintf("%s: not yet consistent: %v", e.Op, e.Err)
}

func (e *TransientConsistencyError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a *TransientConsistencyError.
func IsTransient(err error) bool {
	var te *TransientConsistencyError
	return errors.As(err, &te)
}

// ProvisioningFailedError is the permanent failure of a provisioning step.
// Retryable is true when the step gave up after exhausting its transient retries.
type ProvisioningFailedError struct {
	Step      string
	Attempts  int
	Retryable bool
	Err       error
}

func (e *ProvisioningFailedError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("provisioning %q failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
	}
	return fmt.Sprintf("provisioning %q failed: %v", e.Step, e.Err)
}

func (e *ProvisioningFailedError) Unwrap() error { return e.Err }

// TeardownFailedError records a resource that could not be deleted.
// It is stored in the report and never returned from Run.
type TeardownFailedError struct {
	Step       string
	ExternalID string
	Attempts   int
	Err        error
}

func (e *TeardownFailedError) Error() string {
	return fmt.Sprintf("teardown of %q (%s) failed after %d attempts: %v", e.Step, e.ExternalID, e.Attempts, e.Err)
}

func (e *TeardownFailedError) Unwrap() error { return e.Err }

// ValidationMismatchError describes a validation case whose observed output did not
// meet its expectation.
type ValidationMismatchError struct {
	Case     string
	Expected string
	Observed any
}

func (e *ValidationMismatchError) Error() string {
	return fmt.Sprintf("validation %q: expected %s, observed %v", e.Case, e.Expected, e.Observed)
}

// CyclicDependencyError is returned by NewChain when the step graph contains a cycle.
// Path lists the step names along the cycle, with the first name repeated at the end.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Path, " -> ")
}

// UnknownDependencyError is returned by NewChain when a step depends on a name
// that is not in the chain.
type UnknownDependencyError struct {
	Step       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("step %q depends on unknown step %q", e.Step, e.Dependency)
}

// DuplicateStepError is returned by NewChain when two steps share a name.
type DuplicateStepError struct {
	Name string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("step %q declared more than once", e.Name)
}

// MissingCapabilityError is returned by New when a step has no capability to run it.
type MissingCapabilityError struct {
	Step string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("step %q has no capability", e.Step)
}

// InvalidTransitionError is returned when a handle is moved to a state the lifecycle
// graph does not allow from its current state.
type InvalidTransitionError struct {
	Step string
	From ResourceState
	To   ResourceState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("resource %q: invalid transition %s -> %s", e.Step, e.From, e.To)
}
