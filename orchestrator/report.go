package orchestrator

import (
	"fmt"
	"time"
)

// Outcome is the result of one provisioning or teardown step.
type Outcome int

const (
	// OutcomePending means the step has not finished yet. It only appears in live snapshots.
	OutcomePending Outcome = iota
	// OutcomeSucceeded means the step completed.
	OutcomeSucceeded
	// OutcomeFailed means the step gave up.
	OutcomeFailed
	// OutcomeSkipped means the step was never attempted.
	OutcomeSkipped
)

var outcomeNames = map[Outcome]string{
	OutcomePending:   "pending",
	OutcomeSucceeded: "succeeded",
	OutcomeFailed:    "failed",
	OutcomeSkipped:   "skipped",
}

// String returns a human-readable representation of the Outcome
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	for k, name := range outcomeNames {
		if name == string(b) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// RunResult is the final classification of a run.
type RunResult int

const (
	// ResultSuccess means every step, validation case and teardown succeeded.
	ResultSuccess RunResult = iota
	// ResultPartialFailure means at least one of them did not.
	ResultPartialFailure
)

// String returns a human-readable representation of the RunResult
func (r RunResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultPartialFailure:
		return "partial_failure"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r RunResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RunResult) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*r = ResultSuccess
	case "partial_failure":
		*r = ResultPartialFailure
	default:
		return fmt.Errorf("unknown run result %q", b)
	}
	return nil
}

// StepResult records the provisioning outcome of one step.
type StepResult struct {
	Step       string        `json:"step"`
	Kind       Kind          `json:"kind"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Retries    int           `json:"retries"`
	ExternalID string        `json:"external_id,omitempty"`
	Duration   time.Duration `json:"duration"`

	// Err is the underlying error for callers that need errors.As. Not persisted.
	Err error `json:"-"`
}

// ValidationResult records one validation case.
type ValidationResult struct {
	Case     string `json:"case"`
	Input    any    `json:"input,omitempty"`
	Expected string `json:"expected,omitempty"`
	Passed   bool   `json:"passed"`
	// Observed is the workload's output, or the error text if the invocation failed.
	Observed any    `json:"observed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// InspectionResult records the operational state reported by an Inspector.
type InspectionResult struct {
	Step  string            `json:"step"`
	State map[string]string `json:"state,omitempty"`
	Error string            `json:"error,omitempty"`
}

// TeardownResult records the cleanup of one resource.
type TeardownResult struct {
	Step       string  `json:"step"`
	Kind       Kind    `json:"kind"`
	ExternalID string  `json:"external_id,omitempty"`
	Outcome    Outcome `json:"outcome"`
	// Absent is true when the resource was already gone.
	Absent  bool   `json:"absent,omitempty"`
	Retries int    `json:"retries"`
	Error   string `json:"error,omitempty"`

	Err error `json:"-"`
}

// ExecutionReport is the immutable record of one orchestration run.
type ExecutionReport struct {
	RunID       string             `json:"run_id"`
	Chain       string             `json:"chain"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     time.Time          `json:"ended_at"`
	Result      RunResult          `json:"result"`
	Cancelled   bool               `json:"cancelled,omitempty"`
	Steps       []StepResult       `json:"steps"`
	Validations []ValidationResult `json:"validations"`
	Inspections []InspectionResult `json:"inspections,omitempty"`
	Teardown    []TeardownResult   `json:"teardown"`
}

// Succeeded returns true if the run finished with ResultSuccess.
func (r *ExecutionReport) Succeeded() bool {
	return r.Result == ResultSuccess
}

// LeftBehind returns the teardown results for resources that could not be deleted.
// Callers use this to decide whether to retry cleanup on a later run.
func (r *ExecutionReport) LeftBehind() []TeardownResult {
	var out []TeardownResult
	for _, t := range r.Teardown {
		if t.Outcome == OutcomeFailed {
			out = append(out, t)
		}
	}
	return out
}

// Summary holds outcome counts for a report.
type Summary struct {
	StepsSucceeded    int `json:"steps_succeeded"`
	StepsFailed       int `json:"steps_failed"`
	StepsSkipped      int `json:"steps_skipped"`
	Retries           int `json:"retries"`
	ValidationsPassed int `json:"validations_passed"`
	ValidationsFailed int `json:"validations_failed"`
	TeardownSucceeded int `json:"teardown_succeeded"`
	TeardownFailed    int `json:"teardown_failed"`
}

// Summary counts outcomes across the report.
func (r *ExecutionReport) Summary() Summary {
	var s Summary
	for _, st := range r.Steps {
		s.Retries += st.Retries
		switch st.Outcome {
		case OutcomeSucceeded:
			s.StepsSucceeded++
		case OutcomeFailed:
			s.StepsFailed++
		case OutcomeSkipped:
			s.StepsSkipped++
		}
	}
	for _, v := range r.Validations {
		if v.Passed {
			s.ValidationsPassed++
		} else {
			s.ValidationsFailed++
		}
	}
	for _, t := range r.Teardown {
		switch t.Outcome {
		case OutcomeSucceeded:
			s.TeardownSucceeded++
		case OutcomeFailed:
			s.TeardownFailed++
		}
	}
	return s
}

// clone returns a copy whose slices can be read while the original keeps changing.
func (r *ExecutionReport) clone() *ExecutionReport {
	c := *r
	c.Steps = append([]StepResult(nil), r.Steps...)
	c.Validations = append([]ValidationResult(nil), r.Validations...)
	c.Inspections = append([]InspectionResult(nil), r.Inspections...)
	c.Teardown = append([]TeardownResult(nil), r.Teardown...)
	return &c
}
