package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/brightkeycloud-chad/lifecycle/logging"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// RunState represents the current state of the runner.
type RunState int

const (
	// RunStateIdle indicates no run is in progress.
	RunStateIdle RunState = iota
	// RunStateRunning indicates chains are being run.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *RunState) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"idle"`:
		*s = RunStateIdle
	case `"running"`:
		*s = RunStateRunning
	default:
		return fmt.Errorf("unknown run state %s", b)
	}
	return nil
}

// Run results recorded in summaries.
const (
	ResultSuccess        = "success"
	ResultPartialFailure = "partial_failure"
	// ResultError means the chains could not be built or run at all.
	ResultError = "error"
)

// RunSummary describes one run of one or more chains.
type RunSummary struct {
	ID        string     `json:"id"`
	Trigger   string     `json:"trigger"`
	Chains    []string   `json:"chains"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Result    string     `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	// LeftBehind counts resources whose teardown failed.
	LeftBehind int `json:"left_behind"`
}

// CalculateID derives an ID from the start time and chains for records that lack one.
func (s RunSummary) CalculateID() string {
	var start string
	if s.StartedAt != nil {
		start = s.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	sum := sha256.Sum256([]byte(start + "|" + strings.Join(s.Chains, ",")))
	return hex.EncodeToString(sum[:8])
}

// StepExecution is one step of one chain with its captured status and logs.
type StepExecution struct {
	Chain      string          `json:"chain"`
	Step       string          `json:"step"`
	Kind       string          `json:"kind"`
	Outcome    string          `json:"outcome"`
	Status     string          `json:"status,omitempty"`
	Retries    int             `json:"retries,omitempty"`
	ExternalID string          `json:"external_id,omitempty"`
	Error      string          `json:"error,omitempty"`
	Logs       []logging.Entry `json:"logs,omitempty"`
}

// RunRecord is everything kept about a finished run.
type RunRecord struct {
	RunSummary
	Reports []*orchestrator.ExecutionReport `json:"reports,omitempty"`
	Steps   []StepExecution                 `json:"steps,omitempty"`
}

// RunStatus contains information about the current or last run.
type RunStatus struct {
	// State is the current state of the runner.
	State RunState `json:"state"`
	RunSummary
	// Steps are live while running and final once idle.
	Steps []StepExecution `json:"steps,omitempty"`
}
