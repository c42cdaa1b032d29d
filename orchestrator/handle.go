package orchestrator

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Kind classifies the external resource a step manages.
type Kind int

const (
	// KindGeneric is any resource without a more specific classification.
	KindGeneric Kind = iota
	// KindRole is an identity the deployed unit assumes (a trust role).
	KindRole
	// KindArtifactPackage is a built deployment package.
	KindArtifactPackage
	// KindDeployedUnit is the compute unit the validation workload exercises.
	KindDeployedUnit
	// KindLogGroup is a log destination attached to a deployed unit.
	KindLogGroup
	// KindConfigurationChange is a mutation applied to an existing resource.
	KindConfigurationChange
	// KindRemoteCommand is a resource created and destroyed by remote shell commands.
	KindRemoteCommand
)

var kindNames = map[Kind]string{
	KindGeneric:             "generic",
	KindRole:                "role",
	KindArtifactPackage:     "artifact_package",
	KindDeployedUnit:        "deployed_unit",
	KindLogGroup:            "log_group",
	KindConfigurationChange: "configuration_change",
	KindRemoteCommand:       "remote_command",
}

// String returns a human-readable representation of the Kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind converts a configuration name such as "deployed_unit" into a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindGeneric, fmt.Errorf("unknown resource kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ResourceState is the lifecycle state of a single external resource.
type ResourceState int

const (
	// StatePlanned is the initial state; nothing has been requested yet.
	StatePlanned ResourceState = iota
	// StateProvisioning indicates the create call is in flight (including retries).
	StateProvisioning
	// StateActive indicates the resource exists and has an external ID.
	StateActive
	// StateTearingDown indicates the delete call is in flight.
	StateTearingDown
	// StateDeleted indicates the resource was removed or was already absent.
	StateDeleted
	// StateFailed indicates provisioning or teardown gave up.
	StateFailed
)

// String returns a human-readable representation of the ResourceState
func (s ResourceState) String() string {
	switch s {
	case StatePlanned:
		return "planned"
	case StateProvisioning:
		return "provisioning"
	case StateActive:
		return "active"
	case StateTearingDown:
		return "tearing_down"
	case StateDeleted:
		return "deleted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ResourceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[ResourceState][]ResourceState{
	StatePlanned:      {StateProvisioning},
	StateProvisioning: {StateActive, StateFailed},
	StateActive:       {StateTearingDown},
	StateTearingDown:  {StateDeleted, StateFailed},
}

// CanTransition reports whether the lifecycle graph allows moving from one state to another.
func CanTransition(from, to ResourceState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ResourceHandle identifies one provisioned external resource and tracks its lifecycle state.
//
// ExternalID is only ever set while the handle is Active, TearingDown or Deleted.
type ResourceHandle struct {
	Step       string            `json:"step"`
	Kind       Kind              `json:"kind"`
	ExternalID string            `json:"external_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	State      ResourceState     `json:"state"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewHandle returns a Planned handle for the named step.
func NewHandle(step string, kind Kind) ResourceHandle {
	return ResourceHandle{Step: step, Kind: kind, State: StatePlanned}
}

// Transition moves the handle to a new state.
// Returns an *InvalidTransitionError if the target is not reachable from the current state.
// Moving to Failed drops the external ID.
func (h *ResourceHandle) Transition(to ResourceState) error {
	if !CanTransition(h.State, to) {
		return &InvalidTransitionError{Step: h.Step, From: h.State, To: to}
	}
	h.State = to
	if to == StateFailed {
		h.ExternalID = ""
	}
	return nil
}

// Activate records the result of a successful create call and moves the handle to Active.
func (h *ResourceHandle) Activate(externalID string, attrs map[string]string, at time.Time) error {
	if err := h.Transition(StateActive); err != nil {
		return err
	}
	h.ExternalID = externalID
	h.CreatedAt = at
	h.Attributes = maps.Clone(attrs)
	return nil
}

// Attr returns a capability-supplied attribute, or "" if it is not present.
func (h ResourceHandle) Attr(key string) string {
	return h.Attributes[key]
}

// IsActive returns true if the resource exists and can be torn down.
func (h ResourceHandle) IsActive() bool {
	return h.State == StateActive
}
