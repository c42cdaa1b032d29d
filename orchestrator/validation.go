package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
)

// Expectation decides whether an observed workload output is acceptable.
type Expectation interface {
	Match(observed any) bool
	String() string
}

// ValidationCase is one input/expected-output pair. Cases are built by the caller
// before the run and are never modified by it.
type ValidationCase struct {
	Name   string
	Input  any
	Expect Expectation
}

type equalsExpectation struct {
	want any
}

// Equals expects the observed output to equal v. Both sides are normalised through
// JSON first, so numbers compare by value regardless of their Go type.
func Equals(v any) Expectation {
	return equalsExpectation{want: v}
}

func (e equalsExpectation) Match(observed any) bool {
	return reflect.DeepEqual(normalize(e.want), normalize(observed))
}

func (e equalsExpectation) String() string {
	b, err := json.Marshal(e.want)
	if err != nil {
		return fmt.Sprintf("%v", e.want)
	}
	return string(b)
}

type predicateExpectation struct {
	desc string
	fn   func(any) bool
}

// Satisfies expects fn to return true for the observed output.
func Satisfies(description string, fn func(observed any) bool) Expectation {
	return predicateExpectation{desc: description, fn: fn}
}

func (p predicateExpectation) Match(observed any) bool { return p.fn(observed) }
func (p predicateExpectation) String() string          { return p.desc }

// FieldEquals expects the value at a dot-separated path inside the observed output
// to equal v. JSON strings along the path are decoded, so a handler that returns
// {"body": "{\"area\": 42}"} matches FieldEquals("body.area", 42).
func FieldEquals(path string, v any) Expectation {
	want := normalize(v)
	return Satisfies(fmt.Sprintf("%s == %s", path, Equals(v)), func(observed any) bool {
		got, ok := Lookup(observed, path)
		return ok && reflect.DeepEqual(normalize(got), want)
	})
}

// Contains expects the JSON encoding of the observed output to contain substr.
func Contains(substr string) Expectation {
	return Satisfies(fmt.Sprintf("contains %q", substr), func(observed any) bool {
		b, err := json.Marshal(observed)
		if err != nil {
			return false
		}
		return strings.Contains(string(b), substr)
	})
}

// Lookup walks a dot-separated path through maps in v.
func Lookup(v any, path string) (any, bool) {
	cur := normalize(v)
	if path == "" {
		return cur, true
	}
	for _, part := range strings.Split(path, ".") {
		if s, ok := cur.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil, false
			}
			cur = decoded
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// ValidationRunner exercises a deployed unit with validation cases.
// It only invokes; it never changes resource state.
type ValidationRunner struct {
	logger  *slog.Logger
	timeout time.Duration
}

// ValidationOption configures a ValidationRunner.
type ValidationOption func(*ValidationRunner)

// WithValidationLogger sets the logger.
func WithValidationLogger(logger *slog.Logger) ValidationOption {
	return func(v *ValidationRunner) {
		v.logger = logger.With("component", "validation")
	}
}

// WithInvokeTimeout bounds each invocation. Zero means no limit beyond the run context.
func WithInvokeTimeout(d time.Duration) ValidationOption {
	return func(v *ValidationRunner) {
		v.timeout = d
	}
}

// NewValidationRunner creates a ValidationRunner.
func NewValidationRunner(opts ...ValidationOption) *ValidationRunner {
	v := &ValidationRunner{
		logger: slog.Default().With("component", "validation"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run invokes the unit once per case, in order. A failed invocation marks its case
// as not passed and evaluation continues with the next case.
func (v *ValidationRunner) Run(ctx context.Context, unit ResourceHandle, cases []ValidationCase, invoker Invoker) []ValidationResult {
	results := make([]ValidationResult, 0, len(cases))
	for i, c := range cases {
		results = append(results, v.runCase(ctx, unit, i, c, invoker))
	}
	return results
}

func (v *ValidationRunner) runCase(ctx context.Context, unit ResourceHandle, i int, c ValidationCase, invoker Invoker) ValidationResult {
	name := c.Name
	if name == "" {
		name = fmt.Sprintf("case-%d", i+1)
	}
	result := ValidationResult{Case: name, Input: c.Input}
	if c.Expect != nil {
		result.Expected = c.Expect.String()
	}

	invokeCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	observed, err := invoker.Invoke(invokeCtx, unit, c.Input)
	if err != nil {
		result.Observed = err.Error()
		result.Error = err.Error()
		v.logger.Warn("validation invocation failed", "case", name, "unit", unit.ExternalID, "error", err)
		return result
	}

	result.Observed = observed
	result.Passed = c.Expect == nil || c.Expect.Match(observed)
	if !result.Passed {
		mismatch := &ValidationMismatchError{Case: name, Expected: result.Expected, Observed: observed}
		result.Error = mismatch.Error()
		v.logger.Warn("validation mismatch", "case", name, "expected", result.Expected, "observed", observed)
	} else {
		v.logger.Info("validation passed", "case", name)
	}
	return result
}
