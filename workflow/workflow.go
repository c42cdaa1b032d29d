package workflow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// Workflow is one runnable chain.
type Workflow interface {
	// Name identifies the workflow in reports and history.
	Name() string

	// Execute runs the workflow to completion and returns its report.
	// An error means the workflow could not run at all; run outcomes,
	// including failed steps, are in the report.
	Execute(ctx context.Context) (*orchestrator.ExecutionReport, error)

	// Snapshot returns the report as it stands. Safe to call during Execute.
	Snapshot() *orchestrator.ExecutionReport
}

// Group runs several independent workflows concurrently. Each workflow owns
// its resources and its report; they share no mutable state.
type Group struct {
	workflows []Workflow
	limit     int
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithConcurrency bounds how many workflows run at once. Zero or less means no bound.
func WithConcurrency(n int) GroupOption {
	return func(g *Group) {
		g.limit = n
	}
}

// Compose creates a group of workflows. Workflows in a group keep running when
// another fails; a failed or cancelled chain still tears itself down.
func Compose(workflows []Workflow, opts ...GroupOption) *Group {
	g := &Group{workflows: workflows}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Workflows returns the workflows in the group.
func (g *Group) Workflows() []Workflow {
	return g.workflows
}

// Execute runs every workflow and returns their reports in group order.
// A workflow that could not run has a nil report and contributes to the
// returned error.
func (g *Group) Execute(ctx context.Context) ([]*orchestrator.ExecutionReport, error) {
	reports := make([]*orchestrator.ExecutionReport, len(g.workflows))
	errs := make([]error, len(g.workflows))

	// The errgroup context is not used: one workflow's error must not cancel the others.
	var eg errgroup.Group
	if g.limit > 0 {
		eg.SetLimit(g.limit)
	}
	for i, w := range g.workflows {
		eg.Go(func() error {
			report, err := w.Execute(ctx)
			reports[i] = report
			if err != nil {
				errs[i] = fmt.Errorf("workflow %s: %w", w.Name(), err)
			}
			return nil
		})
	}
	_ = eg.Wait()

	return reports, errors.Join(errs...)
}

// Snapshots returns the current report of every workflow, in group order.
func (g *Group) Snapshots() []*orchestrator.ExecutionReport {
	out := make([]*orchestrator.ExecutionReport, len(g.workflows))
	for i, w := range g.workflows {
		out[i] = w.Snapshot()
	}
	return out
}

// Succeeded reports whether every report exists and succeeded.
func Succeeded(reports []*orchestrator.ExecutionReport) bool {
	for _, r := range reports {
		if r == nil || !r.Succeeded() {
			return false
		}
	}
	return len(reports) > 0
}
