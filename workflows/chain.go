package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/brightkeycloud-chad/lifecycle/providers"
	"github.com/brightkeycloud-chad/lifecycle/workflow"
)

// ChainWorkflow runs one configured chain.
type ChainWorkflow struct {
	orch *orchestrator.Orchestrator
}

var _ workflow.Workflow = (*ChainWorkflow)(nil)

// NewChainWorkflow builds the orchestrator for ch. Provider clients are created
// here, so configuration and credential problems surface before anything runs.
func NewChainWorkflow(ctx context.Context, p Params, ch config.ChainConfig) (*ChainWorkflow, error) {
	if p.Providers == nil {
		return nil, errors.New("providers registry is required")
	}
	runID := uuid.NewString()
	steps, err := p.Providers.Steps(ctx, ch, providers.Vars{RunID: runID, Timestamp: p.now()})
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", ch.Name, err)
	}
	chain, err := orchestrator.NewChain(steps...)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", ch.Name, err)
	}

	cases := Cases(ch.Validation)
	invoker, err := providers.Invoker(chain, ch.ValidationTarget, len(cases))
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", ch.Name, err)
	}

	opts := append(p.options(ch.Name),
		orchestrator.WithRunID(runID),
		orchestrator.WithValidation(invoker, cases...),
	)
	if ch.ValidationTarget != "" {
		opts = append(opts, orchestrator.WithValidationTarget(ch.ValidationTarget))
	}
	if ch.InvokeTimeout > 0 {
		opts = append(opts, orchestrator.WithInvocationTimeout(ch.InvokeTimeout))
	}

	o, err := orchestrator.New(chain, opts...)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", ch.Name, err)
	}
	return &ChainWorkflow{orch: o}, nil
}

// Name returns the chain name.
func (w *ChainWorkflow) Name() string {
	return w.orch.Name()
}

// RunID returns the ID the report will carry.
func (w *ChainWorkflow) RunID() string {
	return w.orch.RunID()
}

// Execute runs the chain.
func (w *ChainWorkflow) Execute(ctx context.Context) (*orchestrator.ExecutionReport, error) {
	return w.orch.Run(ctx)
}

// Snapshot returns the report as it stands.
func (w *ChainWorkflow) Snapshot() *orchestrator.ExecutionReport {
	return w.orch.Snapshot()
}

// Cases converts configured validation cases.
func Cases(cfgs []config.CaseConfig) []orchestrator.ValidationCase {
	out := make([]orchestrator.ValidationCase, 0, len(cfgs))
	for _, c := range cfgs {
		var expect orchestrator.Expectation
		switch {
		case c.Contains != "":
			expect = orchestrator.Contains(c.Contains)
		case c.Field != "":
			expect = orchestrator.FieldEquals(c.Field, c.Expect)
		default:
			expect = orchestrator.Equals(c.Expect)
		}
		out = append(out, orchestrator.ValidationCase{Name: c.Name, Input: c.Input, Expect: expect})
	}
	return out
}

// Available returns the names of the chains that can be run.
func Available(cfg *config.Config) []string {
	return cfg.ChainNames()
}

// New builds a workflow for each named chain. With no names every configured
// chain is built.
func New(ctx context.Context, p Params, names ...string) ([]workflow.Workflow, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if len(names) == 0 {
		names = Available(p.Config)
	}
	out := make([]workflow.Workflow, 0, len(names))
	for _, name := range names {
		ch, ok := p.Config.Chain(name)
		if !ok {
			return nil, fmt.Errorf("unknown chain %q (available: %v)", name, Available(p.Config))
		}
		w, err := NewChainWorkflow(ctx, p, ch)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
