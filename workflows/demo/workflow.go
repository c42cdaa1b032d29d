// Package demo provides built-in chains that run entirely against the sandbox
// provider, for trying out the orchestrator and its status reporting without
// cloud credentials.
package demo

import (
	"context"
	"fmt"

	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/workflows"
)

const (
	// Name is the chain that provisions, validates and tears down a function.
	Name = "demo"
	// FailureName is the chain whose last step fails, leaving the earlier
	// steps to be torn down.
	FailureName = "demo-failure"
)

// Chains returns the demo chains.
func Chains() []config.ChainConfig {
	return []config.ChainConfig{lambdaChain(), failureChain()}
}

// lambdaChain mirrors a serverless deployment: a role and a package, a function
// using both, its log group and a configuration update.
func lambdaChain() config.ChainConfig {
	return config.ChainConfig{
		Name:             Name,
		Description:      "role, package, function, log group and configuration update on the sandbox",
		ValidationTarget: "function",
		Steps: []config.StepConfig{
			{Name: "role", Kind: "role", Provider: config.ProviderSandbox,
				Params: map[string]string{"name": "demo-role-{{.ShortID}}"}},
			{Name: "package", Kind: "artifact_package", Provider: config.ProviderSandbox},
			{Name: "function", Kind: "deployed_unit", Provider: config.ProviderSandbox,
				DependsOn: []string{"role", "package"},
				Params:    map[string]string{"name": "demo-fn-{{.ShortID}}", "handler": "area", "env.STAGE": "demo"}},
			{Name: "logs", Kind: "log_group", Provider: config.ProviderSandbox,
				DependsOn: []string{"function"}},
			{Name: "config", Kind: "configuration_change", Provider: config.ProviderSandbox,
				DependsOn: []string{"function"},
				Params:    map[string]string{"env.LOG_LEVEL": "DEBUG"}},
		},
		Validation: []config.CaseConfig{
			{Name: "area of 6x7", Input: map[string]any{"length": 6, "width": 7}, Field: "area", Expect: 42},
			{Name: "area of 2.5x4", Input: map[string]any{"length": 2.5, "width": 4}, Field: "area", Expect: 10},
		},
	}
}

func failureChain() config.ChainConfig {
	return config.ChainConfig{
		Name:        FailureName,
		Description: "a chain whose function step fails; the role and package are still removed",
		Steps: []config.StepConfig{
			{Name: "role", Kind: "role", Provider: config.ProviderSandbox},
			{Name: "package", Kind: "artifact_package", Provider: config.ProviderSandbox},
			{Name: "function", Kind: "deployed_unit", Provider: config.ProviderSandbox,
				DependsOn: []string{"role", "package"},
				Params:    map[string]string{"handler": "missing-handler"}},
		},
	}
}

// Register adds the demo chains to cfg unless chains with the same names exist.
func Register(cfg *config.Config) {
	for _, ch := range Chains() {
		if _, ok := cfg.Chain(ch.Name); !ok {
			cfg.Chains = append(cfg.Chains, ch)
		}
	}
}

// NewWorkflow creates the named demo workflow.
func NewWorkflow(ctx context.Context, params workflows.Params, name string) (*workflows.ChainWorkflow, error) {
	for _, ch := range Chains() {
		if ch.Name == name {
			return workflows.NewChainWorkflow(ctx, params, ch)
		}
	}
	return nil, fmt.Errorf("unknown demo chain %q", name)
}
