package workflows

import (
	"fmt"

	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// Graph builds the dependency structure of ch without resolving providers, for
// rendering and validation. The steps it holds have no capabilities.
func Graph(ch config.ChainConfig) (*orchestrator.Chain, error) {
	steps := make([]orchestrator.Step, 0, len(ch.Steps))
	for _, sc := range ch.Steps {
		kind, err := orchestrator.ParseKind(sc.Kind)
		if err != nil {
			return nil, fmt.Errorf("chain %s: step %s: %w", ch.Name, sc.Name, err)
		}
		steps = append(steps, orchestrator.Step{Name: sc.Name, Kind: kind, DependsOn: sc.DependsOn})
	}
	chain, err := orchestrator.NewChain(steps...)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", ch.Name, err)
	}
	return chain, nil
}
