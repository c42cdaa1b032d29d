package orchestrator

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lambdaChain(t *testing.T) *Chain {
	t.Helper()
	chain, err := NewChain(
		Step{Name: "role", Kind: KindRole},
		Step{Name: "package", Kind: KindArtifactPackage},
		Step{Name: "function", Kind: KindDeployedUnit, DependsOn: []string{"role", "package"}},
		Step{Name: "log-group", Kind: KindLogGroup, DependsOn: []string{"function"}},
	)
	require.NoError(t, err)
	return chain
}

// Tests
// ---------------------------------------------------------------------

func TestChain_DOT(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "lambda_chain_dot", []byte(lambdaChain(t).DOT("lambda-demo")))
}

func TestChain_Mermaid(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "lambda_chain_mermaid", []byte(lambdaChain(t).Mermaid()))
}

func TestMermaidID(t *testing.T) {
	assert.Equal(t, "log_group", mermaidID("log-group"))
	assert.Equal(t, "a_b_c", mermaidID("a.b c"))
	assert.Equal(t, "unit_2", mermaidID("unit_2"))
}
