package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/brightkeycloud-chad/lifecycle/providers/artifact"
	"github.com/brightkeycloud-chad/lifecycle/providers/awscloud"
	"github.com/brightkeycloud-chad/lifecycle/providers/remote"
	"github.com/brightkeycloud-chad/lifecycle/providers/sandbox"
)

type fakeRunner struct {
	commands []string
}

func (f *fakeRunner) Run(ctx context.Context, command string) (string, string, error) {
	f.commands = append(f.commands, command)
	return "ok\n", "", nil
}

func testConfig() *config.Config {
	two, four := 2, 4
	cfg := &config.Config{
		Behavior: config.BehaviorConfig{MaxRetries: &four, ConsistencyDelay: 5 * time.Second},
		Chains: []config.ChainConfig{{
			Name: "demo",
			Steps: []config.StepConfig{
				{Name: "role", Kind: "role", Provider: "sandbox", Params: map[string]string{"name": "role-{{.ShortID}}-{{.Timestamp}}"}},
				{Name: "function", Kind: "deployed_unit", Provider: "sandbox", DependsOn: []string{"role"}, MaxRetries: &two},
				{Name: "logs", Kind: "log_group", Provider: "sandbox", DependsOn: []string{"function"}, ConsistencyDelay: time.Second},
			},
		}},
	}
	return cfg
}

// Tests
// ---------------------------------------------------------------------

func TestRegistry_Steps(t *testing.T) {
	cfg := testConfig()
	r := New(cfg)

	vars := Vars{RunID: "0123456789abcdef", Timestamp: time.Unix(1700000000, 0)}
	steps, err := r.Steps(context.Background(), cfg.Chains[0], vars)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	assert.Equal(t, "role-01234567-1700000000", steps[0].Params["name"], "run vars are substituted")
	assert.Equal(t, orchestrator.KindRole, steps[0].Kind)
	assert.Equal(t, 4, steps[0].MaxRetries, "behavior default applies")
	assert.Equal(t, 5*time.Second, steps[0].EventualConsistencyDelay)

	assert.Equal(t, 2, steps[1].MaxRetries, "step override applies")
	assert.Equal(t, []string{"role"}, steps[1].DependsOn)
	assert.Equal(t, time.Second, steps[2].EventualConsistencyDelay)

	for _, s := range steps {
		assert.NotNil(t, s.Capability, "step %s has a capability", s.Name)
	}
	assert.Equal(t, "role-{{.ShortID}}-{{.Timestamp}}", cfg.Chains[0].Steps[0].Params["name"], "config is not modified")
}

func TestRegistry_Capability(t *testing.T) {
	cfg := &config.Config{Artifact: config.ArtifactConfig{WorkDir: t.TempDir()}}
	r := New(cfg, WithAWSClients(&awscloud.Clients{}), WithRunner(&fakeRunner{}))
	ctx := context.Background()

	tests := []struct {
		provider string
		kind     orchestrator.Kind
		want     any
	}{
		{provider: "aws", kind: orchestrator.KindRole, want: &awscloud.RoleCapability{}},
		{provider: "aws", kind: orchestrator.KindDeployedUnit, want: &awscloud.FunctionCapability{}},
		{provider: "aws", kind: orchestrator.KindConfigurationChange, want: &awscloud.FunctionConfigCapability{}},
		{provider: "aws", kind: orchestrator.KindLogGroup, want: &awscloud.LogGroupCapability{}},
		{provider: "artifact", kind: orchestrator.KindArtifactPackage, want: &artifact.Capability{}},
		{provider: "remote", kind: orchestrator.KindRemoteCommand, want: &remote.CommandCapability{}},
		{provider: "remote", kind: orchestrator.KindGeneric, want: &remote.CommandCapability{}},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.kind.String(), func(t *testing.T) {
			c, err := r.Capability(ctx, tt.provider, tt.kind)
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestRegistry_CapabilityErrors(t *testing.T) {
	r := New(&config.Config{}, WithAWSClients(&awscloud.Clients{}), WithRunner(&fakeRunner{}))
	ctx := context.Background()

	_, err := r.Capability(ctx, "aws", orchestrator.KindRemoteCommand)
	var unsupported *UnsupportedKindError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "aws", unsupported.Provider)
	assert.Equal(t, "provider aws has no capability for kind remote_command", err.Error())

	_, err = r.Capability(ctx, "artifact", orchestrator.KindRole)
	assert.ErrorAs(t, err, &unsupported)

	_, err = r.Capability(ctx, "remote", orchestrator.KindLogGroup)
	assert.ErrorAs(t, err, &unsupported)

	_, err = r.Capability(ctx, "gcp", orchestrator.KindRole)
	assert.EqualError(t, err, `unknown provider "gcp"`)
}

func TestRegistry_SharedSandbox(t *testing.T) {
	cloud := sandbox.New()
	r := New(&config.Config{}, WithSandbox(cloud))
	assert.Same(t, cloud, r.Sandbox())

	r2 := New(&config.Config{Sandbox: config.SandboxConfig{Visibility: 0}})
	assert.Same(t, r2.Sandbox(), r2.Sandbox(), "one cloud per registry")
}

func TestInvoker(t *testing.T) {
	cfg := testConfig()
	r := New(cfg)
	steps, err := r.Steps(context.Background(), cfg.Chains[0], Vars{RunID: "run"})
	require.NoError(t, err)
	chain, err := orchestrator.NewChain(steps...)
	require.NoError(t, err)

	inv, err := Invoker(chain, "", 0)
	require.NoError(t, err)
	assert.Nil(t, inv, "no cases means no invoker")

	inv, err = Invoker(chain, "", 1)
	require.NoError(t, err)
	assert.NotNil(t, inv, "the deployed unit is the default target")

	_, err = Invoker(chain, "logs", 1)
	assert.EqualError(t, err, "step logs cannot be invoked")

	_, err = Invoker(chain, "missing", 1)
	assert.Error(t, err)
}

func TestInvoker_NoDeployedUnit(t *testing.T) {
	chain, err := orchestrator.NewChain(orchestrator.Step{Name: "only", Kind: orchestrator.KindGeneric})
	require.NoError(t, err)
	_, err = Invoker(chain, "", 2)
	assert.EqualError(t, err, "chain has validation cases but no deployed_unit step")
}

func TestRegistry_RemoteStepRunsCommands(t *testing.T) {
	runner := &fakeRunner{}
	r := New(&config.Config{}, WithRunner(runner))

	c, err := r.Capability(context.Background(), "remote", orchestrator.KindRemoteCommand)
	require.NoError(t, err)
	res, err := c.Create(context.Background(), orchestrator.CreateRequest{
		Step:   "dir",
		Params: map[string]string{"create": "mkdir -p /tmp/x && echo ok"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.ExternalID)
	assert.Equal(t, []string{"mkdir -p /tmp/x && echo ok"}, runner.commands)
	assert.NoError(t, r.Close())
}
