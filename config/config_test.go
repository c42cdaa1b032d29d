package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

func validConfig() Config {
	return Config{
		Chains: []ChainConfig{{
			Name: "demo",
			Steps: []StepConfig{
				{Name: "role", Kind: "role", Provider: ProviderSandbox},
				{Name: "unit", Kind: "deployed_unit", Provider: ProviderSandbox, DependsOn: []string{"role"}},
			},
			Validation: []CaseConfig{{Name: "area", Input: map[string]any{"length": 6, "width": 7}, Field: "area", Expect: 42}},
		}},
	}
}

func intPtr(i int) *int { return &i }

// Tests
// ---------------------------------------------------------------------

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("testdata/lambda-demo.yaml")
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, 5, cfg.Behavior.Retries())
	assert.Equal(t, 10*time.Second, cfg.Behavior.ConsistencyDelay)
	assert.Equal(t, "lifecycle", cfg.Monitoring.JobName, "defaults applied")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)

	require.Len(t, cfg.Chains, 1)
	ch, ok := cfg.Chain("lambda-demo")
	require.True(t, ok)
	assert.Equal(t, "function", ch.ValidationTarget)
	assert.Equal(t, 15*time.Second, ch.InvokeTimeout)
	require.Len(t, ch.Steps, 5)

	fn, ok := ch.Step("function")
	require.True(t, ok)
	assert.Equal(t, []string{"role", "package"}, fn.DependsOn)
	assert.Equal(t, 0, fn.Retries(cfg.Behavior), "explicit zero overrides the default")
	assert.Equal(t, 10*time.Second, fn.Delay(cfg.Behavior))

	logs, _ := ch.Step("logs")
	assert.Equal(t, 5, logs.Retries(cfg.Behavior))
	assert.Equal(t, 2*time.Second, logs.Delay(cfg.Behavior))

	require.Len(t, ch.Validation, 2)
	assert.Equal(t, "body.area", ch.Validation[0].Field)
	assert.Equal(t, 42, ch.Validation[0].Expect)
	assert.Equal(t, map[string]any{"operation": "area", "length": 6, "width": 7}, ch.Validation[0].Input)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("behaviour:\n  max_retries: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "behaviour")
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err, "an empty document is valid with no chains")
	assert.Equal(t, defaultMaxRetries, cfg.Behavior.Retries())
	assert.Empty(t, cfg.ChainNames())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown kind",
			mutate:  func(c *Config) { c.Chains[0].Steps[0].Kind = "bucket" },
			wantErr: `chains[0].steps[0].kind: unknown resource kind "bucket"`,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Chains[0].Steps[0].Provider = "gcp" },
			wantErr: "chains[0].steps[0].provider must be one of",
		},
		{
			name:    "missing step name",
			mutate:  func(c *Config) { c.Chains[0].Steps[0].Name = "" },
			wantErr: "chains[0].steps[0].name is required",
		},
		{
			name:    "duplicate step names",
			mutate:  func(c *Config) { c.Chains[0].Steps[1].Name = "role" },
			wantErr: "chains[0].steps must have unique name values",
		},
		{
			name: "duplicate chain names",
			mutate: func(c *Config) {
				c.Chains = append(c.Chains, c.Chains[0])
			},
			wantErr: "chains must have unique name values",
		},
		{
			name:    "bad chain name",
			mutate:  func(c *Config) { c.Chains[0].Name = "Demo Chain" },
			wantErr: "chains[0].name",
		},
		{
			name:    "chain without steps",
			mutate:  func(c *Config) { c.Chains[0].Steps = nil },
			wantErr: "chains[0].steps is required",
		},
		{
			name:    "negative step retries",
			mutate:  func(c *Config) { c.Chains[0].Steps[0].MaxRetries = intPtr(-1) },
			wantErr: "max_retries",
		},
		{
			name:    "negative default retries",
			mutate:  func(c *Config) { c.Behavior.MaxRetries = intPtr(-1) },
			wantErr: "max_retries",
		},
		{
			name:    "unknown dependency",
			mutate:  func(c *Config) { c.Chains[0].Steps[1].DependsOn = []string{"nope"} },
			wantErr: `unknown step "nope"`,
		},
		{
			name: "cycle",
			mutate: func(c *Config) {
				c.Chains[0].Steps[0].DependsOn = []string{"unit"}
			},
			wantErr: "cycl",
		},
		{
			name:    "unknown validation target",
			mutate:  func(c *Config) { c.Chains[0].ValidationTarget = "lambda" },
			wantErr: `validation_target "lambda" is not a step`,
		},
		{
			name:    "field and contains together",
			mutate:  func(c *Config) { c.Chains[0].Validation[0].Contains = "42" },
			wantErr: "chains[0].validation[0].contains",
		},
		{
			name:    "remote provider without ssh",
			mutate:  func(c *Config) { c.Chains[0].Steps[0].Provider = ProviderRemote },
			wantErr: "remote provider requires ssh.host",
		},
		{
			name: "ssh host without user",
			mutate: func(c *Config) {
				c.SSH = SSHConfig{Host: "bastion.example.com", PrivateKeyFile: "id_ed25519"}
			},
			wantErr: "ssh.user is required",
		},
		{
			name:    "bad account id",
			mutate:  func(c *Config) { c.AWS.AccountID = "12345" },
			wantErr: "aws.account_id",
		},
		{
			name:    "otlp without endpoint",
			mutate:  func(c *Config) { c.Tracing.Exporter = "otlp" },
			wantErr: "tracing.endpoint is required",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format must be one of",
		},
		{
			name:    "bad metrics url",
			mutate:  func(c *Config) { c.Monitoring.VictoriaMetricsURL = "not a url" },
			wantErr: "monitoring.victoriametrics_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			cfg.SetDefaults()
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateStructuralErrorTypes(t *testing.T) {
	cfg := validConfig()
	cfg.Chains[0].Steps[0].DependsOn = []string{"unit"}
	err := cfg.Validate()

	var cyc *orchestrator.CyclicDependencyError
	require.ErrorAs(t, err, &cyc, "chain errors keep their type")
	assert.NotEmpty(t, cyc.Path)
}

func TestParse_ZeroDefaultRetries(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
behavior:
  max_retries: 0
chains:
  - name: smoke
    steps:
      - name: role
        kind: role
        provider: sandbox
      - name: unit
        kind: deployed_unit
        provider: sandbox
        depends_on: [role]
        max_retries: 2
`))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Behavior.Retries(), "an explicit zero is kept")

	ch, _ := cfg.Chain("smoke")
	role, _ := ch.Step("role")
	unit, _ := ch.Step("unit")
	assert.Equal(t, 0, role.Retries(cfg.Behavior))
	assert.Equal(t, 2, unit.Retries(cfg.Behavior))
}

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.Chains = []ChainConfig{{Name: "a"}, {Name: "b", InvokeTimeout: time.Second}}
	cfg.SSH.Host = "bastion"
	cfg.SetDefaults()

	assert.Equal(t, defaultAWSRegion, cfg.AWS.Region)
	assert.Equal(t, defaultSSHPort, cfg.SSH.Port)
	assert.Equal(t, defaultSandboxVisibility, cfg.Sandbox.Visibility)
	assert.Equal(t, defaultArtifactWorkDir, cfg.Artifact.WorkDir)
	assert.Equal(t, defaultMaxRetries, cfg.Behavior.Retries())
	assert.Equal(t, defaultConsistencyDelay, cfg.Behavior.ConsistencyDelay)
	assert.Equal(t, defaultInvokeTimeout, cfg.Chains[0].InvokeTimeout)
	assert.Equal(t, time.Second, cfg.Chains[1].InvokeTimeout, "explicit values are kept")
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfig_Redacted(t *testing.T) {
	cfg, err := LoadConfig("testdata/lambda-demo.yaml")
	require.NoError(t, err)

	redacted := cfg.Redacted()
	fn, _ := redacted.Chains[0].Step("function")
	assert.Equal(t, redactedValue, fn.Params["api_token"])
	assert.Equal(t, "python3.12", fn.Params["runtime"])
	assert.Equal(t, redactedValue, redacted.Tracing.Headers["authorization"])
	assert.Equal(t, "https://"+redactedValue+"@vm.example.com", redacted.Monitoring.VictoriaMetricsURL)

	orig, _ := cfg.Chains[0].Step("function")
	assert.Equal(t, "do-not-print", orig.Params["api_token"], "the original is not modified")
	assert.Equal(t, "Bearer abc", cfg.Tracing.Headers["authorization"])
}

func TestConfig_ChainNames(t *testing.T) {
	cfg := validConfig()
	cfg.Chains = append(cfg.Chains, ChainConfig{Name: "second"})
	assert.Equal(t, []string{"demo", "second"}, cfg.ChainNames())

	_, ok := cfg.Chain("missing")
	assert.False(t, ok)
}
