package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/brightkeycloud-chad/lifecycle/logging"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/brightkeycloud-chad/lifecycle/tracing"
)

const (
	// Default behavior settings
	defaultMaxRetries       = 3
	defaultConsistencyDelay = 10 * time.Second
	defaultInvokeTimeout    = 30 * time.Second

	// Default provider settings
	defaultAWSRegion         = "us-east-1"
	defaultSSHPort           = 22
	defaultArtifactWorkDir   = "build"
	defaultSandboxVisibility = 1

	// Default monitoring settings
	defaultJobName = "lifecycle"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"

	redactedValue = "********"
)

// Provider names accepted in a step's provider field.
const (
	ProviderAWS      = "aws"
	ProviderSandbox  = "sandbox"
	ProviderArtifact = "artifact"
	ProviderRemote   = "remote"
)

// Config represents the complete application configuration
type Config struct {
	AWS        AWSConfig        `yaml:"aws"`
	SSH        SSHConfig        `yaml:"ssh"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Artifact   ArtifactConfig   `yaml:"artifact"`
	Chains     []ChainConfig    `yaml:"chains" validate:"unique=Name,dive"`
	Behavior   BehaviorConfig   `yaml:"behavior"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    logging.Config   `yaml:"logging"`
	Tracing    tracing.Config   `yaml:"tracing"`
}

// AWSConfig selects the account and region the aws provider works in.
type AWSConfig struct {
	Region    string `yaml:"region"`
	Profile   string `yaml:"profile"`
	AccountID string `yaml:"account_id" validate:"omitempty,numeric,len=12"`
}

// SSHConfig holds the connection used by the remote provider.
type SSHConfig struct {
	Host           string `yaml:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port           int    `yaml:"port" validate:"gte=0,lte=65535"`
	User           string `yaml:"user" validate:"required_with=Host"`
	PrivateKeyFile string `yaml:"private_key_file" validate:"required_with=Host"`
	// KnownHostsFile verifies the host key. Empty accepts any key.
	KnownHostsFile string `yaml:"known_hosts_file"`
}

// SandboxConfig tunes the in-memory provider.
type SandboxConfig struct {
	// Visibility is how many create attempts of a dependent step fail with a
	// consistency error before a new resource becomes visible to it.
	Visibility int `yaml:"visibility" validate:"gte=0"`
}

// ArtifactConfig holds settings for built deployment packages.
type ArtifactConfig struct {
	// WorkDir is where packages are written.
	WorkDir string `yaml:"work_dir"`
	// SourceDir resolves relative paths in a step's files param.
	SourceDir string `yaml:"source_dir"`
}

// ChainConfig describes one dependency chain and how to validate it.
type ChainConfig struct {
	Name             string        `yaml:"name" validate:"required,chainname"`
	Description      string        `yaml:"description"`
	Steps            []StepConfig  `yaml:"steps" validate:"required,min=1,unique=Name,dive"`
	Validation       []CaseConfig  `yaml:"validation" validate:"dive"`
	ValidationTarget string        `yaml:"validation_target"`
	InvokeTimeout    time.Duration `yaml:"invoke_timeout" validate:"gte=0"`
}

// StepConfig describes one step of a chain.
type StepConfig struct {
	Name      string            `yaml:"name" validate:"required"`
	Kind      string            `yaml:"kind" validate:"required,kind"`
	Provider  string            `yaml:"provider" validate:"required,oneof=aws sandbox artifact remote"`
	DependsOn []string          `yaml:"depends_on"`
	Params    map[string]string `yaml:"params"`
	// MaxRetries overrides behavior.max_retries when set.
	MaxRetries *int `yaml:"max_retries" validate:"omitempty,gte=0"`
	// ConsistencyDelay overrides behavior.consistency_delay when non-zero.
	ConsistencyDelay time.Duration `yaml:"consistency_delay" validate:"gte=0"`
}

// CaseConfig is one validation case. With Field set, Expect is compared against
// that path in the output. With Contains set, the JSON output must contain it.
// Otherwise the whole output must equal Expect.
type CaseConfig struct {
	Name     string `yaml:"name" validate:"required"`
	Input    any    `yaml:"input"`
	Expect   any    `yaml:"expect"`
	Field    string `yaml:"field"`
	Contains string `yaml:"contains" validate:"excluded_with=Field"`
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url" validate:"omitempty,url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// BehaviorConfig defines application behavior settings
type BehaviorConfig struct {
	// MaxRetries is the retry limit of steps that set none. 0 disables retries.
	MaxRetries       *int          `yaml:"max_retries" validate:"omitempty,gte=0"`
	ConsistencyDelay time.Duration `yaml:"consistency_delay" validate:"gte=0"`
	// ConfirmCleanup asks for confirmation before a run that creates resources.
	ConfirmCleanup bool `yaml:"confirm_cleanup"`
}

var chainNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("kind", func(fl validator.FieldLevel) bool {
		_, err := orchestrator.ParseKind(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("chainname", func(fl validator.FieldLevel) bool {
		return chainNameRe.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks field constraints and the structure of every chain.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	var errs []error
	for _, ch := range c.Chains {
		if err := ch.validateStructure(); err != nil {
			errs = append(errs, fmt.Errorf("chain %q: %w", ch.Name, err))
		}
		for _, s := range ch.Steps {
			if s.Provider == ProviderRemote && c.SSH.Host == "" {
				errs = append(errs, fmt.Errorf("chain %q step %q: remote provider requires ssh.host", ch.Name, s.Name))
			}
		}
	}
	return errors.Join(errs...)
}

// validateStructure checks dependency references, acyclicity and the
// validation target without touching any provider.
func (ch ChainConfig) validateStructure() error {
	steps := make([]orchestrator.Step, 0, len(ch.Steps))
	for _, s := range ch.Steps {
		kind, _ := orchestrator.ParseKind(s.Kind)
		steps = append(steps, orchestrator.Step{Name: s.Name, Kind: kind, DependsOn: s.DependsOn})
	}
	if _, err := orchestrator.NewChain(steps...); err != nil {
		return err
	}
	if ch.ValidationTarget != "" {
		if _, ok := ch.Step(ch.ValidationTarget); !ok {
			return fmt.Errorf("validation_target %q is not a step", ch.ValidationTarget)
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required", "required_with", "required_if":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "kind":
			msgs = append(msgs, fmt.Sprintf("%s: unknown resource kind %q", field, fe.Value()))
		case "unique":
			msgs = append(msgs, fmt.Sprintf("%s must have unique %s values", field, strings.ToLower(fe.Param())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s validation (value %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.AWS.Region == "" {
		c.AWS.Region = defaultAWSRegion
	}
	if c.SSH.Host != "" && c.SSH.Port == 0 {
		c.SSH.Port = defaultSSHPort
	}
	if c.Sandbox.Visibility == 0 {
		c.Sandbox.Visibility = defaultSandboxVisibility
	}
	if c.Artifact.WorkDir == "" {
		c.Artifact.WorkDir = defaultArtifactWorkDir
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Behavior.MaxRetries == nil {
		n := defaultMaxRetries
		c.Behavior.MaxRetries = &n
	}
	if c.Behavior.ConsistencyDelay == 0 {
		c.Behavior.ConsistencyDelay = defaultConsistencyDelay
	}
	for i := range c.Chains {
		if c.Chains[i].InvokeTimeout == 0 {
			c.Chains[i].InvokeTimeout = defaultInvokeTimeout
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// Chain returns the chain with the given name.
func (c *Config) Chain(name string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// ChainNames returns the configured chain names in declaration order.
func (c *Config) ChainNames() []string {
	names := make([]string, 0, len(c.Chains))
	for _, ch := range c.Chains {
		names = append(names, ch.Name)
	}
	return names
}

// Step returns the step with the given name.
func (ch ChainConfig) Step(name string) (StepConfig, bool) {
	for _, s := range ch.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepConfig{}, false
}

// Retries returns the default retry limit of steps.
func (b BehaviorConfig) Retries() int {
	if b.MaxRetries != nil {
		return *b.MaxRetries
	}
	return defaultMaxRetries
}

// Retries returns the step's retry limit, falling back to the behavior default.
func (s StepConfig) Retries(b BehaviorConfig) int {
	if s.MaxRetries != nil {
		return *s.MaxRetries
	}
	return b.Retries()
}

// Delay returns the step's consistency delay, falling back to the behavior default.
func (s StepConfig) Delay(b BehaviorConfig) time.Duration {
	if s.ConsistencyDelay > 0 {
		return s.ConsistencyDelay
	}
	return b.ConsistencyDelay
}

var secretParam = regexp.MustCompile(`(?i)(secret|token|password|credential)`)

// Redacted returns a copy of the config with secrets masked, suitable for display.
func (c Config) Redacted() Config {
	out := c
	if len(c.Tracing.Headers) > 0 {
		out.Tracing.Headers = make(map[string]string, len(c.Tracing.Headers))
		for k := range c.Tracing.Headers {
			out.Tracing.Headers[k] = redactedValue
		}
	}
	out.Monitoring.VictoriaMetricsURL = redactURL(c.Monitoring.VictoriaMetricsURL)

	out.Chains = make([]ChainConfig, len(c.Chains))
	for i, ch := range c.Chains {
		out.Chains[i] = ch
		out.Chains[i].Steps = make([]StepConfig, len(ch.Steps))
		for j, s := range ch.Steps {
			out.Chains[i].Steps[j] = s
			if len(s.Params) == 0 {
				continue
			}
			params := make(map[string]string, len(s.Params))
			for k, v := range s.Params {
				if secretParam.MatchString(k) {
					v = redactedValue
				}
				params[k] = v
			}
			out.Chains[i].Steps[j].Params = params
		}
	}
	return out
}

var urlUserinfo = regexp.MustCompile(`^([a-z][a-z0-9+.-]*://)[^/@]+@`)

func redactURL(u string) string {
	return urlUserinfo.ReplaceAllString(u, "${1}"+redactedValue+"@")
}

// Parse decodes a YAML document, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
