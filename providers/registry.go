// Package providers maps configured steps onto the capabilities that carry them out.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brightkeycloud-chad/lifecycle/clients/sshclient"
	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/brightkeycloud-chad/lifecycle/providers/artifact"
	"github.com/brightkeycloud-chad/lifecycle/providers/awscloud"
	"github.com/brightkeycloud-chad/lifecycle/providers/remote"
	"github.com/brightkeycloud-chad/lifecycle/providers/sandbox"
)

// UnsupportedKindError is returned when a provider has no capability for a kind.
type UnsupportedKindError struct {
	Provider string
	Kind     orchestrator.Kind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("provider %s has no capability for kind %s", e.Provider, e.Kind)
}

// Vars are substituted into step params before a run. A param may reference
// {{.RunID}}, {{.ShortID}} (the first 8 characters of the run ID) and
// {{.Timestamp}} (Unix seconds) to get names unique to the run.
type Vars struct {
	RunID     string
	Timestamp time.Time
}

func (v Vars) replacer() *strings.Replacer {
	short := v.RunID
	if len(short) > 8 {
		short = short[:8]
	}
	return strings.NewReplacer(
		"{{.RunID}}", v.RunID,
		"{{.ShortID}}", short,
		"{{.Timestamp}}", strconv.FormatInt(v.Timestamp.Unix(), 10),
	)
}

// Registry creates capabilities for the providers named in a configuration.
// Provider clients are created on first use and shared by every chain built
// from the registry.
type Registry struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	sandbox *sandbox.Cloud
	aws     *awscloud.Clients
	runner  remote.Runner
	ssh     *sshclient.SSHClient
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger handed to capabilities.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithSandbox uses cloud for the sandbox provider.
func WithSandbox(cloud *sandbox.Cloud) Option {
	return func(r *Registry) {
		r.sandbox = cloud
	}
}

// WithAWSClients uses clients for the aws provider instead of loading the
// default credential chain.
func WithAWSClients(clients *awscloud.Clients) Option {
	return func(r *Registry) {
		r.aws = clients
	}
}

// WithRunner uses runner for the remote provider instead of dialing ssh.host.
func WithRunner(runner remote.Runner) Option {
	return func(r *Registry) {
		r.runner = runner
	}
}

// New creates a registry for cfg.
func New(cfg *config.Config, opts ...Option) *Registry {
	r := &Registry{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capability returns the capability of provider for kind.
func (r *Registry) Capability(ctx context.Context, provider string, kind orchestrator.Kind) (orchestrator.Capability, error) {
	switch provider {
	case config.ProviderSandbox:
		return r.sandboxCloud().Capability(kind), nil

	case config.ProviderArtifact:
		if kind != orchestrator.KindArtifactPackage {
			return nil, &UnsupportedKindError{Provider: provider, Kind: kind}
		}
		packager := artifact.ZipPackager{BaseDir: r.cfg.Artifact.SourceDir}
		return artifact.NewCapability(packager, r.cfg.Artifact.WorkDir, r.logger), nil

	case config.ProviderAWS:
		clients, err := r.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		switch kind {
		case orchestrator.KindRole:
			return awscloud.NewRoleCapability(clients.IAM, r.logger), nil
		case orchestrator.KindDeployedUnit:
			return awscloud.NewFunctionCapability(clients.Lambda, r.logger), nil
		case orchestrator.KindConfigurationChange:
			return awscloud.NewFunctionConfigCapability(clients.Lambda, r.logger), nil
		case orchestrator.KindLogGroup:
			return awscloud.NewLogGroupCapability(clients.Logs, r.logger), nil
		}
		return nil, &UnsupportedKindError{Provider: provider, Kind: kind}

	case config.ProviderRemote:
		if kind != orchestrator.KindRemoteCommand && kind != orchestrator.KindGeneric {
			return nil, &UnsupportedKindError{Provider: provider, Kind: kind}
		}
		runner, err := r.remoteRunner()
		if err != nil {
			return nil, err
		}
		return remote.NewCommandCapability(runner, r.logger), nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

// Steps builds the orchestrator steps of ch with vars substituted into params.
func (r *Registry) Steps(ctx context.Context, ch config.ChainConfig, vars Vars) ([]orchestrator.Step, error) {
	rep := vars.replacer()
	steps := make([]orchestrator.Step, 0, len(ch.Steps))
	for _, sc := range ch.Steps {
		kind, err := orchestrator.ParseKind(sc.Kind)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", sc.Name, err)
		}
		capability, err := r.Capability(ctx, sc.Provider, kind)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", sc.Name, err)
		}
		params := make(map[string]string, len(sc.Params))
		for k, v := range sc.Params {
			params[k] = rep.Replace(v)
		}
		steps = append(steps, orchestrator.Step{
			Name:                     sc.Name,
			Kind:                     kind,
			DependsOn:                sc.DependsOn,
			Params:                   params,
			Capability:               capability,
			EventualConsistencyDelay: sc.Delay(r.cfg.Behavior),
			MaxRetries:               sc.Retries(r.cfg.Behavior),
		})
	}
	return steps, nil
}

// Invoker returns the invoker for the chain's validation target: the named
// target, or else the last deployed_unit step. It returns nil when the chain
// has no validation cases.
func Invoker(chain *orchestrator.Chain, target string, cases int) (orchestrator.Invoker, error) {
	if cases == 0 {
		return nil, nil
	}
	var step orchestrator.Step
	if target != "" {
		s, ok := chain.Step(target)
		if !ok {
			return nil, fmt.Errorf("validation target %q is not a step", target)
		}
		step = s
	} else {
		found := false
		for _, s := range chain.ForwardOrder() {
			if s.Kind == orchestrator.KindDeployedUnit {
				step, found = s, true
			}
		}
		if !found {
			return nil, errors.New("chain has validation cases but no deployed_unit step")
		}
	}
	invoker, ok := step.Capability.(orchestrator.Invoker)
	if !ok {
		return nil, fmt.Errorf("step %s cannot be invoked", step.Name)
	}
	return invoker, nil
}

// Sandbox returns the registry's sandbox cloud, creating it if needed.
func (r *Registry) Sandbox() *sandbox.Cloud {
	return r.sandboxCloud()
}

// AWSIdentity reports the account the aws provider works in.
func (r *Registry) AWSIdentity(ctx context.Context) (awscloud.Identity, error) {
	clients, err := r.awsClients(ctx)
	if err != nil {
		return awscloud.Identity{}, err
	}
	return clients.Identity(ctx)
}

// Close closes the SSH connection if one was opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ssh == nil {
		return nil
	}
	err := r.ssh.Close()
	r.ssh = nil
	r.runner = nil
	return err
}

func (r *Registry) sandboxCloud() *sandbox.Cloud {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sandbox == nil {
		r.sandbox = sandbox.New(
			sandbox.WithVisibility(r.cfg.Sandbox.Visibility),
			sandbox.WithLogger(r.logger),
		)
	}
	return r.sandbox
}

func (r *Registry) awsClients(ctx context.Context) (*awscloud.Clients, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aws == nil {
		clients, err := awscloud.NewClients(ctx, r.cfg.AWS.Region, r.cfg.AWS.Profile)
		if err != nil {
			return nil, err
		}
		r.aws = clients
	}
	return r.aws, nil
}

func (r *Registry) remoteRunner() (remote.Runner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runner == nil {
		ssh := r.cfg.SSH
		client, err := sshclient.NewFromKeyFile(sshclient.Config{
			Host:           ssh.Host,
			Port:           ssh.Port,
			User:           ssh.User,
			KnownHostsFile: ssh.KnownHostsFile,
		}, ssh.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", ssh.Host, err)
		}
		r.ssh = client
		r.runner = client
	}
	return r.runner, nil
}
