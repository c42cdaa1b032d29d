package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brightkeycloud-chad/lifecycle/buildinfo"
	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/logging"
	"github.com/brightkeycloud-chad/lifecycle/metrics"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/brightkeycloud-chad/lifecycle/providers"
	"github.com/brightkeycloud-chad/lifecycle/tracing"
	"github.com/brightkeycloud-chad/lifecycle/workflow"
	"github.com/brightkeycloud-chad/lifecycle/workflows"
)

const (
	serviceName     = "lifecycle"
	shutdownTimeout = 10 * time.Second
)

var validOutputs = []string{"text", "json"}

// runOptions holds the flags of the run and demo commands.
type runOptions struct {
	Chains      []string
	Yes         bool
	Concurrency int
	Output      string
}

func (o *runOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&o.Chains, "chain", nil, "chain to run (repeatable, default all)")
	cmd.Flags().BoolVarP(&o.Yes, "yes", "y", false, "do not ask for confirmation before creating resources")
	cmd.Flags().IntVar(&o.Concurrency, "concurrency", 0, "maximum chains running at once (0 means no limit)")
	cmd.Flags().StringVarP(&o.Output, "output", "o", "text", "report format (text|json)")
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision, validate and tear down configured chains",
		Example: `  lifecycle run -c config.yaml
  lifecycle run -c config.yaml --chain lambda-smoke --yes
  lifecycle run -c config.yaml -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			return runChains(cmd, cfg, opts)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

// runChains executes the selected chains of cfg and writes their reports.
func runChains(cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	if !slices.Contains(validOutputs, opts.Output) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid output %q: must be one of %v", opts.Output, validOutputs))
	}
	chains, err := selectChains(cfg, opts.Chains)
	if err != nil {
		return err
	}

	if cfg.Behavior.ConfirmCleanup && !opts.Yes {
		ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), chains)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read confirmation", err)
		}
		if !ok {
			return NewExitError(ExitCommandError, "run aborted")
		}
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	props := buildinfo.Get()
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, serviceName, props.Version)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize tracing", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	logger.Info("lifecycle started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"chains", chains,
	)

	var push *metrics.PushRegistry
	params := workflows.Params{Config: cfg, Logger: logger}
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		hostname, err := os.Hostname()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to get hostname", err)
		}
		push = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
		})
		params.Observer, err = metrics.NewLifecycleObserver(push)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create metrics", err)
		}
	}

	registry := providers.New(cfg, providers.WithLogger(logger))
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("failed to close provider connections", "error", err)
		}
	}()
	params.Providers = registry

	wfs, err := workflows.New(ctx, params, chains...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create workflows", err)
	}
	reports, runErr := workflow.Compose(wfs, workflow.WithConcurrency(opts.Concurrency)).Execute(ctx)

	if err := writeReports(cmd.OutOrStdout(), opts.Output, reports); err != nil {
		return WrapExitError(ExitFailure, "failed to write report", err)
	}
	if push != nil {
		pushMetrics(logger, cfg.Monitoring, push, reports)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	if !workflow.Succeeded(reports) {
		left := 0
		for _, r := range reports {
			if r != nil {
				left += len(r.LeftBehind())
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("run did not succeed (%d resource(s) left behind)", left))
	}
	return nil
}

// selectChains returns the requested chains, or every configured chain when
// none was requested.
func selectChains(cfg *config.Config, requested []string) ([]string, error) {
	available := workflows.Available(cfg)
	if len(requested) == 0 {
		if len(available) == 0 {
			return nil, NewExitError(ExitCommandError, "no chains configured")
		}
		return available, nil
	}
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if !slices.Contains(available, name) {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("unknown chain %q (available: %s)", name, strings.Join(available, ", ")))
		}
		if seen[name] {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("duplicate chain %q", name))
		}
		seen[name] = true
	}
	return requested, nil
}

// confirm asks whether to go ahead with a run that creates resources. Only
// "y" and "yes" count as consent.
func confirm(in io.Reader, out io.Writer, chains []string) (bool, error) {
	fmt.Fprintf(out, "This run creates resources for chains %s and deletes them when it finishes.\n", strings.Join(chains, ", "))
	fmt.Fprint(out, "Continue? [y/N]: ")

	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// pushMetrics sends the observer's series and a summary per report. Failures
// are logged; they do not change the run's exit code.
func pushMetrics(logger *slog.Logger, mon config.MonitoringConfig, push *metrics.PushRegistry, reports []*orchestrator.ExecutionReport) {
	ctx, cancel := context.WithTimeout(context.Background(), metrics.DefaultTimeout)
	defer cancel()

	if err := push.Flush(ctx); err != nil {
		logger.Warn("failed to push lifecycle metrics", "error", err)
	}
	client := metrics.NewClient(mon.VictoriaMetricsURL, mon.MetricsPrefix)
	var summary []metrics.Metric
	for _, r := range reports {
		if r != nil {
			summary = append(summary, metrics.ReportMetrics(r)...)
		}
	}
	if len(summary) == 0 {
		return
	}
	if err := client.PushMetrics(ctx, summary); err != nil {
		logger.Warn("failed to push run summary", "error", err)
		return
	}
	logger.Info("pushed run metrics", "series", len(summary))
}
