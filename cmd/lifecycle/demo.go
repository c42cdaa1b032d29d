package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/logging"
	"github.com/brightkeycloud-chad/lifecycle/workflows/demo"
)

type demoOptions struct {
	runOptions
	Delay      time.Duration
	Visibility int
	LogLevel   string
}

func newDemoCommand() *cobra.Command {
	opts := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in chains against the in-memory sandbox",
		Long: `Demo runs two chains on the sandbox provider, so no cloud account is needed.
"demo" provisions a role, a package, a function, its log group and a
configuration update, validates the function and tears everything down.
"demo-failure" fails at its function step and shows the earlier steps being
removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{
				Behavior: config.BehaviorConfig{ConsistencyDelay: opts.Delay},
				Sandbox:  config.SandboxConfig{Visibility: opts.Visibility},
				Logging:  logging.Config{Level: opts.LogLevel, Format: "text", Output: "stderr"},
			}
			demo.Register(cfg)
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid demo settings", err)
			}
			return runChains(cmd, cfg, &opts.runOptions)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Chains, "chain", []string{demo.Name}, "demo chain to run ("+demo.Name+" or "+demo.FailureName+")")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "maximum chains running at once (0 means no limit)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "report format (text|json)")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 200*time.Millisecond, "wait between attempts of a step that is not yet visible")
	cmd.Flags().IntVar(&opts.Visibility, "visibility", 1, "create attempts that fail before a new resource becomes visible")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	return cmd
}
