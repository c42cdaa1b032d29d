// Command lifecycle-server serves the lifecycle HTTP API and runs chains on
// request and on cron schedules.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brightkeycloud-chad/lifecycle/buildinfo"
	"github.com/brightkeycloud-chad/lifecycle/server"
	serverconfig "github.com/brightkeycloud-chad/lifecycle/server/config"
	"github.com/brightkeycloud-chad/lifecycle/tracing"
)

const tracingShutdownTimeout = 10 * time.Second

type options struct {
	ConfigPath string
	Addr       string
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "lifecycle-server",
		Short: "Lifecycle server - run resource chains over HTTP and on a schedule",
		Example: `  lifecycle-server --config /etc/lifecycle/server.yaml
  lifecycle-server -c server.yaml --addr :9090`,
		Version:       buildinfo.Get().String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to server config file")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides listener.addr")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	srvCfg, err := serverconfig.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}
	if opts.Addr != "" {
		srvCfg.Listener.Addr = opts.Addr
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The exporter is chosen once at startup; reloads do not change it.
	shutdown, err := tracing.Setup(ctx, srv.Config().Tracing, "lifecycle-server", buildinfo.Get().Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			srv.Logger().Warn("failed to flush traces", "error", err)
		}
	}()

	return srv.Run(ctx)
}
