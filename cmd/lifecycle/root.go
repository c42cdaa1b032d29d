package main

import (
	"github.com/spf13/cobra"

	"github.com/brightkeycloud-chad/lifecycle/config"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Provision, validate and tear down chains of dependent cloud resources",
		Long: `lifecycle creates the resources of each configured chain in dependency order,
runs the chain's validation cases against the deployed workload and then deletes
every resource it created in reverse order, whether or not anything failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newGraphCommand(opts))
	cmd.AddCommand(newDemoCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadConfig reads the file named by --config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.ConfigPath == "" {
		return nil, NewExitError(ExitCommandError, "config flag (-c or --config) is required")
	}
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return &cfg, nil
}
