package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/providers"
	"github.com/brightkeycloud-chad/lifecycle/workflows"
)

type validateOptions struct {
	CheckAWS bool
}

func newValidateCommand(root *rootOptions) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without creating anything",
		Long: `Validate parses the configuration and checks every chain's dependency graph.
With --check-aws it also resolves the AWS account the aws provider would use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid: %s\n", root.ConfigPath)
			for _, ch := range cfg.Chains {
				chain, err := workflows.Graph(ch)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("chain %s", ch.Name), err)
				}
				plan := chain.Plan()
				fmt.Fprintf(out, "  %s: %d step(s), %d validation case(s), teardown %s\n",
					ch.Name, len(plan.Provision), len(ch.Validation), strings.Join(plan.Teardown, " -> "))
			}

			if opts.CheckAWS {
				if !usesProvider(cfg, config.ProviderAWS) {
					fmt.Fprintln(out, "No chain uses the aws provider")
					return nil
				}
				id, err := providers.New(cfg).AWSIdentity(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to resolve AWS identity", err)
				}
				fmt.Fprintf(out, "AWS account %s in %s as %s\n", id.Account, id.Region, id.ARN)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.CheckAWS, "check-aws", false, "resolve the AWS caller identity")
	return cmd
}

func usesProvider(cfg *config.Config, provider string) bool {
	for _, ch := range cfg.Chains {
		if slices.ContainsFunc(ch.Steps, func(s config.StepConfig) bool { return s.Provider == provider }) {
			return true
		}
	}
	return false
}
