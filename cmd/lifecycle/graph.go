package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brightkeycloud-chad/lifecycle/workflows"
)

type graphOptions struct {
	Chain  string
	Format string
}

func newGraphCommand(root *rootOptions) *cobra.Command {
	opts := &graphOptions{}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print a chain's dependency graph",
		Example: `  lifecycle graph -c config.yaml --chain lambda-smoke | dot -Tsvg > chain.svg
  lifecycle graph -c config.yaml --chain lambda-smoke --format mermaid`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ch, ok := cfg.Chain(opts.Chain)
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown chain %q", opts.Chain))
			}
			chain, err := workflows.Graph(ch)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("chain %s", ch.Name), err)
			}

			out := cmd.OutOrStdout()
			switch opts.Format {
			case "dot":
				fmt.Fprint(out, chain.DOT(ch.Name))
			case "mermaid":
				fmt.Fprint(out, chain.Mermaid())
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(chain.Plan())
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of dot, mermaid, json", opts.Format))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Chain, "chain", "", "chain to render")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "dot", "output format (dot|mermaid|json)")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}
