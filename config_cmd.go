package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cdgc-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := cliContextFrom(cmd.Context())
			if err != nil {
				return err
			}

			return runConfigShow(cc)
		},
	}
}

func runConfigShow(cc *CLIContext) error {
	if cc.Flags.JSON {
		return printJSON(cc.Stdout, config.Effective(cc.Cfg))
	}

	return config.RenderEffective(cc.Cfg, cc.Stdout)
}
