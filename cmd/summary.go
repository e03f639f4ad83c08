package cmd

import (
	"github.com/spf13/cobra"

	"marketdb/internal/summary"
)

var summaryCMD = &cobra.Command{
	Use:   "summary [tables...]",
	Short: "Print an overview of the built tables",
	RunE: func(cmd *cobra.Command, tables []string) error {
		if err := summary.Validate(tables); err != nil {
			return err
		}
		return summary.New(cfg.Paths.OutputDir, cmd.OutOrStdout()).Run(tables)
	},
}
