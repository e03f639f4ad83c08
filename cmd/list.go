package cmd

import (
	"github.com/spf13/cobra"

	"marketdb/internal/pipeline"
)

var listCMD = &cobra.Command{
	Use:   "list",
	Short: "Show every build step and its status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return pipeline.NewEngine(*cfg).List(cmd.OutOrStdout())
	},
}
