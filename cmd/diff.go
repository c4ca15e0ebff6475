package cmd

import (
	"github.com/spf13/cobra"

	"rie.dev/pkg/rie/internal/domain"
)

// diffCmd represents the diff command.
var diffCmd = newDiffCmd()

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old-artifact> <new-artifact>",
		Short: "Compare the tier assignments of two artifacts",
		Long:  "List files whose tier changed between two artifacts, followed by a unified diff of the tier maps.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := workflow.Diff(cmd.Context(), domain.DiffArgs{Older: args[0], Newer: args[1]})
			return err
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
