package cmd

import (
	"github.com/spf13/cobra"

	"rie.dev/pkg/rie/internal/domain"
)

var pruneScriptFlag string

// pruneCmd represents the prune command.
var pruneCmd = newPruneCmd()

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune [artifact]",
		Short: "Propose a folder-level cleanup from an artifact",
		Long: `Group the tiered files of an artifact by folder and propose a cleanup:
folders holding only Shadow and Ghost files are removal candidates, mixed
folders get a partial prune, and active files inside archives get a suggested
new home. Folders holding a selected entrypoint and the docs, tests and tools
trees are never proposed for removal.

prune only reports. With --script the plan is also written as a shell script
for review; rie never runs it. Use quarantine for reversible moves.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := workflow.Prune(cmd.Context(), domain.PruneArgs{
				Artifact: artifactArg(args),
				Script:   pruneScriptFlag,
			})

			return err
		},
	}

	cmd.Flags().StringVar(&pruneScriptFlag, scriptFlagName, "", "also write the plan as a shell script to this path")

	return cmd
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
