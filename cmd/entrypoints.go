package cmd

import (
	"github.com/spf13/cobra"

	"rie.dev/pkg/rie/internal/domain"
)

// entrypointsCmd represents the entrypoints command.
var entrypointsCmd = newEntrypointsCmd()

func newEntrypointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entrypoints [artifact]",
		Short: "List entrypoint candidates with their component scores",
		Long: `List every entrypoint candidate ranked by composite score, with the reach,
centrality, filename, role and main-guard components, the static-only share of
the score and the trace outcome. Candidates chosen by triangulation show
their pick order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := workflow.Entrypoints(cmd.Context(), domain.ShowArgs{Artifact: artifactArg(args)})
			return err
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(entrypointsCmd)
}
