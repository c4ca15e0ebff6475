package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rie.dev/pkg/rie/internal/domain"
)

// showCmd represents the show command.
var showCmd = newShowCmd()

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [artifact]",
		Short: "Show the tiers, surfaces, entrypoints and violations of an artifact",
		Long: `Show the summary of a previously written artifact: evidence status, tier
counts, surfaces with coverage, the triangulated entrypoints and policy
violations. Degraded evidence sources are called out.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := workflow.Show(cmd.Context(), domain.ShowArgs{Artifact: artifactArg(args)})
			return err
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(showCmd)
}

// artifactArg returns the artifact named by args, or the configured output path.
func artifactArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}

	return viper.GetString(outputFlagName)
}
