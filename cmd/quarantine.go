package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rie.dev/pkg/rie/internal/domain"
)

var quarantineTiersFlag []string
var quarantineDryRunFlag bool
var quarantineDirFlag string

// quarantineCmd represents the quarantine command.
var quarantineCmd = newQuarantineCmd()

func newQuarantineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine [repo]",
		Short: "Move files of the selected tiers out of the repository",
		Long: `Move every file of the selected tiers (default T3) into the quarantine
directory next to the repository, recording each move in an append-only
ledger. Files changed since the scan are left in place. Use restore to undo.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			_, err = workflow.Quarantine(cmd.Context(), domain.QuarantineArgs{
				Artifact: viper.GetString(outputFlagName),
				RepoRoot: repoArg(args),
				Tiers:    cfg.Quarantine.Tiers,
				Dir:      stringFlagOrConfig(cmd, dirFlagName, quarantineDirConfigKey),
				DryRun:   quarantineDryRunFlag,
			})

			return err
		},
	}

	cmd.Flags().StringSliceVar(&quarantineTiersFlag, tiersFlagName, viper.GetStringSlice(quarantineTiersKey), "tiers to quarantine, e.g. T2,T3")
	bindFlagToConfig(cmd.Flags().Lookup(tiersFlagName), quarantineTiersKey)
	cmd.Flags().BoolVar(&quarantineDryRunFlag, dryRunFlagName, false, "plan the moves without touching any file")
	cmd.Flags().StringVar(&quarantineDirFlag, dirFlagName, "", "quarantine directory (default: sibling _quarantine_<repo>)")

	return cmd
}

func init() {
	rootCmd.AddCommand(quarantineCmd)
}
