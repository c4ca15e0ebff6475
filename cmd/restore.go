package cmd

import (
	"github.com/spf13/cobra"

	"rie.dev/pkg/rie/internal/domain"
)

var restoreDryRunFlag bool
var restoreDirFlag string

// restoreCmd represents the restore command.
var restoreCmd = newRestoreCmd()

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore [repo]",
		Short: "Move quarantined files back to their original locations",
		Long: `Replay the quarantine ledger in reverse and move every committed file back.
A file whose original location is occupied is reported as a conflict and left
in quarantine. Only the ledger is consulted, never the artifact.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFileErr != nil {
				return configFileErr
			}

			_, err := workflow.Restore(cmd.Context(), domain.RestoreArgs{
				RepoRoot: repoArg(args),
				Dir:      stringFlagOrConfig(cmd, dirFlagName, quarantineDirConfigKey),
				DryRun:   restoreDryRunFlag,
			})

			return err
		},
	}

	cmd.Flags().BoolVar(&restoreDryRunFlag, dryRunFlagName, false, "plan the restores without touching any file")
	cmd.Flags().StringVar(&restoreDirFlag, dirFlagName, "", "quarantine directory (default: sibling _quarantine_<repo>)")

	return cmd
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
