package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rie.dev/pkg/rie/internal/domain"
	m "rie.dev/pkg/rie/internal/model"
)

const scanLongDescription = `Scan a repository (default: current directory) and write the artifact.

Static imports and text references are always collected. With --trace every
entrypoint candidate is also executed in an isolated child interpreter whose
file writes, process spawns and network access are blocked; module loads are
recorded as runtime edges. Entrypoints that boot services get --boot-timeout
instead of --trace-timeout. The repository is never modified.

--target scopes the engine: auto keeps engine.roots, global treats the whole
repository as engine, engine uses engine.roots or infers the busiest top-level
folder, and any other value names the folder to treat as engine.`

var scanIncludeFlag []string
var scanExcludeFlag []string
var scanParallelFlag int
var scanTopKFlag int
var scanTraceFlag bool
var scanTraceModeFlag string
var scanTraceTimeoutFlag time.Duration
var scanBootTimeoutFlag time.Duration
var scanTargetFlag string

// scanCmd represents the scan command.
var scanCmd = newScanCmd()

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [repo]",
		Short: "Analyze a repository and write the artifact",
		Long:  scanLongDescription,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			_, err = workflow.Scan(cmd.Context(), domain.ScanArgs{
				RepoRoot: repoArg(args),
				Config:   cfg,
				Output:   viper.GetString(outputFlagName),
			})

			var aborted *m.ScanAborted
			if errors.As(err, &aborted) {
				cmd.PrintErrf("scan interrupted; partial evidence kept in %s\n", aborted.SpillPath)
			}

			return err
		},
	}

	configureScanFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func configureScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&scanIncludeFlag, includeFlagName, viper.GetStringSlice(includeConfigKey), "only scan files matching glob (can be repeated)")
	bindFlagToConfig(cmd.Flags().Lookup(includeFlagName), includeConfigKey)

	cmd.Flags().StringArrayVarP(&scanExcludeFlag, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude files matching glob (can be repeated)")
	bindFlagToConfig(cmd.Flags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.Flags().IntVarP(&scanParallelFlag, parallelFlagName, "p", viper.GetInt(parallelConfigKey), "number of parallel workers")
	bindFlagToConfig(cmd.Flags().Lookup(parallelFlagName), parallelConfigKey)

	cmd.Flags().IntVar(&scanTopKFlag, topKFlagName, viper.GetInt(topKConfigKey), "number of entrypoints selected by triangulation")
	bindFlagToConfig(cmd.Flags().Lookup(topKFlagName), topKConfigKey)

	cmd.Flags().BoolVar(&scanTraceFlag, traceFlagName, viper.GetBool(traceEnabledKey), "trace entrypoint candidates in a sandboxed interpreter")
	bindFlagToConfig(cmd.Flags().Lookup(traceFlagName), traceEnabledKey)

	cmd.Flags().StringVar(&scanTraceModeFlag, traceModeFlagName, viper.GetString(traceModeKey), "trace mode: auto (imports only) or full (run as __main__)")
	bindFlagToConfig(cmd.Flags().Lookup(traceModeFlagName), traceModeKey)

	cmd.Flags().DurationVar(&scanTraceTimeoutFlag, traceTimeoutFlagName, viper.GetDuration(traceTimeoutKey), "wall-clock limit per traced entrypoint")
	bindFlagToConfig(cmd.Flags().Lookup(traceTimeoutFlagName), traceTimeoutKey)

	cmd.Flags().DurationVar(&scanBootTimeoutFlag, bootTimeoutFlagName, viper.GetDuration(traceBootTimeoutKey), "wall-clock limit for entrypoints that boot services")
	bindFlagToConfig(cmd.Flags().Lookup(bootTimeoutFlagName), traceBootTimeoutKey)

	cmd.Flags().StringVar(&scanTargetFlag, targetFlagName, viper.GetString(targetConfigKey), "engine scope: auto, engine, global or a folder")
	bindFlagToConfig(cmd.Flags().Lookup(targetFlagName), targetConfigKey)
}
