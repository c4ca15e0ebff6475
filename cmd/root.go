// Package cmd provides the root command and CLI setup for rie.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"rie.dev/pkg/rie/internal/adapter"
	"rie.dev/pkg/rie/internal/controller"
	"rie.dev/pkg/rie/internal/domain"
	m "rie.dev/pkg/rie/internal/model"
)

var fsAdapter adapter.SourceFSAdapter
var pythonAdapter adapter.PythonFileAdapter
var goFileAdapter adapter.GoFileAdapter
var manifestAdapter adapter.ManifestAdapter
var processRunner adapter.ProcessRunnerAdapter
var artifactStore adapter.ArtifactStore
var analyzer domain.StaticAnalyzer
var harness domain.Harness
var workflow domain.Workflow
var ui controller.UI

// artifactFlag is a root-level flag shared by commands that read or write the artifact.
var artifactFlag string

// verboseFlag switches the log file to debug level.
var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewCachedSourceFSAdapter(adapter.DefaultReadCacheSize)
	pythonAdapter = adapter.NewTreeSitterPythonAdapter()
	goFileAdapter = adapter.NewLocalGoFileAdapter()
	manifestAdapter = adapter.NewLocalManifestAdapter()
	processRunner = adapter.NewLocalProcessRunnerAdapter()
	artifactStore = adapter.NewFileArtifactStore()
	analyzer = domain.NewStaticAnalyzer(fsAdapter, pythonAdapter, goFileAdapter)
	harness = domain.NewHarness(fsAdapter, processRunner)
	workflow = domain.NewWorkflow(
		fsAdapter,
		artifactStore,
		manifestAdapter,
		ui,
		analyzer,
		harness,
	)
}

const rootLongDescription = `rie classifies every file of a repository as Core (T0), Periphery (T1),
Shadow (T2) or Ghost (T3) by fusing static imports, optional sandboxed runtime
traces and text references into one dependency graph, ranks the entrypoints
that exercise the most code, and relocates dead files through a reversible
quarantine ledger.

The scan phase is read-only and writes a single artifact; quarantine and
restore consume only that artifact and the ledger.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "rie",
		Short:        "Repository integrity engine",
		Long:         rootLongDescription,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

// newRootCmd builds a fresh root command with its persistent flags, for tests.
func newRootCmd() *cobra.Command {
	cmd := baseRootCmd()
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&artifactFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"artifact path (.json, or .json.zst for zstd)",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// stringFlagOrConfig prefers an explicitly set flag over the configured key. Used where
// several commands share one key, since a viper key binds to a single flag.
func stringFlagOrConfig(cmd *cobra.Command, name, key string) string {
	if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
		return flag.Value.String()
	}

	return viper.GetString(key)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// An interrupt cancels the running command; a scan keeps its partial evidence.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps fatal conditions to distinct process exit codes.
func exitCode(err error) int {
	var aborted *m.ScanAborted

	switch {
	case m.IsConfigurationError(err):
		return 2
	case errors.Is(err, m.ErrLocked):
		return 3
	case errors.As(err, &aborted):
		return 130
	}

	return 1
}

// repoArg returns the repository root named by args, or the working directory.
func repoArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}

	return "."
}
