package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	m "rie.dev/pkg/rie/internal/model"
)

// versionLines describes the binary: module version, the artifact format it reads and
// writes, and the commit it was built from when the build recorded one.
func versionLines(info *debug.BuildInfo, ok bool) []string {
	version := "unknown"
	if ok && info.Main.Version != "" {
		version = info.Main.Version
	}

	lines := []string{
		"rie version\t" + version,
		fmt.Sprintf("artifact format\t%d", m.ArtifactVersion),
	}

	if !ok {
		return lines
	}

	var revision, modified string

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}

	if revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}

		if modified == "true" {
			revision += "-dirty"
		}

		lines = append(lines, "commit\t\t"+revision)
	}

	return append(lines, "go version\t"+info.GoVersion)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Long: `Displays the build version, the artifact format this binary reads and writes,
the commit it was built from and the Go version. Artifacts written with another
format must be regenerated with rie scan.`,
		Run: func(cmd *cobra.Command, _ []string) {
			info, ok := debug.ReadBuildInfo()

			for _, line := range versionLines(info, ok) {
				cmd.Println(line)
			}
		},
	}
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
