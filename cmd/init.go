package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

// templateKey is one commented leaf of the generated rie.yaml.
type templateKey struct {
	name    string
	comment string
	value   any
}

// templateSection groups keys under a top-level name. A section without keys is a leaf.
type templateSection struct {
	name    string
	comment string
	keys    []templateKey
	value   any
}

func configSections() []templateSection {
	defaults := m.DefaultConfig()

	return []templateSection{
		{name: configVersionKey, comment: "Configuration format.", value: currentConfigVersion},
		{
			name: "scan", comment: "What is analyzed.",
			keys: []templateKey{
				{"target", "auto keeps engine.roots, global scans everything as engine, engine infers\nthe busiest top-level folder when engine.roots is empty, anything else is a folder.", defaults.Target},
				{"include", "Only files matching these globs are analyzed.", []string{}},
				{"exclude", "Files matching these globs are skipped.", []string{}},
				{"package_roots", "Extra directories absolute imports resolve against, e.g. src.", []string{}},
				{"top_k", "Entrypoints selected by triangulation.", defaults.TopK},
			},
		},
		{
			name: "trace", comment: "Sandboxed runtime tracing of entrypoint candidates.",
			keys: []templateKey{
				{"enabled", "", defaults.Trace.Enabled},
				{"mode", "auto records imports only; full runs the entrypoint as __main__.", string(defaults.Trace.Mode)},
				{"timeout", "Wall-clock limit per traced entrypoint.", defaultTraceTimeoutText},
				{"boot_timeout", "Limit for entrypoints that bring up servers, workers or event loops.", defaultBootTimeoutText},
				{"interpreter", "", defaults.Trace.Interpreter},
				{"writable_paths", "Repository paths the traced code may write to.", []string{}},
				{"permitted_hosts", "Hosts the traced code may connect to.", []string{}},
				{"env_file", "dotenv file loaded into the traced environment.", ""},
			},
		},
		{
			name: "engine", comment: "Folders holding the engine. Files outside them are Periphery at best.",
			keys: []templateKey{{"roots", "", []string{}}},
		},
		{name: surfacesKey, comment: "Named subtrees, e.g. web: apps/web.", value: map[string]string{}},
		{
			name: "cross_surface", comment: "Surface pairs allowed to import each other, e.g. {from: web, to: api}.",
			keys: []templateKey{{"allow", "", []m.SurfacePair{}}},
		},
		{name: domainsKey, comment: "Labels for groups of files; periphery domains never become Core.", value: []m.DomainRule{}},
		{name: archivePathsKey, comment: "Globs marking retired code in addition to archive/, legacy/, deprecated/ and old/.", value: []string{}},
		{
			name: "quarantine", comment: "Where quarantined files go.",
			keys: []templateKey{
				{"tiers", "Tiers moved by rie quarantine.", []string{string(m.TierGhost)}},
				{"dir", "Defaults to a sibling of the repository. The restore ledger is " + adapter.LedgerFileName + " inside it.", ""},
			},
		},
		{
			name: "log", comment: "Rotated log file.",
			keys: []templateKey{
				{"filename", "", defaultLogFilename},
				{"level", "debug, info, warn or error.", "info"},
				{"max_size", "Megabytes before rotation.", defaultLogMaxSize},
				{"max_backups", "", defaultLogMaxBackups},
				{"max_age", "Days to keep rotated files.", defaultLogMaxAge},
				{"compress", "", defaultLogCompress},
			},
		},
	}
}

// configTemplate renders the starter rie.yaml with a comment on each key.
func configTemplate() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	for _, section := range configSections() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: section.name, HeadComment: yamlComment(section.comment)}

		value := &yaml.Node{}
		if section.keys == nil {
			if err := value.Encode(section.value); err != nil {
				return nil, fmt.Errorf("encode %s: %w", section.name, err)
			}
		} else {
			value.Kind = yaml.MappingNode

			for _, k := range section.keys {
				leaf := &yaml.Node{}
				if err := leaf.Encode(k.value); err != nil {
					return nil, fmt.Errorf("encode %s.%s: %w", section.name, k.name, err)
				}

				value.Content = append(value.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: k.name, HeadComment: yamlComment(k.comment)}, leaf)
			}
		}

		root.Content = append(root.Content, key, value)
	}

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func yamlComment(text string) string {
	if text == "" {
		return ""
	}

	return "# " + strings.ReplaceAll(text, "\n", "\n# ")
}

// writeConfigTemplate creates path and fails if it already exists.
func writeConfigTemplate(path string) error {
	data, err := configTemplate()
	if err != nil {
		return err
	}

	// #nosec G304 - path is the fixed config location
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s already exists; edit it or remove it first", path)
	}

	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// initCmd represents the init command.
var initCmd = newInitCmd()

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate a commented rie.yaml configuration file",
		Long: `Create a rie.yaml in the current working directory holding every analysis key
with its default and a short explanation: scan target and globs, trace
timeouts and allow-lists, engine roots, surfaces, domains, archive paths,
quarantine tiers and logging. An existing file is never overwritten.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targetPath := filepath.Join(configFolderPath, configFileName)

			if err := writeConfigTemplate(targetPath); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			cmd.Printf("wrote %s\n", targetPath)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
}
