package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	m "rie.dev/pkg/rie/internal/model"
)

// Declarations are entrypoints named by project manifests rather than detected from code.
type Declarations struct {
	// Paths are repo-relative files named directly (Dockerfile CMD, Makefile recipes, package.json).
	Paths []m.Path
	// Modules are dotted Python modules (pyproject scripts, `python -m x`).
	Modules []string
	// Sources records which manifest declared what, for reporting.
	Sources map[string]string
}

// ManifestAdapter reads project manifests at the repository root.
type ManifestAdapter interface {
	Declarations(repoRoot string) (Declarations, error)
}

// LocalManifestAdapter reads pyproject.toml, package.json, compose files, Dockerfile,
// Makefile and Procfile.
type LocalManifestAdapter struct{}

// NewLocalManifestAdapter constructs a LocalManifestAdapter.
func NewLocalManifestAdapter() *LocalManifestAdapter {
	return &LocalManifestAdapter{}
}

type pyProject struct {
	Project struct {
		Scripts    map[string]string `toml:"scripts"`
		GUIScripts map[string]string `toml:"gui-scripts"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Scripts map[string]string `toml:"scripts"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

type composeFile struct {
	Services map[string]struct {
		Command    yaml.Node `yaml:"command"`
		Entrypoint yaml.Node `yaml:"entrypoint"`
	} `yaml:"services"`
}

var composeNames = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

type packageJSON struct {
	Main string          `json:"main"`
	Bin  json.RawMessage `json:"bin"`
}

var (
	pyFileRe   = regexp.MustCompile(`(?:^|[\s"'\[,=])((?:\./)?[\w./-]+\.py)\b`)
	pyModuleRe = regexp.MustCompile(`python[0-9.]*["']?\s*,?\s*["']?-m["']?\s*,?\s*["']?([A-Za-z_][\w.]*)`)
)

// Declarations collects every entrypoint the manifests mention. Missing manifests are not
// errors; malformed ones are logged and skipped.
func (a *LocalManifestAdapter) Declarations(repoRoot string) (Declarations, error) {
	decl := Declarations{Sources: map[string]string{}}

	if err := a.readPyProject(repoRoot, &decl); err != nil {
		return decl, err
	}

	if err := a.readPackageJSON(repoRoot, &decl); err != nil {
		return decl, err
	}

	for _, name := range composeNames {
		if err := a.readCompose(repoRoot, name, &decl); err != nil {
			return decl, err
		}
	}

	for _, name := range []string{"Dockerfile", "Makefile", "Procfile"} {
		if err := a.readCommandFile(repoRoot, name, &decl); err != nil {
			return decl, err
		}
	}

	decl.Paths = uniqPaths(decl.Paths)
	decl.Modules = uniqStrings(decl.Modules)

	return decl, nil
}

func (a *LocalManifestAdapter) readPyProject(repoRoot string, decl *Declarations) error {
	data, ok, err := readOptional(filepath.Join(repoRoot, "pyproject.toml"))
	if err != nil || !ok {
		return err
	}

	var proj pyProject
	if _, err := toml.Decode(string(data), &proj); err != nil {
		slog.Warn("skipping malformed pyproject.toml", "error", err)
		return nil
	}

	for _, scripts := range []map[string]string{proj.Project.Scripts, proj.Project.GUIScripts, proj.Tool.Poetry.Scripts} {
		for name, target := range scripts {
			module := strings.TrimSpace(strings.SplitN(target, ":", 2)[0])
			if module == "" {
				continue
			}

			decl.Modules = append(decl.Modules, module)
			decl.Sources[module] = "pyproject.toml:" + name
		}
	}

	return nil
}

func (a *LocalManifestAdapter) readPackageJSON(repoRoot string, decl *Declarations) error {
	data, ok, err := readOptional(filepath.Join(repoRoot, "package.json"))
	if err != nil || !ok {
		return err
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		slog.Warn("skipping malformed package.json", "error", err)
		return nil
	}

	var targets []string
	if pkg.Main != "" {
		targets = append(targets, pkg.Main)
	}

	if len(pkg.Bin) > 0 {
		var single string

		var many map[string]string

		switch {
		case json.Unmarshal(pkg.Bin, &single) == nil:
			targets = append(targets, single)
		case json.Unmarshal(pkg.Bin, &many) == nil:
			for _, v := range many {
				targets = append(targets, v)
			}
		}
	}

	for _, t := range targets {
		p := m.CleanPath(t)
		decl.Paths = append(decl.Paths, p)
		decl.Sources[string(p)] = "package.json"
	}

	return nil
}

// readCommandFile scans shell-like command lines for `python x.py` and `python -m mod`.
func (a *LocalManifestAdapter) readCommandFile(repoRoot, name string, decl *Declarations) error {
	data, ok, err := readOptional(filepath.Join(repoRoot, name))
	if err != nil || !ok {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if name == "Dockerfile" && !isDockerCommand(trimmed) {
			continue
		}

		if !strings.Contains(trimmed, "python") && name != "Dockerfile" {
			continue
		}

		scanCommand(trimmed, name, decl)
	}

	return nil
}

// readCompose scans the command and entrypoint of every compose service.
func (a *LocalManifestAdapter) readCompose(repoRoot, name string, decl *Declarations) error {
	data, ok, err := readOptional(filepath.Join(repoRoot, name))
	if err != nil || !ok {
		return err
	}

	var compose composeFile
	if err := yaml.Unmarshal(data, &compose); err != nil {
		slog.Warn("skipping malformed compose file", "path", name, "error", err)
		return nil
	}

	for service, spec := range compose.Services {
		for _, node := range []*yaml.Node{&spec.Entrypoint, &spec.Command} {
			if line := commandLine(node); strings.Contains(line, "python") {
				scanCommand(line, name+":"+service, decl)
			}
		}
	}

	return nil
}

// commandLine flattens the string and list forms of a compose command.
func commandLine(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			parts = append(parts, c.Value)
		}

		return strings.Join(parts, " ")
	}

	return ""
}

func scanCommand(line, source string, decl *Declarations) {
	for _, match := range pyModuleRe.FindAllStringSubmatch(line, -1) {
		decl.Modules = append(decl.Modules, match[1])
		decl.Sources[match[1]] = source
	}

	for _, match := range pyFileRe.FindAllStringSubmatch(line, -1) {
		p := m.CleanPath(match[1])
		decl.Paths = append(decl.Paths, p)
		decl.Sources[string(p)] = source
	}
}

func isDockerCommand(line string) bool {
	upper := strings.ToUpper(line)
	return strings.HasPrefix(upper, "CMD") || strings.HasPrefix(upper, "ENTRYPOINT") || strings.HasPrefix(upper, "RUN PYTHON")
}

func readOptional(path string) ([]byte, bool, error) {
	// #nosec G304 - fixed manifest names under the repository root
	data, err := os.ReadFile(path)
	if err == nil {
		return data, true, nil
	}

	if os.IsNotExist(err) {
		return nil, false, nil
	}

	slog.Error("failed to read manifest", "path", path, "error", err)

	return nil, false, fmt.Errorf("failed to read manifest %s: %w", path, err)
}

func uniqPaths(in []m.Path) []m.Path {
	seen := make(map[m.Path]bool, len(in))
	out := make([]m.Path, 0, len(in))

	for _, p := range in {
		if p == "" || seen[p] {
			continue
		}

		seen[p] = true
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func uniqStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))

	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}

		seen[s] = true
		out = append(out, s)
	}

	sort.Strings(out)

	return out
}
