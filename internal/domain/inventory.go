package domain

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

// skipDirs are never part of the analyzed tree.
var skipDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	".rie":          true,
	"__pycache__":   true,
	"node_modules":  true,
	".venv":         true,
	"venv":          true,
	".tox":          true,
	".mypy_cache":   true,
	".pytest_cache": true,
	".ruff_cache":   true,
	".idea":         true,
	".vscode":       true,
}

var (
	docExts    = map[string]bool{".md": true, ".rst": true, ".txt": true, ".adoc": true, ".html": true}
	configExts = map[string]bool{
		".toml": true, ".yaml": true, ".yml": true, ".ini": true, ".cfg": true, ".json": true,
		".env": true, ".conf": true, ".lock": true,
	}
	configNames = map[string]bool{
		"Dockerfile": true, "Makefile": true, "Procfile": true, "requirements.txt": true,
		"setup.py": true, "setup.cfg": true, "go.mod": true, "go.sum": true, "conftest.py": false,
	}
)

// Inventory lists the files of the repository with their static attributes.
type Inventory interface {
	Files(repoRoot string, cfg m.Config) ([]m.FileNode, error)
}

type inventory struct {
	adapter.SourceFSAdapter
}

// NewInventory creates an Inventory on top of the filesystem adapter.
func NewInventory(fs adapter.SourceFSAdapter) Inventory {
	return &inventory{SourceFSAdapter: fs}
}

// Files walks repoRoot and returns the included files sorted by path.
func (inv *inventory) Files(repoRoot string, cfg m.Config) ([]m.FileNode, error) {
	var nodes []m.FileNode

	err := inv.Walk(repoRoot, skipDirs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == repoRoot {
				return err
			}

			slog.Warn("skipping unreadable path", "path", path, "error", err)

			return nil
		}

		rel, err := inv.RelPath(repoRoot, path)
		if err != nil {
			return err
		}

		if !Included(rel, cfg.Include, cfg.Exclude) {
			return nil
		}

		hash, err := inv.HashFile(path)
		if err != nil {
			slog.Warn("skipping unhashable file", "path", rel, "error", err)
			return nil
		}

		nodes = append(nodes, m.FileNode{
			Path:     rel,
			Size:     info.Size(),
			Hash:     hash,
			Language: DetectLanguage(rel),
			Role:     DetectRole(rel),
			Domain:   m.DefaultDomain,
		})

		return nil
	})
	if err != nil {
		slog.Error("failed to walk repository", "root", repoRoot, "error", err)
		return nil, fmt.Errorf("%w: %w", m.ErrRepositoryUnreadable, err)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })

	return nodes, nil
}

// Included applies include/exclude globs to a repo-relative path. An empty include list
// includes everything.
func Included(p m.Path, include, exclude []string) bool {
	if len(include) > 0 && !MatchAny(include, p) {
		return false
	}

	return !MatchAny(exclude, p)
}

// MatchAny reports whether p matches any glob. A pattern naming a directory matches
// everything below it.
func MatchAny(patterns []string, p m.Path) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(pattern, "./")

		if ok, _ := doublestar.Match(pattern, string(p)); ok {
			return true
		}

		if !strings.ContainsAny(pattern, "*?[{") && p.Within(m.Path(strings.TrimSuffix(pattern, "/"))) {
			return true
		}
	}

	return false
}

// DetectLanguage maps an extension to a parser.
func DetectLanguage(p m.Path) m.Language {
	switch p.Ext() {
	case ".py", ".pyw":
		return m.LanguagePython
	case ".go":
		return m.LanguageGo
	}

	return m.LanguageOther
}

// DetectRole classifies a file by name and location.
func DetectRole(p m.Path) m.Role {
	base := p.Base()

	if isTestPath(p) {
		return m.RoleTest
	}

	if DetectLanguage(p) != m.LanguageOther && !configNames[base] {
		return m.RoleSource
	}

	if configNames[base] || configExts[p.Ext()] {
		return m.RoleConfig
	}

	if docExts[p.Ext()] || strings.HasPrefix(strings.ToUpper(base), "README") || strings.HasPrefix(strings.ToUpper(base), "LICENSE") {
		return m.RoleDoc
	}

	for _, seg := range p.Segments() {
		if seg == "docs" || seg == "doc" {
			return m.RoleDoc
		}
	}

	return m.RoleOther
}

func isTestPath(p m.Path) bool {
	base := p.Base()

	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_") && p.Ext() == ".py",
		strings.HasSuffix(base, "_test.py"),
		base == "conftest.py":
		return true
	}

	segs := p.Segments()
	for _, seg := range segs[:max(len(segs)-1, 0)] {
		if seg == "tests" || seg == "test" || seg == "testing" {
			return DetectLanguage(p) != m.LanguageOther
		}
	}

	return false
}
