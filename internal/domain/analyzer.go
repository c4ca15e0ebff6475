package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

// StaticResult summarizes a static analysis pass. Edges themselves go to the sink.
type StaticResult struct {
	// Imports lists the raw module names per file, used for role classification.
	Imports    map[m.Path][]string
	MainGuards []m.Path
	Failures   int
	Edges      int
	External   int
}

// StaticAnalyzer extracts import edges without executing anything.
type StaticAnalyzer interface {
	Analyze(ctx context.Context, repoRoot string, files []m.FileNode, cfg m.Config, sink EvidenceSink) (StaticResult, error)
}

type staticAnalyzer struct {
	adapter.SourceFSAdapter
	python adapter.PythonFileAdapter
	golang adapter.GoFileAdapter
}

// NewStaticAnalyzer wires the language adapters into an analyzer.
func NewStaticAnalyzer(fs adapter.SourceFSAdapter, python adapter.PythonFileAdapter, golang adapter.GoFileAdapter) StaticAnalyzer {
	return &staticAnalyzer{SourceFSAdapter: fs, python: python, golang: golang}
}

func (a *staticAnalyzer) Analyze(ctx context.Context, repoRoot string, files []m.FileNode, cfg m.Config, sink EvidenceSink) (StaticResult, error) {
	resolver := a.newResolver(repoRoot, files, cfg)

	result := StaticResult{Imports: make(map[m.Path][]string)}

	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	if cfg.Parallel > 0 {
		group.SetLimit(cfg.Parallel)
	}

	for _, file := range files {
		if !file.IsSource() {
			continue
		}

		current := file

		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			fr, err := a.analyzeFile(gctx, repoRoot, current, resolver, sink)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			if fr.failed {
				result.Failures++
			}

			result.Edges += fr.edges
			result.External += fr.external

			if len(fr.modules) > 0 {
				result.Imports[current.Path] = fr.modules
			}

			if fr.mainGuard {
				result.MainGuards = append(result.MainGuards, current.Path)
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}

	sort.Slice(result.MainGuards, func(i, j int) bool { return result.MainGuards[i] < result.MainGuards[j] })

	slog.Info("static analysis finished", "files", len(files), "edges", result.Edges,
		"external", result.External, "failures", result.Failures)

	return result, nil
}

type fileResult struct {
	modules   []string
	edges     int
	external  int
	failed    bool
	mainGuard bool
}

func (a *staticAnalyzer) analyzeFile(
	ctx context.Context,
	repoRoot string,
	file m.FileNode,
	resolver *importResolver,
	sink EvidenceSink,
) (fileResult, error) {
	var out fileResult

	src, err := a.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(string(file.Path))))
	if err != nil {
		slog.Warn("failed to read source", "path", file.Path, "error", err)
		out.failed = true

		return out, sink.Append(FlagEvidence(file.Path, m.FlagParseFailed, err.Error()))
	}

	var parsed adapter.ParsedSource

	switch file.Language {
	case m.LanguagePython:
		parsed, err = a.python.Parse(ctx, string(file.Path), src)
	case m.LanguageGo:
		parsed, err = a.golang.Parse(ctx, string(file.Path), src)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return out, err
		}

		slog.Debug("parse failed", "path", file.Path, "error", err)
		out.failed = true

		return out, sink.Append(FlagEvidence(file.Path, m.FlagParseFailed, err.Error()))
	}

	if parsed.MainGuard {
		out.mainGuard = true

		if err := sink.Append(FlagEvidence(file.Path, m.FlagHasMainGuard, "")); err != nil {
			return out, err
		}
	}

	seen := make(map[m.Path]bool)

	for _, ref := range parsed.Imports {
		out.modules = append(out.modules, ref.Module)

		var targets []m.Path

		if file.Language == m.LanguageGo {
			targets = resolver.goImport(ref.Module)
		} else {
			targets = resolver.pythonImport(file.Path, ref)
		}

		if len(targets) == 0 {
			if !resolver.internalName(file.Path, ref) {
				out.external++
			}

			continue
		}

		for _, target := range targets {
			if target == file.Path || seen[target] {
				continue
			}

			seen[target] = true

			if err := sink.Append(EdgeEvidence(file.Path, target, m.EdgeStatic, m.StaticWeight)); err != nil {
				return out, fmt.Errorf("failed to record edge %s -> %s: %w", file.Path, target, err)
			}

			out.edges++
		}
	}

	return out, nil
}

// importResolver maps import names to repository files. It is read-only after construction
// and shared by every worker.
type importResolver struct {
	files     map[m.Path]bool
	dirs      map[m.Path]bool
	roots     []m.Path
	goModules []goModule
	goPkgs    map[m.Path][]m.Path
}

type goModule struct {
	dir  m.Path
	path string
}

func (a *staticAnalyzer) newResolver(repoRoot string, files []m.FileNode, cfg m.Config) *importResolver {
	r := &importResolver{
		files:  make(map[m.Path]bool, len(files)),
		dirs:   make(map[m.Path]bool),
		goPkgs: make(map[m.Path][]m.Path),
	}

	for _, f := range files {
		r.files[f.Path] = true

		for d := f.Path.Dir(); d != "." && !r.dirs[d]; d = d.Dir() {
			r.dirs[d] = true
		}

		switch {
		case f.Path.Base() == "go.mod":
			content, err := a.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(string(f.Path))))
			if err != nil {
				slog.Warn("failed to read go.mod", "path", f.Path, "error", err)
				continue
			}

			if mod := a.golang.ModulePath(content); mod != "" {
				r.goModules = append(r.goModules, goModule{dir: f.Path.Dir(), path: mod})
			}
		case f.Language == m.LanguageGo && !strings.HasSuffix(string(f.Path), "_test.go"):
			r.goPkgs[f.Path.Dir()] = append(r.goPkgs[f.Path.Dir()], f.Path)
		}
	}

	// Longest module path first so nested modules win.
	sort.Slice(r.goModules, func(i, j int) bool {
		return len(r.goModules[i].path) > len(r.goModules[j].path)
	})

	r.roots = []m.Path{"."}
	if r.dirs["src"] {
		r.roots = append(r.roots, "src")
	}

	for _, root := range cfg.PackageRoots {
		if !containsPath(r.roots, root) {
			r.roots = append(r.roots, root)
		}
	}

	return r
}

func (r *importResolver) goImport(importPath string) []m.Path {
	for _, mod := range r.goModules {
		if importPath != mod.path && !strings.HasPrefix(importPath, mod.path+"/") {
			continue
		}

		sub := strings.TrimPrefix(strings.TrimPrefix(importPath, mod.path), "/")

		dir := mod.dir
		if sub != "" {
			dir = joinPath(dir, m.Path(sub))
		}

		return r.goPkgs[dir]
	}

	return nil
}

// pythonImport resolves one import statement to the files it loads: the module itself and
// the __init__.py of each enclosing package.
func (r *importResolver) pythonImport(importer m.Path, ref adapter.ImportRef) []m.Path {
	if ref.Level > 0 {
		return r.relativeImport(importer, ref)
	}

	var out []m.Path

	for _, name := range ref.Names {
		if name == "*" {
			continue
		}

		if root, target, ok := r.absolute(importer, ref.Module+"."+name); ok {
			out = append(out, r.packageInits(root, ref.Module+"."+name)...)
			out = append(out, target)
		}
	}

	if len(out) > 0 {
		return out
	}

	if root, target, ok := r.absolute(importer, ref.Module); ok {
		out = append(out, r.packageInits(root, ref.Module)...)
		out = append(out, target)
	}

	return out
}

func (r *importResolver) relativeImport(importer m.Path, ref adapter.ImportRef) []m.Path {
	base := importer.Dir()
	for i := 1; i < ref.Level; i++ {
		if base == "." {
			return nil
		}

		base = base.Dir()
	}

	var out []m.Path

	for _, name := range ref.Names {
		if name == "*" {
			continue
		}

		dotted := name
		if ref.Module != "" {
			dotted = ref.Module + "." + name
		}

		if target, ok := r.lookup(base, dotted); ok {
			out = append(out, target)
		}
	}

	if len(out) > 0 {
		return out
	}

	if ref.Module == "" {
		if init := joinPath(base, "__init__.py"); r.files[init] {
			return []m.Path{init}
		}

		return nil
	}

	if target, ok := r.lookup(base, ref.Module); ok {
		return append(r.packageInits(base, ref.Module), target)
	}

	return nil
}

// searchPath lists the directories an absolute import is resolved against. A file inside
// a package only sees the package roots; a loose script also sees its own directory,
// ahead of the roots, as python3 puts it first on sys.path.
func (r *importResolver) searchPath(importer m.Path) []m.Path {
	dir := importer.Dir()
	if r.files[joinPath(dir, "__init__.py")] || containsPath(r.roots, dir) {
		return r.roots
	}

	return append([]m.Path{dir}, r.roots...)
}

func (r *importResolver) absolute(importer m.Path, dotted string) (m.Path, m.Path, bool) {
	for _, root := range r.searchPath(importer) {
		if target, ok := r.lookup(root, dotted); ok {
			return root, target, true
		}
	}

	return "", "", false
}

func (r *importResolver) lookup(root m.Path, dotted string) (m.Path, bool) {
	if dotted == "" {
		return "", false
	}

	rel := m.Path(strings.ReplaceAll(dotted, ".", "/"))

	if candidate := joinPath(root, rel+".py"); r.files[candidate] {
		return candidate, true
	}

	if candidate := joinPath(root, rel+"/__init__.py"); r.files[candidate] {
		return candidate, true
	}

	return "", false
}

// packageInits lists the __init__.py files executed before dotted itself.
func (r *importResolver) packageInits(root m.Path, dotted string) []m.Path {
	parts := strings.Split(dotted, ".")

	var out []m.Path

	for i := 1; i < len(parts); i++ {
		init := joinPath(root, m.Path(strings.Join(parts[:i], "/"))+"/__init__.py")
		if r.files[init] {
			out = append(out, init)
		}
	}

	return out
}

// internalName reports whether an unresolved import still names a repository directory,
// as with a bare namespace package import. Such imports are not external.
func (r *importResolver) internalName(importer m.Path, ref adapter.ImportRef) bool {
	if ref.Level > 0 {
		return true
	}

	rel := m.Path(strings.ReplaceAll(ref.Module, ".", "/"))
	if ref.Module == "" || strings.Contains(ref.Module, "/") {
		return false
	}

	for _, root := range r.searchPath(importer) {
		if r.dirs[joinPath(root, rel)] {
			return true
		}
	}

	return false
}

func joinPath(dir, rel m.Path) m.Path {
	if dir == "" || dir == "." {
		return rel
	}

	return dir + "/" + rel
}

func containsPath(list []m.Path, p m.Path) bool {
	for _, item := range list {
		if item == p {
			return true
		}
	}

	return false
}
