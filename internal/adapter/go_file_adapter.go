package adapter

import (
	"bufio"
	"bytes"
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// ImportRef is one import found in a source file, before resolution to a repository path.
type ImportRef struct {
	// Module is the imported name: a dotted Python module or a Go import path.
	Module string
	// Names are the symbols of a `from x import a, b` statement; they may be submodules.
	Names []string
	// Level is the number of leading dots of a relative Python import.
	Level int
	// Deferred marks imports inside conditionals, try blocks or function bodies.
	Deferred bool
	// Dynamic marks __import__/importlib calls with literal arguments.
	Dynamic bool
	Line    int
}

// ParsedSource is what the static analyzer needs from one file.
type ParsedSource struct {
	Imports   []ImportRef
	MainGuard bool
	Package   string
}

// GoFileAdapter encapsulates Go-specific parsing so the analyzer can stay language neutral.
type GoFileAdapter interface {
	// Parse reads only what import analysis needs (package clause, imports and top-level decls).
	Parse(ctx context.Context, filename string, src []byte) (ParsedSource, error)

	// ModulePath extracts the module directive from go.mod content.
	ModulePath(goMod []byte) string
}

// LocalGoFileAdapter provides a concrete GoFileAdapter backed by go/parser.
type LocalGoFileAdapter struct{}

// NewLocalGoFileAdapter constructs a LocalGoFileAdapter.
func NewLocalGoFileAdapter() *LocalGoFileAdapter {
	return &LocalGoFileAdapter{}
}

// Parse builds an AST for the provided filename/source pair and extracts its imports.
func (a *LocalGoFileAdapter) Parse(ctx context.Context, filename string, src []byte) (ParsedSource, error) {
	if err := ctx.Err(); err != nil {
		return ParsedSource{}, err
	}

	fileSet := token.NewFileSet()

	file, err := parser.ParseFile(fileSet, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return ParsedSource{}, err
	}

	out := ParsedSource{Package: file.Name.Name}

	for _, spec := range file.Imports {
		importPath, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}

		out.Imports = append(out.Imports, ImportRef{
			Module: importPath,
			Line:   fileSet.Position(spec.Pos()).Line,
		})
	}

	if file.Name.Name == "main" {
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if ok && fn.Recv == nil && fn.Name.Name == "main" {
				out.MainGuard = true
				break
			}
		}
	}

	return out, nil
}

// ModulePath returns the module path declared in go.mod, or "" when absent.
func (a *LocalGoFileAdapter) ModulePath(goMod []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(goMod))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module") {
			continue
		}

		rest := strings.TrimSpace(strings.TrimPrefix(line, "module"))
		if i := strings.Index(rest, "//"); i >= 0 {
			rest = strings.TrimSpace(rest[:i])
		}

		if unq, err := strconv.Unquote(rest); err == nil {
			return unq
		}

		return rest
	}

	return ""
}
