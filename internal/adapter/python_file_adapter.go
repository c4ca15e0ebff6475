package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrSyntax is returned when a Python file contains syntax errors.
var ErrSyntax = errors.New("python syntax error")

// PythonFileAdapter extracts imports from Python sources without executing them.
type PythonFileAdapter interface {
	Parse(ctx context.Context, filename string, src []byte) (ParsedSource, error)
}

// TreeSitterPythonAdapter parses Python with tree-sitter. Parsers are pooled because a
// sitter.Parser must not be shared between goroutines.
type TreeSitterPythonAdapter struct {
	pool sync.Pool
}

// NewTreeSitterPythonAdapter constructs a TreeSitterPythonAdapter.
func NewTreeSitterPythonAdapter() *TreeSitterPythonAdapter {
	return &TreeSitterPythonAdapter{
		pool: sync.Pool{
			New: func() any {
				parser := sitter.NewParser()
				parser.SetLanguage(python.GetLanguage())

				return parser
			},
		},
	}
}

// Parse returns the imports and main-guard presence of a Python file.
func (a *TreeSitterPythonAdapter) Parse(ctx context.Context, _ string, src []byte) (ParsedSource, error) {
	parser, _ := a.pool.Get().(*sitter.Parser)
	defer a.pool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return ParsedSource{}, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return ParsedSource{}, ErrSyntax
	}

	w := &pyWalker{src: src}
	w.walk(root, false)

	return ParsedSource{Imports: w.imports, MainGuard: w.mainGuard}, nil
}

// deferringNodes are statements whose bodies do not run unconditionally at import time.
var deferringNodes = map[string]bool{
	"function_definition": true,
	"lambda":              true,
	"if_statement":        true,
	"try_statement":       true,
	"with_statement":      true,
	"for_statement":       true,
	"while_statement":     true,
	"match_statement":     true,
}

type pyWalker struct {
	src       []byte
	imports   []ImportRef
	mainGuard bool
}

func (w *pyWalker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func (w *pyWalker) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (w *pyWalker) walk(n *sitter.Node, nested bool) {
	switch n.Type() {
	case "import_statement":
		w.importStatement(n, nested)
		return
	case "import_from_statement":
		w.fromStatement(n, nested)
		return
	case "future_import_statement":
		return
	case "if_statement":
		if cond := n.ChildByFieldName("condition"); !nested && cond != nil && isMainGuard(w.text(cond)) {
			w.mainGuard = true
		}
	case "call":
		w.dynamicImport(n, nested)
	}

	childNested := nested || deferringNodes[n.Type()]

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), childNested)
	}
}

func (w *pyWalker) importStatement(n *sitter.Node, nested bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)

		name := dottedName(child, w.src)
		if name == "" {
			continue
		}

		w.imports = append(w.imports, ImportRef{Module: name, Deferred: nested, Line: w.line(n)})
	}
}

func (w *pyWalker) fromStatement(n *sitter.Node, nested bool) {
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}

	ref := ImportRef{Deferred: nested, Line: w.line(n)}

	switch moduleNode.Type() {
	case "relative_import":
		for i := 0; i < int(moduleNode.NamedChildCount()); i++ {
			part := moduleNode.NamedChild(i)
			switch part.Type() {
			case "import_prefix":
				ref.Level = strings.Count(w.text(part), ".")
			case "dotted_name":
				ref.Module = w.text(part)
			}
		}

		if ref.Level == 0 {
			ref.Level = strings.Count(w.text(moduleNode), ".") - strings.Count(ref.Module, ".")
		}
	default:
		ref.Module = w.text(moduleNode)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue
		}

		if name := dottedName(child, w.src); name != "" {
			ref.Names = append(ref.Names, name)
		}
	}

	w.imports = append(w.imports, ref)
}

// dynamicImport records __import__("x") and importlib.import_module("x"[, "pkg"]) calls
// whose arguments are string literals.
func (w *pyWalker) dynamicImport(n *sitter.Node, nested bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}

	switch w.text(fn) {
	case "__import__", "importlib.import_module", "import_module":
	default:
		return
	}

	args := n.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return
	}

	first := args.NamedChild(0)
	if first.Type() != "string" {
		return
	}

	name, ok := stringLiteral(w.text(first))
	if !ok || name == "" {
		return
	}

	ref := ImportRef{Module: name, Dynamic: true, Deferred: nested, Line: w.line(n)}

	if strings.HasPrefix(name, ".") {
		ref.Level = len(name) - len(strings.TrimLeft(name, "."))
		ref.Module = strings.TrimLeft(name, ".")

		// import_module(".x", "pkg") is relative to pkg, not to the calling file.
		if args.NamedChildCount() > 1 && args.NamedChild(1).Type() == "string" {
			if pkg, ok := stringLiteral(w.text(args.NamedChild(1))); ok && pkg != "" {
				ref.Module = joinRelative(pkg, ref.Level, ref.Module)
				ref.Level = 0
			}
		}
	}

	w.imports = append(w.imports, ref)
}

func dottedName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "dotted_name":
		return n.Content(src)
	case "aliased_import":
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	}

	return ""
}

func isMainGuard(cond string) bool {
	compact := strings.Join(strings.Fields(cond), "")
	compact = strings.ReplaceAll(compact, "'", "\"")

	return compact == "__name__==\"__main__\"" || compact == "\"__main__\"==__name__"
}

// stringLiteral strips Python quotes from a plain (non f-string) literal.
func stringLiteral(lit string) (string, bool) {
	prefix := strings.IndexAny(lit, "'\"")
	if prefix < 0 {
		return "", false
	}

	if strings.ContainsAny(strings.ToLower(lit[:prefix]), "fb") {
		return "", false
	}

	body := lit[prefix:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(body, q) && strings.HasSuffix(body, q) && len(body) >= 2*len(q) {
			return body[len(q) : len(body)-len(q)], true
		}
	}

	return "", false
}

// joinRelative resolves a relative module against an anchor package like importlib does.
func joinRelative(pkg string, level int, name string) string {
	parts := strings.Split(pkg, ".")
	if level-1 > len(parts) {
		return name
	}

	base := strings.Join(parts[:len(parts)-(level-1)], ".")
	if name == "" {
		return base
	}

	if base == "" {
		return name
	}

	return base + "." + name
}
