package domain

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

// Text reference weights, all strictly below static and runtime edges.
const (
	TextWeightPath     = 0.5
	TextWeightModule   = 0.4
	TextWeightBasename = 0.3
	TextWeightStem     = 0.1
)

const (
	maxTextScanSize = 1 << 20
	binarySniffSize = 8000
	minStemLength   = 5
)

var (
	pathTokenRe = regexp.MustCompile(`[A-Za-z0-9_][A-Za-z0-9_./\-]*`)
	wordTokenRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// TextResult summarizes a text scan.
type TextResult struct {
	Edges   int
	Skipped int
}

// TextScanner finds references to repository files in arbitrary file contents.
type TextScanner interface {
	Scan(ctx context.Context, repoRoot string, files []m.FileNode, cfg m.Config, sink EvidenceSink) (TextResult, error)
}

type textScanner struct {
	adapter.SourceFSAdapter
}

// NewTextScanner creates a TextScanner reading through the shared file cache.
func NewTextScanner(fs adapter.SourceFSAdapter) TextScanner {
	return &textScanner{SourceFSAdapter: fs}
}

type textIndex struct {
	paths     map[string]m.Path
	modules   map[string]m.Path
	basenames map[string]m.Path
	stems     map[string]m.Path
}

func newTextIndex(files []m.FileNode) *textIndex {
	idx := &textIndex{
		paths:     make(map[string]m.Path, len(files)),
		modules:   make(map[string]m.Path),
		basenames: make(map[string]m.Path),
		stems:     make(map[string]m.Path),
	}

	baseCount := make(map[string]int)
	stemCount := make(map[string]int)

	for _, f := range files {
		idx.paths[string(f.Path)] = f.Path
		baseCount[f.Path.Base()]++
		stemCount[f.Path.Stem()]++

		if f.Language == m.LanguagePython {
			for _, root := range []m.Path{".", "src"} {
				if mod := moduleName(root, f.Path); strings.Contains(mod, ".") {
					idx.modules[mod] = f.Path
				}
			}
		}
	}

	for _, f := range files {
		if baseCount[f.Path.Base()] == 1 && f.Path.Ext() != "" {
			idx.basenames[f.Path.Base()] = f.Path
		}

		stem := f.Path.Stem()
		if stemCount[stem] == 1 && len(stem) >= minStemLength && !strings.HasPrefix(stem, "__") {
			idx.stems[stem] = f.Path
		}
	}

	return idx
}

// moduleName returns the dotted Python module of p under root, or "" if p is outside root.
func moduleName(root, p m.Path) string {
	if !p.Within(root) || p.Ext() != ".py" {
		return ""
	}

	rel := strings.TrimSuffix(string(p), ".py")
	if root != "." {
		rel = strings.TrimPrefix(rel, string(root)+"/")
	}

	rel = strings.TrimSuffix(strings.TrimSuffix(rel, "__init__"), "/")
	if rel == "" {
		return ""
	}

	return strings.ReplaceAll(rel, "/", ".")
}

func (s *textScanner) Scan(ctx context.Context, repoRoot string, files []m.FileNode, cfg m.Config, sink EvidenceSink) (TextResult, error) {
	idx := newTextIndex(files)

	var (
		mu     sync.Mutex
		result TextResult
	)

	group, gctx := errgroup.WithContext(ctx)
	if cfg.Parallel > 0 {
		group.SetLimit(cfg.Parallel)
	}

	for _, file := range files {
		current := file

		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if current.Size > maxTextScanSize {
				mu.Lock()
				result.Skipped++
				mu.Unlock()

				return nil
			}

			content, err := s.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(string(current.Path))))
			if err != nil || isBinary(content) {
				mu.Lock()
				result.Skipped++
				mu.Unlock()

				return nil
			}

			refs := idx.references(current.Path, content)

			targets := make([]m.Path, 0, len(refs))
			for target := range refs {
				targets = append(targets, target)
			}

			sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

			for _, target := range targets {
				if err := sink.Append(EdgeEvidence(current.Path, target, m.EdgeText, refs[target])); err != nil {
					return err
				}
			}

			mu.Lock()
			result.Edges += len(targets)
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}

	slog.Info("text scan finished", "files", len(files), "edges", result.Edges, "skipped", result.Skipped)

	return result, nil
}

// references returns the best weight per referenced file.
func (idx *textIndex) references(from m.Path, content []byte) map[m.Path]float64 {
	refs := make(map[m.Path]float64)

	note := func(target m.Path, weight float64) {
		if target == from {
			return
		}

		if weight > refs[target] {
			refs[target] = weight
		}
	}

	for _, raw := range pathTokenRe.FindAll(content, -1) {
		token := strings.TrimRight(strings.TrimPrefix(string(raw), "./"), "./-")

		if target, ok := idx.paths[token]; ok {
			note(target, TextWeightPath)
		}

		if target, ok := idx.modules[token]; ok {
			note(target, TextWeightModule)
		}

		base := token
		if i := strings.LastIndex(token, "/"); i >= 0 {
			base = token[i+1:]
		}

		if target, ok := idx.basenames[base]; ok {
			note(target, TextWeightBasename)
		}
	}

	if len(idx.stems) > 0 {
		for _, word := range wordTokenRe.FindAll(content, -1) {
			if target, ok := idx.stems[string(word)]; ok {
				note(target, TextWeightStem)
			}
		}
	}

	return refs
}

func isBinary(content []byte) bool {
	return bytes.IndexByte(content[:min(len(content), binarySniffSize)], 0) >= 0
}
