package model

import (
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
)

// TraceMode selects how much of an entrypoint the harness executes.
type TraceMode string

// Trace modes.
const (
	TraceModeAuto TraceMode = "auto"
	TraceModeFull TraceMode = "full"
)

// Defaults shared by the CLI and tests.
const (
	DefaultTopK         = 10
	DefaultTraceTimeout = 10 * time.Second
	DefaultBootTimeout  = 15 * time.Second
	DefaultInterpreter  = "python3"
)

// Scan targets. Any other value names a repository folder that becomes the engine scope.
const (
	TargetAuto   = "auto"
	TargetEngine = "engine"
	TargetGlobal = "global"
)

// SurfaceDecl is an explicitly configured surface.
type SurfaceDecl struct {
	Name string `json:"name"`
	Root Path   `json:"root"`
}

// TraceConfig controls the execution harness.
type TraceConfig struct {
	Enabled        bool          `json:"enabled"`
	Mode           TraceMode     `json:"mode"`
	Timeout        time.Duration `json:"timeout"`
	BootTimeout    time.Duration `json:"boot_timeout"`
	Interpreter    string        `json:"interpreter"`
	WritablePaths  []string      `json:"writable_paths,omitempty"`
	PermittedHosts []string      `json:"permitted_hosts,omitempty"`
	EnvFile        string        `json:"env_file,omitempty"`
}

// QuarantineConfig controls the act phase.
type QuarantineConfig struct {
	Tiers []Tier `json:"tiers"`
	Dir   string `json:"dir,omitempty"`
}

// Config is the fully resolved analysis configuration.
type Config struct {
	Target       string           `json:"target,omitempty"`
	Include      []string         `json:"include,omitempty"`
	Exclude      []string         `json:"exclude,omitempty"`
	Parallel     int              `json:"parallel"`
	TopK         int              `json:"top_k"`
	PackageRoots []Path           `json:"package_roots,omitempty"`
	Trace        TraceConfig      `json:"trace"`
	EngineRoots  []Path           `json:"engine_roots,omitempty"`
	Surfaces     []SurfaceDecl    `json:"surfaces,omitempty"`
	Allow        []SurfacePair    `json:"allow,omitempty"`
	Domains      []DomainRule     `json:"domains,omitempty"`
	ArchivePaths []string         `json:"archive_paths,omitempty"`
	Quarantine   QuarantineConfig `json:"quarantine"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	return Config{
		Target:   TargetAuto,
		Parallel: 1,
		TopK:     DefaultTopK,
		Trace: TraceConfig{
			Mode:           TraceModeAuto,
			Timeout:        DefaultTraceTimeout,
			BootTimeout:    DefaultBootTimeout,
			Interpreter:    DefaultInterpreter,
			WritablePaths:  []string{},
			PermittedHosts: []string{},
		},
		Quarantine: QuarantineConfig{Tiers: []Tier{TierGhost}},
	}
}

// SurfacesFromMap converts a name->root map into declarations sorted by name.
func SurfacesFromMap(in map[string]string) []SurfaceDecl {
	out := make([]SurfaceDecl, 0, len(in))
	for name, root := range in {
		out = append(out, SurfaceDecl{Name: name, Root: CleanPath(root)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// CleanPath converts a user supplied path into canonical form.
func CleanPath(p string) Path {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if p == "" {
		return ""
	}

	return Path(path.Clean(strings.TrimPrefix(p, "./")))
}

// Validate checks the configuration without touching the filesystem.
//
//nolint:cyclop,gocognit // One linear pass over every field.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return &ConfigurationError{Field: "scan.top_k", Reason: "must be positive"}
	}

	if c.Parallel < 0 {
		return &ConfigurationError{Field: "scan.parallel", Reason: "must not be negative"}
	}

	for _, g := range c.Include {
		if err := validateGlob("scan.include", g); err != nil {
			return err
		}
	}

	for _, g := range c.Exclude {
		if err := validateGlob("scan.exclude", g); err != nil {
			return err
		}
	}

	for _, g := range c.ArchivePaths {
		if err := validateGlob("archive_paths", g); err != nil {
			return err
		}
	}

	for _, r := range c.PackageRoots {
		if err := validateRoot("scan.package_roots", r); err != nil {
			return err
		}
	}

	for _, r := range c.EngineRoots {
		if err := validateRoot("engine.roots", r); err != nil {
			return err
		}
	}

	if c.Trace.Timeout <= 0 {
		return &ConfigurationError{Field: "trace.timeout", Reason: "must be positive"}
	}

	if c.Trace.BootTimeout <= 0 {
		return &ConfigurationError{Field: "trace.boot_timeout", Reason: "must be positive"}
	}

	if err := validateTarget(c.Target); err != nil {
		return err
	}

	if c.Trace.Mode != TraceModeAuto && c.Trace.Mode != TraceModeFull {
		return &ConfigurationError{Field: "trace.mode", Reason: "must be auto or full, got " + string(c.Trace.Mode)}
	}

	if c.Trace.Enabled && strings.TrimSpace(c.Trace.Interpreter) == "" {
		return &ConfigurationError{Field: "trace.interpreter", Reason: "must not be empty when tracing is enabled"}
	}

	if err := c.validateSurfaces(); err != nil {
		return err
	}

	if err := c.validateDomains(); err != nil {
		return err
	}

	for _, t := range c.Quarantine.Tiers {
		if _, err := ParseTier(string(t)); err != nil {
			return &ConfigurationError{Field: "quarantine.tiers", Reason: err.Error()}
		}
	}

	return nil
}

func (c Config) validateSurfaces() error {
	roots := make(map[Path]string, len(c.Surfaces))

	for _, s := range c.Surfaces {
		if strings.TrimSpace(s.Name) == "" {
			return &ConfigurationError{Field: "surfaces", Reason: "surface name must not be empty"}
		}

		if s.Name == RootSurface {
			return &ConfigurationError{Field: "surfaces", Reason: "surface name \".\" is reserved"}
		}

		if err := validateRoot("surfaces."+s.Name, s.Root); err != nil {
			return err
		}

		if s.Root == "." {
			return &ConfigurationError{Field: "surfaces." + s.Name, Reason: "root must be a subdirectory"}
		}

		if other, ok := roots[s.Root]; ok {
			return &ConfigurationError{Field: "surfaces." + s.Name, Reason: "root already declared by " + other}
		}

		roots[s.Root] = s.Name
	}

	for _, a := range c.Allow {
		if a.From == "" || a.To == "" {
			return &ConfigurationError{Field: "cross_surface.allow", Reason: "from and to are required"}
		}
	}

	return nil
}

func (c Config) validateDomains() error {
	for i, d := range c.Domains {
		if strings.TrimSpace(d.Name) == "" {
			return &ConfigurationError{Field: "domains", Reason: "rule " + strconv.Itoa(i) + " has an empty name"}
		}

		if len(d.Include) == 0 {
			return &ConfigurationError{Field: "domains." + d.Name, Reason: "include must list at least one pattern"}
		}

		for _, g := range d.Include {
			if err := validateGlob("domains."+d.Name+".include", g); err != nil {
				return err
			}
		}

		for _, g := range d.Exclude {
			if err := validateGlob("domains."+d.Name+".exclude", g); err != nil {
				return err
			}
		}
	}

	return nil
}

// TargetFolder returns the folder a scan is scoped to, or "" for the named targets.
func (c Config) TargetFolder() Path {
	switch c.Target {
	case "", TargetAuto, TargetEngine, TargetGlobal:
		return ""
	}

	return CleanPath(c.Target)
}

func validateTarget(target string) error {
	switch target {
	case "", TargetAuto, TargetEngine, TargetGlobal:
		return nil
	}

	return validateRoot("scan.target", CleanPath(target))
}

func validateRoot(field string, p Path) error {
	s := string(p)

	switch {
	case strings.TrimSpace(s) == "":
		return &ConfigurationError{Field: field, Reason: "root must not be empty"}
	case path.IsAbs(s) || filepath.IsAbs(s):
		return &ConfigurationError{Field: field, Reason: "root must be repository-relative: " + s}
	case s == ".." || strings.HasPrefix(s, "../"):
		return &ConfigurationError{Field: field, Reason: "root escapes the repository: " + s}
	}

	return nil
}

func validateGlob(field, pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return &ConfigurationError{Field: field, Reason: "empty pattern"}
	}

	depthSquare, depthBrace := 0, 0
	escaped := false

	for _, r := range pattern {
		if escaped {
			escaped = false
			continue
		}

		switch r {
		case '\\':
			escaped = true
		case '[':
			depthSquare++
		case ']':
			depthSquare--
		case '{':
			depthBrace++
		case '}':
			depthBrace--
		}

		if depthSquare < 0 || depthBrace < 0 {
			return &ConfigurationError{Field: field, Reason: "bad pattern " + pattern}
		}
	}

	if escaped || depthSquare != 0 || depthBrace != 0 {
		return &ConfigurationError{Field: field, Reason: "bad pattern " + pattern}
	}

	if _, err := doublestar.Match(pattern, pattern); err != nil {
		return &ConfigurationError{Field: field, Reason: "bad pattern " + pattern + ": " + err.Error()}
	}

	return nil
}
