// Package model holds the plain data types shared by the scan and act phases.
package model

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Path is a canonical repository-relative path using forward slashes.
type Path string

// String implements fmt.Stringer.
func (p Path) String() string {
	return string(p)
}

// Dir returns the parent directory of p, or "." for top-level files.
func (p Path) Dir() Path {
	return Path(path.Dir(string(p)))
}

// Base returns the last element of p.
func (p Path) Base() string {
	return path.Base(string(p))
}

// Ext returns the file extension of p including the dot.
func (p Path) Ext() string {
	return path.Ext(string(p))
}

// Stem returns the base name without its extension.
func (p Path) Stem() string {
	return strings.TrimSuffix(p.Base(), p.Ext())
}

// Segments splits p into its directory components.
func (p Path) Segments() []string {
	if p == "" || p == "." {
		return nil
	}

	return strings.Split(string(p), "/")
}

// Within reports whether p equals root or lives below it. The root "." contains everything.
func (p Path) Within(root Path) bool {
	if root == "" || root == "." {
		return true
	}

	r := strings.TrimSuffix(string(root), "/")

	return string(p) == r || strings.HasPrefix(string(p), r+"/")
}

// Language identifies how a file is parsed.
type Language string

// Supported languages.
const (
	LanguagePython Language = "python"
	LanguageGo     Language = "go"
	LanguageOther  Language = "other"
)

// Role is the detected purpose of a file.
type Role string

// File roles.
const (
	RoleSource Role = "source"
	RoleTest   Role = "test"
	RoleDoc    Role = "doc"
	RoleConfig Role = "config"
	RoleOther  Role = "other"
)

// Flags is a set of evidence markers attached to a file.
type Flags uint8

// Evidence flags.
const (
	FlagStaticallyImported Flags = 1 << iota
	FlagRuntimeTraced
	FlagTextReferenced
	FlagHasMainGuard
	FlagParseFailed
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagStaticallyImported, "statically-imported"},
	{FlagRuntimeTraced, "runtime-traced"},
	{FlagTextReferenced, "text-referenced"},
	{FlagHasMainGuard, "has-main-guard"},
	{FlagParseFailed, "parse-failed"},
}

// Has reports whether every flag in f2 is set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Any reports whether at least one flag in f2 is set.
func (f Flags) Any(f2 Flags) bool {
	return f&f2 != 0
}

// Names returns the flag names in a fixed order.
func (f Flags) Names() []string {
	names := make([]string, 0, len(flagNames))

	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}

	return names
}

// MarshalJSON encodes the set as a list of names.
func (f Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Names())
}

// UnmarshalJSON decodes a list of flag names.
func (f *Flags) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}

	var out Flags

	for _, name := range names {
		found := false

		for _, fn := range flagNames {
			if fn.name == name {
				out |= fn.flag
				found = true

				break
			}
		}

		if !found {
			return fmt.Errorf("unknown evidence flag %q", name)
		}
	}

	*f = out

	return nil
}

// FileNode is one vertex of the dependency graph.
type FileNode struct {
	Path     Path     `json:"path"`
	Size     int64    `json:"size"`
	Hash     string   `json:"hash"`
	Language Language `json:"language"`
	Role     Role     `json:"role"`
	Flags    Flags    `json:"flags"`
	Surface  string   `json:"surface"`
	Domain   string   `json:"domain"`
	Tier     Tier     `json:"tier"`
	Reason   string   `json:"tier_reason,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

// IsSource reports whether the file is parsed for imports.
func (n FileNode) IsSource() bool {
	return n.Language == LanguagePython || n.Language == LanguageGo
}
