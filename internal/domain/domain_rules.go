package domain

import (
	"regexp"
	"sort"

	m "rie.dev/pkg/rie/internal/model"
)

// Built-in domain names.
const (
	DomainTesting       = "testing"
	DomainDocumentation = "documentation"
	DomainConfiguration = "configuration"
	DomainTooling       = "tooling"
	DomainLegacy        = "legacy"
)

var toolingDirs = map[string]bool{
	"scripts": true, "tools": true, "tooling": true, "bin": true,
	"devtools": true, "ci": true, "hack": true, ".github": true,
}

// defaultArchiveSegments mark a directory as retired code.
var defaultArchiveSegments = map[string]bool{"archive": true, "legacy": true, "deprecated": true, "old": true}

// legacyNameRe matches legacy markers at the end of a file stem, or backup extensions.
var legacyNameRe = regexp.MustCompile(`(?i)(?:[_\-.](?:old|backup|bak|deprecated|legacy|copy|orig)|[_\-]v\d+)$`)

type domainRule struct {
	name      string
	periphery bool
	match     func(n m.FileNode) bool
}

// DomainResolver labels files with the first matching domain rule.
type DomainResolver struct {
	rules     []domainRule
	periphery map[string]bool
}

// NewDomainResolver orders configured rules by descending priority (declaration order on
// ties) ahead of the built-in rules.
func NewDomainResolver(cfg m.Config) *DomainResolver {
	configured := append([]m.DomainRule(nil), cfg.Domains...)
	sort.SliceStable(configured, func(i, j int) bool { return configured[i].Priority > configured[j].Priority })

	r := &DomainResolver{periphery: map[string]bool{
		DomainTesting: true, DomainDocumentation: true, DomainConfiguration: true, DomainTooling: true,
	}}

	for _, rule := range configured {
		current := rule

		r.rules = append(r.rules, domainRule{
			name:      current.Name,
			periphery: current.Periphery,
			match: func(n m.FileNode) bool {
				return MatchAny(current.Include, n.Path) && !MatchAny(current.Exclude, n.Path)
			},
		})

		if current.Periphery {
			r.periphery[current.Name] = true
		}
	}

	archives := cfg.ArchivePaths

	r.rules = append(r.rules,
		domainRule{name: DomainTesting, periphery: true, match: func(n m.FileNode) bool { return n.Role == m.RoleTest }},
		domainRule{name: DomainDocumentation, periphery: true, match: func(n m.FileNode) bool { return n.Role == m.RoleDoc }},
		domainRule{name: DomainConfiguration, periphery: true, match: func(n m.FileNode) bool { return n.Role == m.RoleConfig }},
		domainRule{name: DomainTooling, periphery: true, match: func(n m.FileNode) bool { return inToolingDir(n.Path) }},
		domainRule{name: DomainLegacy, match: func(n m.FileNode) bool {
			return IsArchived(n.Path, archives) || HasLegacyName(n.Path)
		}},
	)

	return r
}

// Resolve returns the domain of n.
func (r *DomainResolver) Resolve(n m.FileNode) string {
	for _, rule := range r.rules {
		if rule.match(n) {
			return rule.name
		}
	}

	return m.DefaultDomain
}

// Periphery reports whether files in domain are peripheral.
func (r *DomainResolver) Periphery(domain string) bool {
	return r.periphery[domain]
}

// AssignDomains sets the Domain of every node.
func (r *DomainResolver) AssignDomains(g *m.Graph) {
	for i := range g.Nodes {
		g.Nodes[i].Domain = r.Resolve(g.Nodes[i])
	}
}

func inToolingDir(p m.Path) bool {
	segs := p.Segments()
	for _, seg := range segs[:max(len(segs)-1, 0)] {
		if toolingDirs[seg] {
			return true
		}
	}

	return false
}

// IsArchived reports whether p sits below a retired directory: one of the default archive
// segments or a configured archive path or glob.
func IsArchived(p m.Path, archivePaths []string) bool {
	segs := p.Segments()
	for _, seg := range segs[:max(len(segs)-1, 0)] {
		if defaultArchiveSegments[seg] {
			return true
		}
	}

	return MatchAny(archivePaths, p)
}

// HasLegacyName reports whether the file name carries a legacy marker such as
// utils_old.py, api_v2.py or config.py.bak.
func HasLegacyName(p m.Path) bool {
	switch p.Ext() {
	case ".bak", ".orig":
		return true
	}

	return legacyNameRe.MatchString(p.Stem())
}

// ImportableName strips legacy markers so shadowing files compare equal: utils_old.py and
// core/utils.py both yield "utils".
func ImportableName(p m.Path) string {
	name := p.Base()
	for _, ext := range []string{".bak", ".orig"} {
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			name = name[:len(name)-len(ext)]
		}
	}

	stem := m.Path(name).Stem()
	if stem == "__init__" {
		stem = p.Dir().Base()
	}

	return legacyNameRe.ReplaceAllString(stem, "")
}
