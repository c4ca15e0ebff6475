package model

// RootSurface is the name of the surface holding files not claimed by any other surface.
const RootSurface = "."

// DefaultDomain is assigned when no domain rule matches.
const DefaultDomain = "core"

// Surface is an independently developed subtree with its own coverage metrics.
type Surface struct {
	Name        string  `json:"name"`
	Root        Path    `json:"root"`
	Configured  bool    `json:"configured"`
	EngineScope bool    `json:"engine_scope"`
	FileCount   int     `json:"file_count"`
	ActiveCount int     `json:"active_count"`
	TracedCount int     `json:"traced_count"`
	Covered     int     `json:"covered"`
	Coverage    float64 `json:"coverage"`
	CrossOut    int     `json:"cross_out"`
	CrossIn     int     `json:"cross_in"`
}

// CrossSurfaceEdge counts live edges between an ordered pair of surfaces.
type CrossSurfaceEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// SurfacePair is an allow-list entry for cross-surface imports.
type SurfacePair struct {
	From string `json:"from" mapstructure:"from" yaml:"from"`
	To   string `json:"to" mapstructure:"to" yaml:"to"`
}

// DomainRule labels files matching Include and not matching Exclude.
type DomainRule struct {
	Name      string   `json:"name" mapstructure:"name" yaml:"name"`
	Include   []string `json:"include" mapstructure:"include" yaml:"include"`
	Exclude   []string `json:"exclude,omitempty" mapstructure:"exclude" yaml:"exclude,omitempty"`
	Priority  int      `json:"priority" mapstructure:"priority" yaml:"priority"`
	Periphery bool     `json:"periphery,omitempty" mapstructure:"periphery" yaml:"periphery,omitempty"`
}
