package model

// FolderHealth summarizes how much of a folder is still in use.
type FolderHealth string

// Folder health labels, checked in this order.
const (
	HealthCoreRuntime      FolderHealth = "core-runtime"
	HealthActiveMixed      FolderHealth = "active-mixed"
	HealthFullyActive      FolderHealth = "fully-active"
	HealthRemovalCandidate FolderHealth = "removal-candidate"
)

// FolderStats rolls the files directly inside one folder up into health metrics. Active
// files are tiered T0 or T1; legacy files T2 or T3.
type FolderStats struct {
	Path        Path         `json:"path"`
	Total       int          `json:"total"`
	Active      int          `json:"active"`
	Legacy      int          `json:"legacy"`
	Runtime     int          `json:"runtime"`
	Static      int          `json:"static"`
	Referenced  int          `json:"referenced"`
	ActiveRatio float64      `json:"active_ratio"`
	ScoreAvg    float64      `json:"score_avg"`
	Health      FolderHealth `json:"health"`
}

// Cluster is a connected group of active files. Label is the most common top-level folder
// of its members.
type Cluster struct {
	Label string `json:"label"`
	Files []Path `json:"files"`
}

// Cartography is the folder-level view of a scan.
type Cartography struct {
	Folders  []FolderStats `json:"folders"`
	Clusters []Cluster     `json:"clusters"`
}

// Scope records how the engine roots of a scan were chosen.
type Scope struct {
	Target   string `json:"target"`
	Roots    []Path `json:"roots,omitempty"`
	Inferred bool   `json:"inferred,omitempty"`
}

// FolderRemoval is a folder whose files are all legacy.
type FolderRemoval struct {
	Folder Path   `json:"folder"`
	Files  []Path `json:"files"`
}

// PartialPrune is a folder mixing active and legacy files.
type PartialPrune struct {
	Folder Path   `json:"folder"`
	Remove []Path `json:"remove"`
	Keep   []Path `json:"keep"`
}

// Move suggests relocating an active file out of an archive.
type Move struct {
	Source      Path   `json:"source"`
	Destination Path   `json:"destination"`
	Reason      string `json:"reason"`
}

// PrunePlan is a reviewable cleanup proposal. rie never applies it.
type PrunePlan struct {
	Removals []FolderRemoval `json:"removals"`
	Partial  []PartialPrune  `json:"partial"`
	Moves    []Move          `json:"moves"`
}

// FilesToRemove counts the files the plan deletes.
func (p PrunePlan) FilesToRemove() int {
	n := 0
	for _, r := range p.Removals {
		n += len(r.Files)
	}

	for _, pp := range p.Partial {
		n += len(pp.Remove)
	}

	return n
}
