package rules

import "context"

// Engine is an initialized rule-evaluation session for one game.
//
// Sort, LoadLists and UpdateMasterlist may block on I/O. Metadata reads the
// engine's in-memory state and must be safe to call concurrently with the
// other methods; it may observe a state that a concurrent LoadLists is
// still replacing.
type Engine interface {
	// Sort returns plugins rearranged according to the loaded rules.
	Sort(ctx context.Context, plugins []string) ([]string, error)

	// LoadLists parses and evaluates the masterlist and userlist.
	// An empty userlistPath loads the masterlist alone.
	LoadLists(ctx context.Context, masterlistPath, userlistPath string) error

	// UpdateMasterlist refreshes masterlistPath from remoteURL at branch and
	// reports whether the file content changed.
	UpdateMasterlist(ctx context.Context, masterlistPath, remoteURL, branch string) (bool, error)

	// Metadata returns the diagnostic metadata for one plugin.
	Metadata(plugin string) Metadata
}

// Factory constructs an Engine for game installed at gamePath, keeping its
// working files under localPath.
type Factory func(game, gamePath, localPath string) (Engine, error)

// Metadata is the read-only projection of what the engine knows about a
// plugin.
type Metadata struct {
	Messages       []Message      `json:"messages"`
	Tags           []Tag          `json:"tags"`
	Cleanliness    []CleaningInfo `json:"cleanliness"`
	Dirtiness      []CleaningInfo `json:"dirtiness"`
	GlobalPriority int            `json:"globalPriority"`
}

// Message is a note attached to a plugin by a rule list.
type Message struct {
	Type    string `json:"type" yaml:"type"` // "say", "warn" or "error"
	Content string `json:"content" yaml:"content"`
}

// Tag is a Bash tag suggestion. Addition is false for suggested removals.
type Tag struct {
	Name     string `json:"name"`
	Addition bool   `json:"isAddition"`
}

// CleaningInfo describes a plugin revision that a cleaning utility either
// verified clean or found dirty.
type CleaningInfo struct {
	CRC              string `json:"crc" yaml:"crc"`
	Utility          string `json:"util" yaml:"util"`
	ITMCount         int    `json:"itm,omitempty" yaml:"itm"`
	DeletedRefs      int    `json:"udr,omitempty" yaml:"udr"`
	DeletedNavmeshes int    `json:"nav,omitempty" yaml:"nav"`
	Info             string `json:"info,omitempty" yaml:"info"`
}
