// Package entrystore is the File Persistence Layer: Markdown+YAML-frontmatter
// memory entries on disk, a snapshot.json mirror for O(1) lookup, and
// soft-delete tombstoning under a parallel "deleted" subtree.
package entrystore

import "time"

const deletedDirName = "deleted"

// Metadata carries every frontmatter field a Memory Entry (spec §3) can
// have. Role-specific fields are left zero-valued when not applicable.
type Metadata struct {
	ConversationID string    `yaml:"conversation_id"`
	Role           string    `yaml:"role"` // user|assistant|memory|summary
	CreatedAt      time.Time `yaml:"created_at"`
	Salience       *float64  `yaml:"salience,omitempty"`
	Tags           []string  `yaml:"tags,omitempty"`
	FactKey        string    `yaml:"fact_key,omitempty"`
	SourceID       string    `yaml:"source_id,omitempty"`
	SummaryKind    string    `yaml:"summary_kind,omitempty"` // summary_short|summary_long
	ReplacedBy     string    `yaml:"replaced_by,omitempty"`
}

// Entry is a single persisted memory file: its id, relative path under the
// memory root, metadata, and body content.
type Entry struct {
	ID       string
	Path     string // relative to memory root
	Metadata Metadata
	Content  string
}

// roleSubdir returns the path segment under entries/<slug>/ for role, per
// the layout in spec §6: turns/, facts/, summaries/<role>/.
func roleSubdir(role string) string {
	switch role {
	case "user", "assistant":
		return "turns"
	case "memory":
		return "facts"
	case "summary_short", "summary_long", "summary":
		return "summaries/" + role
	default:
		return role
	}
}
