// Package reconciler implements the Memory Reconciler: LLM-driven fact
// extraction from user turns, ADD/UPDATE/DELETE/NONE reconciliation against
// existing facts, eviction, and rolling short/long summary maintenance.
package reconciler

import "time"

// Fact is one extracted, persisted long-term memory fact. FactKey is the
// identity that survives an UPDATE: spec §3 requires exactly one live
// memory entry per (conversation_id, fact_key) pair, so a replacement fact
// carries its predecessor's FactKey forward rather than minting a new one.
type Fact struct {
	ID             string
	ConversationID string
	Content        string
	SourceID       string
	FactKey        string
	CreatedAt      time.Time
}

// Decision is one LLM reconciliation verdict for a new fact.
type Decision struct {
	Event string `json:"event"` // ADD | UPDATE | DELETE | NONE
	ID    *int   `json:"id,omitempty"`
	Text  string `json:"text,omitempty"`
}

const (
	eventAdd    = "ADD"
	eventUpdate = "UPDATE"
	eventDelete = "DELETE"
	eventNone   = "NONE"
)
