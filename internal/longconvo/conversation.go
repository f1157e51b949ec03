package longconvo

import (
	"crypto/sha256"
	"encoding/hex"
)

// minDedupChunkChars is the minimum content length a segment must have to
// be considered for reference deduplication against later segments.
const minDedupChunkChars = 200

// Conversation is the in-memory arena for one conversation's segment log: a
// contiguous, append-only array indexed by ordinal, with id->index and
// hash->index side maps standing in for pointer-based lookups.
type Conversation struct {
	ID       string
	Segments []Segment

	TargetContextTokens int
	CurrentTotalTokens  int
	CompressThreshold   float64
	RawRecentTokens     int
	DedupJaccardThresh  float64

	idIndex   map[string]int
	hashIndex map[string][]int // a content hash can recur across dedup-eligible segments
}

// NewConversation builds an empty arena with the given budget/threshold
// configuration.
func NewConversation(id string, targetContextTokens, rawRecentTokens int, compressThreshold, dedupJaccardThresh float64) *Conversation {
	return &Conversation{
		ID:                   id,
		TargetContextTokens:  targetContextTokens,
		CompressThreshold:    compressThreshold,
		RawRecentTokens:      rawRecentTokens,
		DedupJaccardThresh:   dedupJaccardThresh,
		idIndex:              make(map[string]int),
		hashIndex:            make(map[string][]int),
	}
}

// Rebuild repopulates the arena and its side maps from segments loaded off
// disk in chronological order.
func Rebuild(id string, segments []Segment, targetContextTokens, rawRecentTokens int, compressThreshold, dedupJaccardThresh float64) *Conversation {
	c := NewConversation(id, targetContextTokens, rawRecentTokens, compressThreshold, dedupJaccardThresh)
	for _, s := range segments {
		c.append(s)
	}
	return c
}

// Append adds a new raw segment built from role/content and returns it.
func (c *Conversation) Append(role Role, content string, counter func(string) int) Segment {
	tokens := counter(content)
	seg := Segment{
		ID:             newSegmentID(),
		Role:           role,
		Content:        content,
		Timestamp:      now(),
		OriginalTokens: tokens,
		CurrentTokens:  tokens,
		State:          StateRaw,
		ContentHash:    contentHash(content),
	}
	c.append(seg)
	return seg
}

func (c *Conversation) append(seg Segment) {
	idx := len(c.Segments)
	c.Segments = append(c.Segments, seg)
	c.idIndex[seg.ID] = idx
	c.CurrentTotalTokens += seg.CurrentTokens
	if len(seg.Content) >= minDedupChunkChars {
		c.hashIndex[seg.ContentHash] = append(c.hashIndex[seg.ContentHash], idx)
	}
}

// IndexOf returns a segment's position in the arena, or -1 if unknown.
func (c *Conversation) IndexOf(id string) int {
	idx, ok := c.idIndex[id]
	if !ok {
		return -1
	}
	return idx
}

// ReplaceAt updates the segment at idx in place and adjusts the running
// token total by the delta.
func (c *Conversation) ReplaceAt(idx int, seg Segment) {
	old := c.Segments[idx]
	c.CurrentTotalTokens += seg.CurrentTokens - old.CurrentTokens
	c.Segments[idx] = seg
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
