package longconvo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	longConvoDir = "long_conversations"
	segmentsDir  = "segments"
	metadataFile = "metadata.json"
)

// Store persists conversation arenas under memory_root/long_conversations/.
// Segment files are append-only (one file per segment, chronologically
// named); only compression/dedup rewrites an existing segment file in
// place.
type Store struct {
	root string
}

// NewStore roots a Store at memoryRoot.
func NewStore(memoryRoot string) *Store {
	return &Store{root: memoryRoot}
}

func (s *Store) convDir(conversationID string) string {
	return filepath.Join(s.root, longConvoDir, conversationID)
}

func (s *Store) segmentsDir(conversationID string) string {
	return filepath.Join(s.convDir(conversationID), segmentsDir)
}

func (s *Store) metadataPath(conversationID string) string {
	return filepath.Join(s.convDir(conversationID), metadataFile)
}

type segmentFrontmatter struct {
	ID             string   `yaml:"id"`
	Role           string   `yaml:"role"`
	Timestamp      string   `yaml:"timestamp"`
	OriginalTokens int      `yaml:"original_tokens"`
	CurrentTokens  int      `yaml:"current_tokens"`
	State          string   `yaml:"state"`
	ContentHash    string   `yaml:"content_hash"`
	Summary        string   `yaml:"summary,omitempty"`
	RefersTo       string   `yaml:"refers_to,omitempty"`
	Diff           string   `yaml:"diff,omitempty"`
}

func segmentFilename(seg Segment, index int) string {
	ts := seg.Timestamp.UTC().Format("20060102-150405")
	return fmt.Sprintf("%06d_%s_%s.md", index, seg.Role, ts)
}

// SaveSegment writes one segment file at its ordinal position.
func (s *Store) SaveSegment(conversationID string, seg Segment, index int) error {
	fm := segmentFrontmatter{
		ID:             seg.ID,
		Role:           string(seg.Role),
		Timestamp:      seg.Timestamp.UTC().Format(time.RFC3339),
		OriginalTokens: seg.OriginalTokens,
		CurrentTokens:  seg.CurrentTokens,
		State:          string(seg.State),
		ContentHash:    seg.ContentHash,
		Summary:        seg.Summary,
		RefersTo:       seg.RefersTo,
		Diff:           seg.Diff,
	}
	front, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("marshal segment frontmatter: %w", err)
	}
	body := "---\n" + string(front) + "---\n\n" + seg.Content + "\n"

	path := filepath.Join(s.segmentsDir(conversationID), segmentFilename(seg, index))
	return atomicWrite(path, []byte(body))
}

// LoadSegments reads every segment file for a conversation, sorted
// chronologically by filename (the ordinal prefix guarantees this).
func (s *Store) LoadSegments(conversationID string) ([]Segment, error) {
	dir := s.segmentsDir(conversationID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read segments dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	segments := make([]Segment, 0, len(names))
	for _, name := range names {
		seg, ok, err := parseSegmentFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if ok {
			segments = append(segments, seg)
		}
	}
	return segments, nil
}

func parseSegmentFile(path string) (Segment, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Segment{}, false, fmt.Errorf("read segment file %s: %w", path, err)
	}
	text := string(raw)
	if !strings.HasPrefix(text, "---") {
		return Segment{}, false, nil
	}
	parts := strings.SplitN(text, "---", 3)
	if len(parts) < 3 {
		return Segment{}, false, nil
	}

	var fm segmentFrontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return Segment{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339, fm.Timestamp)
	if err != nil {
		ts = time.Time{}
	}

	return Segment{
		ID:             fm.ID,
		Role:           Role(fm.Role),
		Content:        strings.TrimSpace(parts[2]),
		Timestamp:      ts,
		OriginalTokens: fm.OriginalTokens,
		CurrentTokens:  fm.CurrentTokens,
		State:          State(fm.State),
		Summary:        fm.Summary,
		RefersTo:       fm.RefersTo,
		Diff:           fm.Diff,
		ContentHash:    fm.ContentHash,
	}, true, nil
}

type conversationMetadata struct {
	ID                  string  `json:"id"`
	TargetContextTokens int     `json:"target_context_tokens"`
	CurrentTotalTokens  int     `json:"current_total_tokens"`
	CompressThreshold   float64 `json:"compress_threshold"`
	RawRecentTokens     int     `json:"raw_recent_tokens"`
	DedupJaccardThresh  float64 `json:"dedup_jaccard_threshold"`
	SegmentCount        int     `json:"segment_count"`
}

// SaveMetadata persists the conversation's budget/threshold state (not its
// segment contents, which live in their own files).
func (s *Store) SaveMetadata(c *Conversation) error {
	meta := conversationMetadata{
		ID:                  c.ID,
		TargetContextTokens: c.TargetContextTokens,
		CurrentTotalTokens:  c.CurrentTotalTokens,
		CompressThreshold:   c.CompressThreshold,
		RawRecentTokens:     c.RawRecentTokens,
		DedupJaccardThresh:  c.DedupJaccardThresh,
		SegmentCount:        len(c.Segments),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal long-conversation metadata: %w", err)
	}
	return atomicWrite(s.metadataPath(c.ID), raw)
}

// Load reads a conversation's metadata and segments from disk, falling
// back to the supplied defaults for any conversation not seen before.
func (s *Store) Load(conversationID string, defaultTarget, defaultRawRecent int, defaultThreshold, defaultDedupThresh float64) (*Conversation, error) {
	target, rawRecent, threshold, dedupThresh := defaultTarget, defaultRawRecent, defaultThreshold, defaultDedupThresh

	raw, err := os.ReadFile(s.metadataPath(conversationID))
	switch {
	case err == nil:
		var meta conversationMetadata
		if jsonErr := json.Unmarshal(raw, &meta); jsonErr == nil {
			target = meta.TargetContextTokens
			threshold = meta.CompressThreshold
			rawRecent = meta.RawRecentTokens
			if meta.DedupJaccardThresh > 0 {
				dedupThresh = meta.DedupJaccardThresh
			}
		}
	case os.IsNotExist(err):
		// first time seeing this conversation; defaults stand
	default:
		return nil, fmt.Errorf("read long-conversation metadata: %w", err)
	}

	segments, err := s.LoadSegments(conversationID)
	if err != nil {
		return nil, err
	}
	return Rebuild(conversationID, segments, target, rawRecent, threshold, dedupThresh), nil
}

// Append persists a new segment and the conversation's updated metadata.
func (s *Store) Append(c *Conversation, seg Segment) error {
	idx := len(c.Segments)
	c.append(seg)
	if err := s.SaveSegment(c.ID, seg, idx+1); err != nil {
		return err
	}
	return s.SaveMetadata(c)
}

// SaveCompressed rewrites the on-disk file for a segment that has been
// compressed or deduplicated in place.
func (s *Store) SaveCompressed(c *Conversation, idx int) error {
	return s.SaveSegment(c.ID, c.Segments[idx], idx+1)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}
