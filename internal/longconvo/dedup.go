package longconvo

import (
	"fmt"
	"strings"
)

// jaccardSimilarity returns |A∩B| / |A∪B| over whitespace-split lowercased
// token sets, 0 if either side is empty.
func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	union := make(map[string]struct{}, len(setA)+len(setB))
	for t := range setA {
		union[t] = struct{}{}
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	for t := range setB {
		union[t] = struct{}{}
	}
	return float64(intersection) / float64(len(union))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// findDedupMatch scans eligible prior segments (raw or summarized, at least
// minDedupChunkChars, not already a reference) for the best Jaccard match
// against content. Returns the best-matching segment, or ok=false if nothing
// clears c.DedupJaccardThresh.
func findDedupMatch(c *Conversation, beforeIdx int, content string) (match Segment, ok bool) {
	if len(content) < minDedupChunkChars {
		return Segment{}, false
	}
	best := 0.0
	var bestSeg Segment
	for i := 0; i < beforeIdx; i++ {
		cand := c.Segments[i]
		if cand.State == StateReference || len(cand.Content) < minDedupChunkChars {
			continue
		}
		sim := jaccardSimilarity(content, cand.Content)
		if sim > best {
			best = sim
			bestSeg = cand
		}
	}
	if best >= c.DedupJaccardThresh {
		return bestSeg, true
	}
	return Segment{}, false
}

// ApplyDedup checks the segment at idx against everything before it and, if
// a near-duplicate is found, rewrites it into a reference segment pointing
// at the original.
func ApplyDedup(c *Conversation, idx int, counter func(string) int) {
	seg := c.Segments[idx]
	if seg.State != StateRaw {
		return
	}
	match, ok := findDedupMatch(c, idx, seg.Content)
	if !ok {
		return
	}

	marker := fmt.Sprintf("[Similar to segment %s]", match.ID)
	diff := ""
	if seg.Content != match.Content {
		diff = seg.Content
	}
	content := marker
	if diff != "" {
		content = marker + "\n\n[Changes:\n" + diff + "]"
	}

	seg.State = StateReference
	seg.RefersTo = match.ID
	seg.Diff = diff
	seg.Content = content
	seg.CurrentTokens = counter(content)
	c.ReplaceAt(idx, seg)
}
