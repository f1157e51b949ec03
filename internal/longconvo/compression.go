package longconvo

import "sort"

// roleCompressionConfig is the asymmetric compression tuning for one role:
// how many of its most recent turns stay raw, and how aggressively its
// older turns get summarized.
type roleCompressionConfig struct {
	recentTurns        int
	summaryTargetRatio float64
}

var compressionConfig = map[Role]roleCompressionConfig{
	RoleUser:      {recentTurns: 20, summaryTargetRatio: 0.7}, // gentle: preserve quotes/code
	RoleAssistant: {recentTurns: 10, summaryTargetRatio: 0.2}, // aggressive: decisions/conclusions only
}

func configFor(role Role) roleCompressionConfig {
	if cfg, ok := compressionConfig[role]; ok {
		return cfg
	}
	return roleCompressionConfig{recentTurns: 10, summaryTargetRatio: 0.5}
}

// isRecentSegment reports whether the segment at idx stays raw. It is recent
// only if the segments from idx through the newest fit within
// c.RawRecentTokens and fewer than its role's recentTurns same-role turns
// follow it; once the token budget is exceeded the turn count is not
// consulted.
func isRecentSegment(c *Conversation, idx int) bool {
	tokens := 0
	for i := len(c.Segments) - 1; i >= idx; i-- {
		tokens += c.Segments[i].CurrentTokens
		if tokens > c.RawRecentTokens {
			return idx > i
		}
	}

	recentTurns := configFor(c.Segments[idx].Role).recentTurns
	turnsAfter := 0
	for i := idx + 1; i < len(c.Segments); i++ {
		if c.Segments[i].Role == c.Segments[idx].Role {
			turnsAfter++
		}
	}
	return turnsAfter < recentTurns
}

// SelectSegmentsToCompress returns raw, non-system, non-recent segments
// ordered by compression priority: assistant segments first (compressed
// more aggressively), then oldest first. If targetReduction > 0, the
// selection stops once enough segments have been gathered to free
// approximately that many tokens.
func SelectSegmentsToCompress(c *Conversation, targetReduction int) []Segment {
	type candidate struct {
		idx int
		seg Segment
	}
	var candidates []candidate
	for i, seg := range c.Segments {
		if seg.State != StateRaw || seg.Role == RoleSystem {
			continue
		}
		if isRecentSegment(c, i) {
			continue
		}
		candidates = append(candidates, candidate{idx: i, seg: seg})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		iAssistant := candidates[i].seg.Role == RoleAssistant
		jAssistant := candidates[j].seg.Role == RoleAssistant
		if iAssistant != jAssistant {
			return iAssistant // assistant sorts before user
		}
		return candidates[i].seg.Timestamp.Before(candidates[j].seg.Timestamp)
	})

	if targetReduction <= 0 {
		out := make([]Segment, len(candidates))
		for i, c := range candidates {
			out[i] = c.seg
		}
		return out
	}

	var selected []Segment
	saved := 0
	for _, cand := range candidates {
		ratio := configFor(cand.seg.Role).summaryTargetRatio
		selected = append(selected, cand.seg)
		saved += int(float64(cand.seg.CurrentTokens) * (1 - ratio))
		if saved >= targetReduction {
			break
		}
	}
	return selected
}
