package longconvo

import "github.com/manifold-ai/retromem/internal/tokencount"

// ContextMessage is one chat message in the assembled context.
type ContextMessage struct {
	Role    string
	Content string
}

// BuildContext assembles the message list to send upstream: the system
// prompt (if any), as many recent segments as fit the remaining budget
// after reserving space for the system prompt and the new user message,
// then the new user message itself. Summarized segments contribute their
// summary text; reference segments contribute their marker content
// (already stored as Content at append time).
func BuildContext(c *Conversation, newMessage, systemPrompt string, tokenBudget int) []ContextMessage {
	var messages []ContextMessage
	reserved := 0
	if systemPrompt != "" {
		messages = append(messages, ContextMessage{Role: "system", Content: systemPrompt})
		reserved += tokencount.Estimate(systemPrompt)
	}
	reserved += tokencount.Estimate(newMessage)

	available := tokenBudget - reserved
	recent := RecentSegments(c, available)
	for _, seg := range recent {
		messages = append(messages, ContextMessage{Role: string(seg.Role), Content: seg.EffectiveContent()})
	}

	messages = append(messages, ContextMessage{Role: "user", Content: newMessage})
	return messages
}

// RecentSegments walks the arena from newest to oldest, collecting segments
// until maxTokens would be exceeded, then returns them in chronological
// order.
func RecentSegments(c *Conversation, maxTokens int) []Segment {
	if maxTokens < 0 {
		maxTokens = 0
	}
	var picked []Segment
	total := 0
	for i := len(c.Segments) - 1; i >= 0; i-- {
		seg := c.Segments[i]
		if total+seg.CurrentTokens > maxTokens {
			break
		}
		picked = append(picked, seg)
		total += seg.CurrentTokens
	}
	for l, r := 0, len(picked)-1; l < r; l, r = l+1, r-1 {
		picked[l], picked[r] = picked[r], picked[l]
	}
	return picked
}

// ShouldCompress reports whether total usage has crossed CompressThreshold
// of TargetContextTokens.
func ShouldCompress(c *Conversation) bool {
	if c.TargetContextTokens <= 0 {
		return false
	}
	ratio := float64(c.CurrentTotalTokens) / float64(c.TargetContextTokens)
	return ratio >= c.CompressThreshold
}
