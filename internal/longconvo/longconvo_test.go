package longconvo

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/manifold-ai/retromem/internal/tokencount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConv() *Conversation {
	return NewConversation("conv-1", 1000, 400, 0.8, 0.7)
}

func TestConversation_AppendTracksTotalTokensAndIndex(t *testing.T) {
	c := newConv()
	seg := c.Append(RoleUser, "hello there", tokencount.Estimate)
	assert.Equal(t, seg.CurrentTokens, c.CurrentTotalTokens)
	assert.Equal(t, 0, c.IndexOf(seg.ID))
}

func TestBuildContext_AlwaysIncludesSystemAndNewMessage(t *testing.T) {
	c := newConv()
	c.Append(RoleUser, "first turn", tokencount.Estimate)
	c.Append(RoleAssistant, "first reply", tokencount.Estimate)

	msgs := BuildContext(c, "new question", "be helpful", 1000)
	require.True(t, len(msgs) >= 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "be helpful", msgs[0].Content)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "new question", last.Content)
}

func TestBuildContext_UsesSummaryForSummarizedSegments(t *testing.T) {
	c := newConv()
	seg := c.Append(RoleAssistant, "a very long original response text", tokencount.Estimate)
	idx := c.IndexOf(seg.ID)
	seg.State = StateSummarized
	seg.Summary = "short summary"
	seg.CurrentTokens = tokencount.Estimate(seg.Summary)
	c.ReplaceAt(idx, seg)

	msgs := BuildContext(c, "follow up", "", 1000)
	require.True(t, len(msgs) >= 1)
	assert.Equal(t, "short summary", msgs[0].Content)
}

func TestShouldCompress_RespectsThreshold(t *testing.T) {
	c := NewConversation("conv-2", 100, 50, 0.8, 0.7)
	c.CurrentTotalTokens = 79
	assert.False(t, ShouldCompress(c))
	c.CurrentTotalTokens = 80
	assert.True(t, ShouldCompress(c))
}

func TestSelectSegmentsToCompress_PrioritizesAssistantThenOldest(t *testing.T) {
	c := NewConversation("conv-3", 100000, 0, 0.8, 0.7) // raw_recent_tokens=0: nothing protected by token window
	base := time.Now().Add(-time.Hour)
	mk := func(role Role, content string, ts time.Time) Segment {
		seg := c.Append(role, content, tokencount.Estimate)
		idx := c.IndexOf(seg.ID)
		seg.Timestamp = ts
		c.Segments[idx] = seg
		return seg
	}
	mk(RoleUser, "user turn one", base)
	mk(RoleAssistant, "assistant turn one", base.Add(time.Minute))
	mk(RoleUser, "user turn two", base.Add(2*time.Minute))
	mk(RoleAssistant, "assistant turn two", base.Add(3*time.Minute))

	selected := SelectSegmentsToCompress(c, 0)
	require.Len(t, selected, 4)
	assert.Equal(t, RoleAssistant, selected[0].Role)
	assert.Equal(t, RoleAssistant, selected[1].Role)
	assert.True(t, selected[0].Timestamp.Before(selected[1].Timestamp))
}

func TestIsRecentSegment_ProtectsWithinTokenWindow(t *testing.T) {
	c := NewConversation("conv-4", 100000, 30, 0.8, 0.7)
	c.Append(RoleUser, strings.Repeat("a", 40), tokencount.Estimate) // ~10 tokens, idx 0
	c.Append(RoleUser, strings.Repeat("b", 120), tokencount.Estimate) // ~30 tokens, idx 1

	assert.True(t, isRecentSegment(c, 1), "newest segment fits the 30-token window and has no later user turns")
}

func TestJaccardSimilarity_IdenticalAndDifferentText(t *testing.T) {
	a := "the quick brown fox jumps over the lazy dog repeatedly during the afternoon"
	assert.Equal(t, 1.0, jaccardSimilarity(a, a))

	b := "a completely unrelated sentence about something else entirely different today"
	sim := jaccardSimilarity(a, b)
	assert.Less(t, sim, 0.3)
}

func TestApplyDedup_MarksNearDuplicateAsReference(t *testing.T) {
	c := NewConversation("conv-5", 100000, 100000, 0.8, 0.5)
	longText := strings.Repeat("this is a repeated block of content that is long enough to dedup ", 4)
	c.Append(RoleUser, longText, tokencount.Estimate)
	dup := c.Append(RoleUser, longText, tokencount.Estimate)
	idx := c.IndexOf(dup.ID)

	ApplyDedup(c, idx, tokencount.Estimate)

	assert.Equal(t, StateReference, c.Segments[idx].State)
	assert.Contains(t, c.Segments[idx].Content, "Similar to segment")
	assert.Equal(t, c.Segments[0].ID, c.Segments[idx].RefersTo)
}

func TestApplyDedup_LeavesDifferentContentAlone(t *testing.T) {
	c := NewConversation("conv-6", 100000, 100000, 0.8, 0.7)
	c.Append(RoleUser, strings.Repeat("alpha beta gamma delta epsilon zeta eta theta ", 4), tokencount.Estimate)
	second := c.Append(RoleUser, strings.Repeat("unrelated words about something totally different topic ", 4), tokencount.Estimate)
	idx := c.IndexOf(second.ID)

	ApplyDedup(c, idx, tokencount.Estimate)

	assert.Equal(t, StateRaw, c.Segments[idx].State)
}

func TestStore_SaveAndLoadSegmentsRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "longconvo-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store := NewStore(dir)
	c := NewConversation("conv-7", 1000, 400, 0.8, 0.7)

	seg1 := Segment{ID: "s1", Role: RoleUser, Content: "hello", Timestamp: time.Now().UTC(), CurrentTokens: 2, OriginalTokens: 2, State: StateRaw}
	require.NoError(t, store.Append(c, seg1))
	seg2 := Segment{ID: "s2", Role: RoleAssistant, Content: "hi there", Timestamp: time.Now().UTC().Add(time.Second), CurrentTokens: 2, OriginalTokens: 2, State: StateRaw}
	require.NoError(t, store.Append(c, seg2))

	loaded, err := store.Load("conv-7", 1000, 400, 0.8, 0.7)
	require.NoError(t, err)
	require.Len(t, loaded.Segments, 2)
	assert.Equal(t, "hello", loaded.Segments[0].Content)
	assert.Equal(t, "hi there", loaded.Segments[1].Content)
	assert.Equal(t, 4, loaded.CurrentTotalTokens)
}
