package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLLM(t *testing.T, reply func(systemPrompt, userContent string) string) *llmclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		var system, user string
		for _, m := range body.Messages {
			if m.Role == "system" {
				system = m.Content
			} else {
				user = m.Content
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "x", "object": "chat.completion", "created": 1, "model": "m",
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{
				"role": "assistant", "content": reply(system, user),
			}}},
		})
	}))
	t.Cleanup(srv.Close)
	return llmclient.New(srv.URL, "test-key")
}

func TestDetermineLevel_Thresholds(t *testing.T) {
	assert.Equal(t, LevelNone, DetermineLevel(0))
	assert.Equal(t, LevelNone, DetermineLevel(99))
	assert.Equal(t, LevelBrief, DetermineLevel(100))
	assert.Equal(t, LevelBrief, DetermineLevel(499))
	assert.Equal(t, LevelMapReduce, DetermineLevel(500))
	assert.Equal(t, LevelMapReduce, DetermineLevel(50000))
}

func TestSummarize_ShortTextReturnsUnchangedAtLevelNone(t *testing.T) {
	llm := fakeLLM(t, func(string, string) string { t.Fatal("llm should not be called at LevelNone"); return "" })
	s := New(llm, Config{Model: "test-model"})

	res, err := s.Summarize(context.Background(), "just a short note", ContentGeneral)
	require.NoError(t, err)
	assert.Equal(t, LevelNone, res.Level)
	assert.Equal(t, "just a short note", res.Summary)
	assert.Equal(t, 1.0, res.CompressionRatio)
}

func TestSummarize_MediumTextUsesBriefPrompt(t *testing.T) {
	llm := fakeLLM(t, func(system, _ string) string {
		assert.Equal(t, briefPrompt, system)
		return "A single-sentence summary."
	})
	s := New(llm, Config{Model: "test-model"})

	text := strings.Repeat("word ", 150) // ~190 tokens, falls in BRIEF band
	res, err := s.Summarize(context.Background(), text, ContentGeneral)
	require.NoError(t, err)
	assert.Equal(t, LevelBrief, res.Level)
	assert.Equal(t, "A single-sentence summary.", res.Summary)
}

func TestSummarize_LongTextRunsMapReduceAndCollapses(t *testing.T) {
	llm := fakeLLM(t, func(_, user string) string {
		if strings.HasPrefix(user, "Section 1:") {
			return "final synthesized summary"
		}
		return "chunk summary: " + user[:min(20, len(user))]
	})
	cfg := Config{Model: "test-model", ChunkSize: 50, ChunkOverlap: 5, TokenMax: 40, MaxConcurrentChunks: 2}
	s := New(llm, cfg)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	res, err := s.Summarize(context.Background(), text, ContentGeneral)
	require.NoError(t, err)
	assert.Equal(t, LevelMapReduce, res.Level)
	assert.NotEmpty(t, res.Summary)
}

func TestGroupByTokenBudget_PacksGreedily(t *testing.T) {
	summaries := []string{
		strings.Repeat("a", 40), // ~10 tokens
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
	}
	groups := groupByTokenBudget(summaries, 15)
	require.Len(t, groups, 3)
	for _, g := range groups {
		assert.Len(t, g, 1, "no two summaries fit the tiny budget together")
	}

	groups = groupByTokenBudget(summaries, 100)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 3)
}

func TestEstimateSummaryTokens_ClampsToRange(t *testing.T) {
	assert.Equal(t, 50, estimateSummaryTokens(10))
	assert.Equal(t, 100, estimateSummaryTokens(1000))
	assert.Equal(t, 500, estimateSummaryTokens(10000))
}

func TestMapPromptForContentType_SelectsVariant(t *testing.T) {
	assert.Contains(t, mapPromptForContentType(ContentConversation, 5, 10), "conversation")
	assert.Contains(t, mapPromptForContentType(ContentJournal, 5, 10), "journal")
	assert.Contains(t, mapPromptForContentType(ContentDocument, 5, 10), "document")
	assert.Equal(t, mapPromptForContentType(ContentGeneral, 5, 10), mapPromptForContentType("unknown", 5, 10))
}
