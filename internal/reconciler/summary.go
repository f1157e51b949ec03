package reconciler

import (
	"context"
	"strings"
	"time"

	"github.com/manifold-ai/retromem/internal/entrystore"
	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/tokencount"
)

// summaryKind identifies which of the two rolling summaries is being read
// or written.
type summaryKind string

const (
	summaryShort summaryKind = "summary_short"
	summaryLong  summaryKind = "summary_long"
)

func summaryID(conversationID string, kind summaryKind) string {
	return conversationID + "::" + string(kind)
}

// GetSummary returns the current rolling summary of the given kind, or ""
// if none exists yet.
func (r *Reconciler) GetSummary(conversationID string, kind summaryKind) (string, bool, error) {
	entry, ok, err := r.entries.Get(summaryID(conversationID, kind))
	if err != nil || !ok {
		return "", ok, err
	}
	return entry.Content, true, nil
}

// ShortSummary and LongSummary expose the two rolling summaries spec §4.F
// step 5 requires retrieval to surface as separate context blocks, without
// handing callers outside this package the unexported summaryKind type.
func (r *Reconciler) ShortSummary(conversationID string) (string, bool, error) {
	return r.GetSummary(conversationID, summaryShort)
}

func (r *Reconciler) LongSummary(conversationID string) (string, bool, error) {
	return r.GetSummary(conversationID, summaryLong)
}

// UpdateSummary asks the model to fold newFacts into priorSummary, then
// trims the result to fit maxTokens.
func (r *Reconciler) UpdateSummary(ctx context.Context, priorSummary string, newFacts []string, maxTokens int) (string, error) {
	if len(newFacts) == 0 {
		return priorSummary, nil
	}

	var userParts []string
	if priorSummary != "" {
		userParts = append(userParts, "Previous summary:\n"+priorSummary)
	}
	var factLines strings.Builder
	factLines.WriteString("New facts:\n")
	for _, f := range newFacts {
		factLines.WriteString("- ")
		factLines.WriteString(f)
		factLines.WriteString("\n")
	}
	userParts = append(userParts, factLines.String())

	var out struct {
		Summary string `json:"summary"`
	}
	err := r.llm.CompleteJSON(ctx, r.cfg.Model, []llmclient.Message{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: strings.Join(userParts, "\n\n")},
	}, 0.2, maxTokens, &out)
	if err != nil || strings.TrimSpace(out.Summary) == "" {
		return priorSummary, err
	}

	return truncateToTokenBudget(out.Summary, maxTokens), nil
}

// PersistSummary writes a rolling summary under its stable per-conversation
// id so repeated updates overwrite the same file rather than accumulating.
func (r *Reconciler) PersistSummary(conversationID string, kind summaryKind, content string) error {
	_, err := r.entries.WriteWithID(summaryID(conversationID, kind), entrystore.Metadata{
		ConversationID: conversationID,
		Role:           string(kind),
		CreatedAt:      time.Now().UTC(),
		SummaryKind:    string(kind),
	}, content)
	return err
}

// truncateToTokenBudget trims text to approximately maxTokens, preferring a
// whitespace boundary so sentences aren't cut mid-word.
func truncateToTokenBudget(text string, maxTokens int) string {
	if maxTokens <= 0 || tokencount.Estimate(text) <= maxTokens {
		return text
	}
	maxChars := maxTokens * 4
	if maxChars >= len(text) {
		return text
	}
	cut := strings.LastIndexAny(text[:maxChars], " \n\t")
	if cut <= 0 {
		cut = maxChars
	}
	return strings.TrimSpace(text[:cut])
}
