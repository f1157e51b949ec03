package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/observability"
	"github.com/manifold-ai/retromem/internal/vectorstore"
)

const memoryRole = "memory"
const existingFetchPerFact = 5
const maxExistingConsidered = 20

// gatherExistingMemories fetches candidate existing facts for this
// conversation that new facts might relate to, deduplicated by id.
func (r *Reconciler) gatherExistingMemories(ctx context.Context, conversationID string, newFacts []string) ([]Fact, error) {
	seen := make(map[string]bool)
	var out []Fact

	for _, fact := range newFacts {
		vecs, err := r.embed.EmbedBatch(ctx, []string{fact})
		if err != nil {
			return nil, fmt.Errorf("embed fact for reconciliation lookup: %w", err)
		}
		hits, err := r.store.Query(ctx, r.memoryCollection, vecs[0], existingFetchPerFact, vectorstore.Where{
			"conversation_id": conversationID,
			"role":            memoryRole,
		})
		if err != nil {
			return nil, fmt.Errorf("query existing memories: %w", err)
		}
		for _, h := range hits {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			content, _ := h.Metadata["content"].(string)
			factKey, _ := h.Metadata["fact_key"].(string)
			out = append(out, Fact{ID: h.ID, ConversationID: conversationID, Content: content, FactKey: factKey})
			if len(out) >= maxExistingConsidered {
				return out, nil
			}
		}
	}
	return out, nil
}

// processDecisions turns LLM decisions into concrete add/delete/replace
// operations, translating the int ids the model reasoned over back into
// real facts via idMap. An UPDATE carries the original fact's FactKey
// forward onto its replacement so the (conversation_id, fact_key) identity
// spec §3 requires survives the replace.
func processDecisions(decisions []Decision, idMap map[int]Fact, conversationID, sourceID string, createdAt time.Time) (toAdd []Fact, toDelete []string, replacementMap map[string]string) {
	replacementMap = make(map[string]string)

	for _, dec := range decisions {
		switch dec.Event {
		case eventAdd:
			if text := strings.TrimSpace(dec.Text); text != "" {
				toAdd = append(toAdd, newFact(conversationID, text, sourceID, createdAt))
			}
		case eventUpdate:
			if dec.ID == nil {
				continue
			}
			orig, ok := idMap[*dec.ID]
			if !ok {
				continue
			}
			if text := strings.TrimSpace(dec.Text); text != "" {
				fresh := newFact(conversationID, text, sourceID, createdAt)
				if orig.FactKey != "" {
					fresh.FactKey = orig.FactKey
				}
				toDelete = append(toDelete, orig.ID)
				toAdd = append(toAdd, fresh)
				replacementMap[orig.ID] = fresh.ID
			}
		case eventDelete:
			if dec.ID == nil {
				continue
			}
			if orig, ok := idMap[*dec.ID]; ok {
				toDelete = append(toDelete, orig.ID)
			}
		case eventNone:
			// explicit keep; nothing to do
		}
	}
	return toAdd, toDelete, replacementMap
}

// ReconcileFacts decides ADD/UPDATE/DELETE/NONE for newFacts against
// existing memory, applying the "never end up with an empty store after a
// failed reconciliation" safeguard.
func (r *Reconciler) ReconcileFacts(ctx context.Context, conversationID string, newFacts []string, sourceID string, createdAt time.Time) ([]Fact, []string, map[string]string, error) {
	if len(newFacts) == 0 {
		return nil, nil, nil, nil
	}

	addAllAsFresh := func() []Fact {
		facts := make([]Fact, 0, len(newFacts))
		for _, f := range newFacts {
			if t := strings.TrimSpace(f); t != "" {
				facts = append(facts, newFact(conversationID, t, sourceID, createdAt))
			}
		}
		return facts
	}

	existing, err := r.gatherExistingMemories(ctx, conversationID, newFacts)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(existing) == 0 {
		return addAllAsFresh(), nil, nil, nil
	}

	idMap := make(map[int]Fact, len(existing))
	existingPayload := make([]map[string]string, len(existing))
	for i, mem := range existing {
		idMap[i] = mem
		existingPayload[i] = map[string]string{"id": fmt.Sprintf("%d", i), "text": mem.Content}
	}
	payloadBytes, err := json.Marshal(map[string]any{"existing": existingPayload, "new_facts": newFacts})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal reconciliation payload: %w", err)
	}

	var decisions []Decision
	err = r.llm.CompleteJSON(ctx, r.cfg.Model, []llmclient.Message{
		{Role: "system", Content: updateMemoryPrompt},
		{Role: "user", Content: string(payloadBytes)},
	}, 0, 512, &decisions)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("reconciler: decision call failed, retaining new facts")
		return addAllAsFresh(), nil, nil, nil
	}

	toAdd, toDelete, replacementMap := processDecisions(decisions, idMap, conversationID, sourceID, createdAt)

	hasKeepAction := false
	for _, d := range decisions {
		if d.Event == eventAdd || d.Event == eventUpdate || d.Event == eventNone {
			hasKeepAction = true
			break
		}
	}
	if !hasKeepAction && len(newFacts) > 0 {
		observability.LoggerWithTrace(ctx).Info().Str("conversation_id", conversationID).Msg("reconciler: no keep actions decided, retaining new facts to avoid empty store")
		toAdd = addAllAsFresh()
		toDelete = nil
		replacementMap = nil
	}

	return toAdd, toDelete, replacementMap, nil
}

// newFact mints a brand-new fact with a fresh FactKey. Callers that are
// replacing an existing fact (an UPDATE decision) overwrite FactKey with the
// predecessor's afterward so the identity carries across the replace.
func newFact(conversationID, content, sourceID string, createdAt time.Time) Fact {
	return Fact{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		SourceID:       sourceID,
		FactKey:        uuid.NewString(),
		CreatedAt:      createdAt,
	}
}

