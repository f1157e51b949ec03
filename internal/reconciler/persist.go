package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/manifold-ai/retromem/internal/entrystore"
	"github.com/manifold-ai/retromem/internal/eventbus"
	"github.com/manifold-ai/retromem/internal/observability"
	"github.com/manifold-ai/retromem/internal/vectorstore"
)

// PersistFacts writes each fact to the file store and the vector store.
// Persistence is all-or-nothing per entry: if the vector upsert fails after
// the file write succeeded, the file entry is tombstoned again so disk and
// vector state never diverge.
func (r *Reconciler) PersistFacts(ctx context.Context, facts []Fact) error {
	for _, f := range facts {
		entry, err := r.entries.WriteWithID(f.ID, entrystore.Metadata{
			ConversationID: f.ConversationID,
			Role:           memoryRole,
			CreatedAt:      f.CreatedAt,
			SourceID:       f.SourceID,
			FactKey:        f.FactKey,
		}, f.Content)
		if err != nil {
			return fmt.Errorf("persist fact file %s: %w", f.ID, err)
		}

		vecs, err := r.embed.EmbedBatch(ctx, []string{f.Content})
		if err != nil {
			_ = r.entries.SoftDelete(entry.ID, "")
			return fmt.Errorf("embed fact %s: %w", f.ID, err)
		}
		record := vectorstore.Record{
			ID:     f.ID,
			Vector: vecs[0],
			Metadata: map[string]any{
				"conversation_id": f.ConversationID,
				"role":            memoryRole,
				"content":         f.Content,
				"created_at":      f.CreatedAt.Format(time.RFC3339),
				"source_id":       f.SourceID,
				"fact_key":        f.FactKey,
			},
		}
		if err := r.store.Upsert(ctx, r.memoryCollection, []vectorstore.Record{record}); err != nil {
			_ = r.entries.SoftDelete(entry.ID, "")
			return fmt.Errorf("upsert fact %s: %w", f.ID, err)
		}
		r.publishEvent(ctx, eventbus.Event{
			Type:           eventbus.FactAdded,
			ConversationID: f.ConversationID,
			FactID:         f.ID,
			FactKey:        f.FactKey,
			Timestamp:      f.CreatedAt,
		})
	}
	return nil
}

// publishEvent is a no-op when no publisher is attached. Publishing is
// best-effort: a broker outage must never fail the persist/delete path it
// is reporting on, so failures are logged, not returned.
func (r *Reconciler) publishEvent(ctx context.Context, evt eventbus.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, evt); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("fact_id", evt.FactID).Msg("reconciler: failed to publish audit event")
	}
}

// DeleteFacts removes facts from the vector store and tombstones their
// files, recording replacements so readers can follow a chain from a
// superseded fact to the one that replaced it.
func (r *Reconciler) DeleteFacts(ctx context.Context, ids []string, replacementMap map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.store.Delete(ctx, r.memoryCollection, ids); err != nil {
		return fmt.Errorf("delete facts from vector store: %w", err)
	}
	for _, id := range ids {
		if err := r.entries.SoftDelete(id, replacementMap[id]); err != nil {
			observability.LoggerWithTrace(ctx).Error().Err(err).Str("fact_id", id).Msg("reconciler: failed to tombstone fact file")
		}
		r.publishEvent(ctx, eventbus.Event{
			Type:           eventbus.FactDeleted,
			ConversationID: "",
			FactID:         id,
			Timestamp:      time.Now().UTC(),
		})
	}
	return nil
}
