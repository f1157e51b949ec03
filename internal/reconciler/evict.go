package reconciler

import (
	"context"
	"sort"
)

// EvictIfNeeded removes the oldest facts for a conversation once its fact
// count exceeds maxEntries. Summaries and raw turns are never evicted here.
func (r *Reconciler) EvictIfNeeded(ctx context.Context, conversationID string, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}
	entries, err := r.entries.List(conversationID, memoryRole)
	if err != nil {
		return err
	}
	if len(entries) <= maxEntries {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Metadata.CreatedAt.Before(entries[j].Metadata.CreatedAt)
	})
	overflow := entries[:len(entries)-maxEntries]
	ids := make([]string, len(overflow))
	for i, e := range overflow {
		ids[i] = e.ID
	}
	return r.DeleteFacts(ctx, ids, nil)
}
