package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/manifold-ai/retromem/internal/config"
	"github.com/manifold-ai/retromem/internal/embedder"
	"github.com/manifold-ai/retromem/internal/entrystore"
	"github.com/manifold-ai/retromem/internal/eventbus"
	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/observability"
	"github.com/manifold-ai/retromem/internal/vectorstore"
)

// Reconciler owns the full post-turn memory pipeline: fact extraction,
// reconciliation, eviction, and rolling summary maintenance.
type Reconciler struct {
	store            vectorstore.Store
	memoryCollection string
	embed            embedder.Embedder
	entries          *entrystore.Store
	llm              *llmclient.Client
	cfg              config.MemoryConfig
	events           *eventbus.Publisher // nil disables audit-event publishing
}

// New wires a Reconciler from its dependencies and tunables. Event
// publishing is off until SetEvents is called.
func New(store vectorstore.Store, memoryCollection string, embed embedder.Embedder, entries *entrystore.Store, llm *llmclient.Client, cfg config.MemoryConfig) *Reconciler {
	return &Reconciler{
		store:            store,
		memoryCollection: memoryCollection,
		embed:            embed,
		entries:          entries,
		llm:              llm,
		cfg:              cfg,
	}
}

// SetEvents attaches a Kafka publisher so PersistFacts/DeleteFacts emit an
// audit event per mutation. Passing nil disables publishing again.
func (r *Reconciler) SetEvents(pub *eventbus.Publisher) {
	r.events = pub
}

// Process runs fact extraction, reconciliation, eviction, and summary
// maintenance for one completed turn. It never returns an error to a
// synchronous caller's critical path; failures are logged and skipped so a
// reconciliation hiccup never blocks a chat response. The gateway runs this
// as a fire-and-forget background task.
func (r *Reconciler) Process(ctx context.Context, conversationID, userMessage string) {
	facts := ExtractFacts(ctx, r.llm, r.cfg.Model, userMessage)
	if len(facts) == 0 {
		return
	}

	sourceID := uuid.NewString()
	createdAt := time.Now().UTC()

	logger := observability.LoggerWithTrace(ctx)

	toAdd, toDelete, replacementMap, err := r.ReconcileFacts(ctx, conversationID, facts, sourceID, createdAt)
	if err != nil {
		logger.Error().Err(err).Str("conversation_id", conversationID).Msg("reconciler: reconcile facts failed")
		return
	}

	if len(toDelete) > 0 {
		if err := r.DeleteFacts(ctx, toDelete, replacementMap); err != nil {
			logger.Error().Err(err).Str("conversation_id", conversationID).Msg("reconciler: delete facts failed")
		}
	}
	if len(toAdd) > 0 {
		if err := r.PersistFacts(ctx, toAdd); err != nil {
			logger.Error().Err(err).Str("conversation_id", conversationID).Msg("reconciler: persist facts failed")
		}
	}

	if err := r.EvictIfNeeded(ctx, conversationID, r.cfg.MaxEntries); err != nil {
		logger.Error().Err(err).Str("conversation_id", conversationID).Msg("reconciler: eviction failed")
	}

	if r.cfg.EnableSummarization {
		r.updateSummaries(ctx, conversationID, facts)
	}
}

func (r *Reconciler) updateSummaries(ctx context.Context, conversationID string, facts []string) {
	logger := observability.LoggerWithTrace(ctx)
	for _, kind := range []struct {
		k         summaryKind
		maxTokens int
	}{
		{summaryShort, r.cfg.ShortSummaryTokens},
		{summaryLong, r.cfg.LongSummaryTokens},
	} {
		prior, _, err := r.GetSummary(conversationID, kind.k)
		if err != nil {
			logger.Error().Err(err).Str("conversation_id", conversationID).Str("kind", string(kind.k)).Msg("reconciler: read prior summary failed")
			continue
		}
		updated, err := r.UpdateSummary(ctx, prior, facts, kind.maxTokens)
		if err != nil {
			logger.Warn().Err(err).Str("conversation_id", conversationID).Str("kind", string(kind.k)).Msg("reconciler: summary update failed")
			continue
		}
		if updated == prior || updated == "" {
			continue
		}
		if err := r.PersistSummary(conversationID, kind.k, updated); err != nil {
			logger.Error().Err(err).Str("conversation_id", conversationID).Str("kind", string(kind.k)).Msg("reconciler: persist summary failed")
		}
	}
}
