// Command gateway runs the retrieval/memory proxy core: an
// OpenAI-compatible chat-completions endpoint that augments requests with
// document retrieval and per-conversation memory before forwarding to an
// upstream LLM.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/manifold-ai/retromem/internal/config"
	"github.com/manifold-ai/retromem/internal/embedder"
	"github.com/manifold-ai/retromem/internal/entrystore"
	"github.com/manifold-ai/retromem/internal/eventbus"
	"github.com/manifold-ai/retromem/internal/forwarder"
	"github.com/manifold-ai/retromem/internal/gateway"
	"github.com/manifold-ai/retromem/internal/indexer"
	"github.com/manifold-ai/retromem/internal/llmclient"
	"github.com/manifold-ai/retromem/internal/longconvo"
	"github.com/manifold-ai/retromem/internal/observability"
	"github.com/manifold-ai/retromem/internal/ragcache"
	"github.com/manifold-ai/retromem/internal/reconciler"
	"github.com/manifold-ai/retromem/internal/retrieve"
	"github.com/manifold-ai/retromem/internal/summarize"
	"github.com/manifold-ai/retromem/internal/vectorstore"
)

// shutdownGrace bounds how long the server waits for in-flight background
// reconciliation work before a forced shutdown (spec §5).
const shutdownGrace = 2 * time.Second

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	configPath := flag.String("config", os.Getenv("RETROMEM_CONFIG"), "path to a YAML config file (optional; defaults apply otherwise)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger("retromem-gateway.log", cfg.Observability.LogLevel)

	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.Observability)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without tracing")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	var store vectorstore.Store
	switch cfg.VectorStore.Driver {
	case "postgres":
		store, err = vectorstore.NewPostgres(context.Background(), cfg.VectorStore.DSN, cfg.VectorStore.Metric)
	default:
		store, err = vectorstore.NewQdrant(cfg.VectorStore.DSN, cfg.VectorStore.Metric)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial vector store")
	}

	embed := embedder.New(cfg.Embedding)
	entries := entrystore.New(cfg.MemoryRoot)
	llm := llmclient.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey)

	docsEngine := retrieve.New(store, embed, nil, cfg.VectorStore.DocsCollection, retrieve.Config{
		MMRLambda:      cfg.Retrieval.MMRLambda,
		TagBoost:       cfg.Retrieval.TagBoost,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
	})
	memoryEngine := retrieve.New(store, embed, nil, cfg.VectorStore.MemoryCollection, retrieve.Config{
		MMRLambda:      cfg.Retrieval.MMRLambda,
		TagBoost:       cfg.Retrieval.TagBoost,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
	})

	recon := reconciler.New(store, cfg.VectorStore.MemoryCollection, embed, entries, llm, cfg.Memory)
	if cfg.Kafka.Enabled {
		events := eventbus.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		recon.SetEvents(events)
		defer func() { _ = events.Close() }()
	}
	summarizer := summarize.New(llm, summarize.Config{})

	var longConvo *longconvo.Engine
	if cfg.LongConvo.Enabled {
		longConvo = longconvo.New(cfg.MemoryRoot, llm, cfg.Memory.Model, cfg.LongConvo)
	}

	idx := indexer.New(cfg.Indexer.DocsFolder, cfg.Indexer.ChunkSize, cfg.Indexer.ChunkOverlap, store, embed)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := idx.LoadCatalog(ctx); err != nil {
		log.Error().Err(err).Msg("failed to load docs catalog, starting empty")
	}
	if err := idx.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("initial docs reconciliation failed")
	}
	if cfg.Indexer.WatchEnabled {
		if err := idx.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("failed to start docs watcher, continuing without live reindexing")
		}
	}

	var cache *ragcache.Cache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis cache ping failed, continuing without retrieval caching")
		} else {
			cache = ragcache.New(redisClient, time.Duration(cfg.Redis.TTLSecs)*time.Second)
			defer func() { _ = cache.Close() }()
		}
	}

	fwd := forwarder.New(cfg.Upstream)
	gw, err := gateway.New(cfg, fwd, docsEngine, memoryEngine, recon, longConvo, idx, summarizer, cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway server")
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: gw}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("retromem gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	idx.Close()
	gw.Shutdown(shutdownGrace)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
}
