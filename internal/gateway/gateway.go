// Package gateway is the Proxy Gateway: the single HTTP surface that
// orchestrates retrieval augmentation, upstream forwarding, and background
// memory post-processing for one OpenAI-compatible chat-completions
// endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/manifold-ai/retromem/internal/config"
	"github.com/manifold-ai/retromem/internal/forwarder"
	"github.com/manifold-ai/retromem/internal/indexer"
	"github.com/manifold-ai/retromem/internal/longconvo"
	"github.com/manifold-ai/retromem/internal/proxyerrors"
	"github.com/manifold-ai/retromem/internal/ragcache"
	"github.com/manifold-ai/retromem/internal/reconciler"
	"github.com/manifold-ai/retromem/internal/retrieve"
	"github.com/manifold-ai/retromem/internal/summarize"
)

var errIndexerUnavailable = errors.New("indexer not configured")

// Server wires the chat-completions endpoint to its collaborators and
// serves the admin surface (/health, /reindex, /files) alongside it.
type Server struct {
	mux *http.ServeMux

	cfg        config.Config
	forward    *forwarder.Forwarder
	docs       *retrieve.Engine
	memory     *retrieve.Engine
	recon      *reconciler.Reconciler
	longConvo  *longconvo.Engine   // nil when long-conversation mode is disabled
	idx        *indexer.Indexer
	summarizer *summarize.Summarizer // nil disables context-block compaction
	cache      *ragcache.Cache       // nil disables retrieval result caching
	auth       *authenticator        // nil disables inbound bearer-token enforcement

	tasks *backgroundTasks
}

// New builds a Server. longConvo, summarizer, and cache may all be nil
// (long-conversation mode disabled, context-block compaction disabled,
// retrieval caching disabled, respectively); every other dependency is
// required. Returns an error only if cfg.Auth names an unsupported mode or
// an OIDC provider can't be discovered at startup.
func New(cfg config.Config, fwd *forwarder.Forwarder, docs, memory *retrieve.Engine, recon *reconciler.Reconciler, longConvo *longconvo.Engine, idx *indexer.Indexer, summarizer *summarize.Summarizer, cache *ragcache.Cache) (*Server, error) {
	auth, err := newAuthenticator(context.Background(), cfg.Auth)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg,
		forward:    fwd,
		docs:       docs,
		memory:     memory,
		recon:      recon,
		longConvo:  longConvo,
		idx:        idx,
		summarizer: summarizer,
		cache:      cache,
		auth:       auth,
		tasks:      newBackgroundTasks(),
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s, nil
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// registerRoutes wires every route except /health behind auth.middleware.
// /health is left open so orchestrators' liveness probes don't need a token.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/chat/completions", s.auth.middleware(s.handleChatCompletions))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /reindex", s.auth.middleware(s.handleReindex))
	s.mux.HandleFunc("GET /files", s.auth.middleware(s.handleFiles))
}

// Shutdown awaits in-flight background post-write tasks up to timeout, per
// spec §5's bounded-shutdown concurrency model.
func (s *Server) Shutdown(timeout time.Duration) {
	s.tasks.Shutdown(timeout)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": map[string]any{"message": err.Error()}})
}

// statusFromError maps a typed error (spec §7) to the HTTP status a
// synchronous caller should see. Upstream failures surface their original
// status verbatim; everything else that reaches a handler uncaught is an
// internal invariant breach.
func statusFromError(err error) int {
	var upstreamErr *proxyerrors.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Status
	}
	var summErr *proxyerrors.SummarizationError
	if errors.As(err, &summErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
