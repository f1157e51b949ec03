package gateway

import (
	"net/http"
	"time"
)

// handleHealth reports basic liveness plus the configured data paths, per
// spec §6.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"docs_folder": s.cfg.Indexer.DocsFolder,
		"memory_root": s.cfg.MemoryRoot,
	})
}

// handleReindex forces a full docs-folder reconciliation pass and reports
// the resulting catalog size.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.idx == nil {
		respondError(w, http.StatusServiceUnavailable, errIndexerUnavailable)
		return
	}
	if err := s.idx.Reconcile(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	total := 0
	for _, entry := range s.idx.Catalog() {
		total += entry.ChunkCount
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"total_chunks": total,
	})
}

// handleFiles lists every file tracked in the docs catalog.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if s.idx == nil {
		respondError(w, http.StatusServiceUnavailable, errIndexerUnavailable)
		return
	}

	entries := s.idx.Catalog()
	files := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		files = append(files, map[string]any{
			"path":       e.RelativePath,
			"chunks":     e.ChunkCount,
			"indexed_at": e.IndexedAt.Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": len(files),
	})
}
