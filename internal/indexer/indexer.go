// Package indexer implements the watched-folder ingestion pipeline: startup
// catalog reconciliation plus a runtime filesystem watcher that chunks,
// hashes, and upserts documents into the vector store.
package indexer

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprinting, not security-sensitive
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/manifold-ai/retromem/internal/chunker"
	"github.com/manifold-ai/retromem/internal/embedder"
	"github.com/manifold-ai/retromem/internal/proxyerrors"
	"github.com/manifold-ai/retromem/internal/vectorstore"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	docsCollection = "docs"
	settleDelay    = 500 * time.Millisecond
	maxWorkers     = 4
)

// CatalogEntry is the derived, aggregated state of one indexed document
// (spec §3 "Document Catalog Entry").
type CatalogEntry struct {
	RelativePath string
	FileHash     string
	ChunkCount   int
	IndexedAt    time.Time
}

// Indexer owns the docs_folder watch and the document half of the vector
// store.
type Indexer struct {
	docsFolder string
	chunkSize  int
	overlap    int

	store vectorstore.Store
	embed embedder.Embedder

	mu      sync.Mutex
	catalog map[string]CatalogEntry // relative path -> entry

	inFlightMu sync.Mutex
	inFlight   map[string]bool

	sem *semaphore.Weighted

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// New constructs an Indexer. Call LoadCatalog then Reconcile before
// Watch.
func New(docsFolder string, chunkSize, overlap int, store vectorstore.Store, embed embedder.Embedder) *Indexer {
	return &Indexer{
		docsFolder: docsFolder,
		chunkSize:  chunkSize,
		overlap:    overlap,
		store:      store,
		embed:      embed,
		catalog:    make(map[string]CatalogEntry),
		inFlight:   make(map[string]bool),
		sem:        semaphore.NewWeighted(maxWorkers),
		done:       make(chan struct{}),
	}
}

// LoadCatalog rebuilds the in-memory catalog from the vector store's
// existing chunk metadata (spec §4.E startup step 1).
func (idx *Indexer) LoadCatalog(ctx context.Context) error {
	records, err := idx.store.Get(ctx, docsCollection, nil)
	if err != nil {
		return &proxyerrors.StoreError{Op: "load catalog", Err: err}
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range records {
		path, _ := r.Metadata["file_path"].(string)
		hash, _ := r.Metadata["file_hash"].(string)
		if path == "" {
			continue
		}
		entry := idx.catalog[path]
		entry.RelativePath = path
		entry.FileHash = hash
		entry.ChunkCount++
		idx.catalog[path] = entry
	}
	return nil
}

// Reconcile walks docsFolder, indexing new/changed files and deleting
// catalog entries whose file no longer exists on disk (spec §4.E startup
// steps 2-3).
func (idx *Indexer) Reconcile(ctx context.Context) error {
	foundOnDisk := make(map[string]bool)

	err := filepath.Walk(idx.docsFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || isHidden(info.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(idx.docsFolder, path)
		if relErr != nil {
			rel = info.Name()
		}
		foundOnDisk[rel] = true
		if indexErr := idx.indexFile(ctx, path, rel); indexErr != nil {
			log.Error().Err(indexErr).Str("path", rel).Msg("reconcile: failed to index file")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk docs folder: %w", err)
	}

	idx.mu.Lock()
	var stale []string
	for rel := range idx.catalog {
		if !foundOnDisk[rel] {
			stale = append(stale, rel)
		}
	}
	idx.mu.Unlock()

	for _, rel := range stale {
		if err := idx.removeFile(ctx, rel); err != nil {
			log.Error().Err(err).Str("path", rel).Msg("reconcile: failed to remove stale catalog entry")
		}
	}
	return nil
}

// indexFile chunks and upserts a single file if it is new or its content
// hash has changed. Existing chunks are deleted first.
func (idx *Indexer) indexFile(ctx context.Context, absPath, relPath string) error {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return &proxyerrors.IngestionError{Path: relPath, Err: err}
	}
	currentHash := hashBytes(raw)

	idx.mu.Lock()
	existing, known := idx.catalog[relPath]
	idx.mu.Unlock()
	if known && existing.FileHash == currentHash {
		return nil
	}

	if known {
		if err := idx.removeFile(ctx, relPath); err != nil {
			return err
		}
	}

	var text string
	if htmlExtensions[strings.ToLower(filepath.Ext(relPath))] {
		converted, convErr := convertHTMLToText(relPath, raw)
		if convErr != nil {
			return &proxyerrors.IngestionError{Path: relPath, Err: convErr}
		}
		text = converted
	} else {
		text = strings.TrimSpace(string(raw))
	}
	if text == "" {
		return nil
	}
	chunks := chunker.Chunk(text, chunker.Config{ChunkSize: idx.chunkSize, Overlap: idx.overlap})
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := idx.embed.EmbedBatch(ctx, chunks)
	if err != nil {
		return &proxyerrors.IngestionError{Path: relPath, Err: err}
	}

	now := time.Now().UTC()
	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:     fmt.Sprintf("%s:chunk:%d", relPath, i),
			Vector: vectors[i],
			Metadata: map[string]any{
				"source":       filepath.Base(relPath),
				"file_path":    relPath,
				"file_type":    filepath.Ext(relPath),
				"chunk_id":     i,
				"total_chunks": len(chunks),
				"indexed_at":   now.Format(time.RFC3339),
				"file_hash":    currentHash,
				"content":      c,
			},
		}
	}
	if err := idx.store.Upsert(ctx, docsCollection, records); err != nil {
		return &proxyerrors.StoreError{Op: "index " + relPath, Err: err}
	}

	idx.mu.Lock()
	idx.catalog[relPath] = CatalogEntry{RelativePath: relPath, FileHash: currentHash, ChunkCount: len(chunks), IndexedAt: now}
	idx.mu.Unlock()

	log.Info().Str("path", relPath).Int("chunks", len(chunks)).Msg("indexed document")
	return nil
}

// removeFile deletes every chunk belonging to relPath.
func (idx *Indexer) removeFile(ctx context.Context, relPath string) error {
	idx.mu.Lock()
	entry, ok := idx.catalog[relPath]
	idx.mu.Unlock()
	if !ok {
		return nil
	}

	ids := make([]string, entry.ChunkCount)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s:chunk:%d", relPath, i)
	}
	if err := idx.store.Delete(ctx, docsCollection, ids); err != nil {
		return &proxyerrors.StoreError{Op: "remove " + relPath, Err: err}
	}

	idx.mu.Lock()
	delete(idx.catalog, relPath)
	idx.mu.Unlock()
	return nil
}

// Catalog returns a snapshot of the current document catalog.
func (idx *Indexer) Catalog() []CatalogEntry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]CatalogEntry, 0, len(idx.catalog))
	for _, e := range idx.catalog {
		out = append(out, e)
	}
	return out
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}

func hashBytes(b []byte) string {
	sum := md5.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
