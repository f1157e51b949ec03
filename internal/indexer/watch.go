package indexer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch starts the filesystem watcher. Events are debounced per path via an
// in-flight set and a settle delay, matching spec §4.E's runtime behavior.
// Watch returns once the watcher is set up; events are handled on a
// background goroutine until ctx is cancelled or Close is called.
func (idx *Indexer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	idx.watcher = watcher

	if err := filepath.Walk(idx.docsFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		watcher.Close()
		return err
	}

	idx.wg.Add(1)
	go idx.watchLoop(ctx)
	return nil
}

func (idx *Indexer) watchLoop(ctx context.Context) {
	defer idx.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-idx.done:
			return
		case ev, ok := <-idx.watcher.Events:
			if !ok {
				return
			}
			idx.handleEvent(ctx, ev)
		case err, ok := <-idx.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("indexer: watcher error")
		}
	}
}

func (idx *Indexer) handleEvent(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if isHidden(name) {
		return
	}

	if ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename {
		rel, err := filepath.Rel(idx.docsFolder, ev.Name)
		if err != nil {
			rel = name
		}
		go func() {
			if err := idx.removeFile(ctx, rel); err != nil {
				log.Error().Err(err).Str("path", rel).Msg("indexer: failed to remove deleted file")
			}
		}()
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	idx.inFlightMu.Lock()
	if idx.inFlight[ev.Name] {
		idx.inFlightMu.Unlock()
		return
	}
	idx.inFlight[ev.Name] = true
	idx.inFlightMu.Unlock()

	idx.wg.Add(1)
	go idx.debouncedIndex(ctx, ev.Name)
}

func (idx *Indexer) debouncedIndex(ctx context.Context, path string) {
	defer idx.wg.Done()
	defer func() {
		idx.inFlightMu.Lock()
		delete(idx.inFlight, path)
		idx.inFlightMu.Unlock()
	}()

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return
	}

	if _, err := os.Stat(path); err != nil {
		return // removed or moved away before the settle delay elapsed
	}

	if err := idx.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer idx.sem.Release(1)

	rel, err := filepath.Rel(idx.docsFolder, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	if err := idx.indexFile(ctx, path, rel); err != nil {
		log.Error().Err(err).Str("path", rel).Msg("indexer: failed to index changed file")
	}
}

// Close stops the watcher and waits for in-flight indexing to finish.
func (idx *Indexer) Close() error {
	close(idx.done)
	if idx.watcher != nil {
		idx.watcher.Close()
	}
	idx.wg.Wait()
	return nil
}
