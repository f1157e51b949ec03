package entrystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store is the File Persistence Layer. One Store owns a memory_root and
// its snapshot.json; callers share a single Store per process.
type Store struct {
	root string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	snapMu sync.Mutex // serializes snapshot.json read-modify-write
}

// New returns a Store rooted at root. root/entries and root/snapshot.json
// are created lazily on first write.
func New(root string) *Store {
	return &Store{root: root, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) entriesDir() string   { return filepath.Join(s.root, "entries") }
func (s *Store) snapshotPath() string { return filepath.Join(s.root, "snapshot.json") }

func (s *Store) lockFor(conversationID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[conversationID] = l
	}
	return l
}

// Write persists a new entry with a fresh id and returns it. Path is
// computed as entries/<slug>/<role-subdir>/<timestamp>_<id>.md.
func (s *Store) Write(metadata Metadata, content string) (Entry, error) {
	lock := s.lockFor(metadata.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	id := uuid.NewString()
	return s.writeWithID(id, metadata, content)
}

// WriteWithID persists content under a caller-supplied id (used when the
// reconciler needs stable ids, e.g. rolling summaries).
func (s *Store) WriteWithID(id string, metadata Metadata, content string) (Entry, error) {
	lock := s.lockFor(metadata.ConversationID)
	lock.Lock()
	defer lock.Unlock()
	return s.writeWithID(id, metadata, content)
}

func (s *Store) writeWithID(id string, metadata Metadata, content string) (Entry, error) {
	rel := filepath.Join(
		slugify(metadata.ConversationID),
		roleSubdir(metadata.Role),
		fmt.Sprintf("%s_%s.md", metadata.CreatedAt.UTC().Format("20060102T150405.000000000Z"), id),
	)
	abs := filepath.Join(s.entriesDir(), rel)
	body, err := encodeMarkdown(metadata, content)
	if err != nil {
		return Entry{}, err
	}
	if err := atomicWrite(abs, body); err != nil {
		return Entry{}, fmt.Errorf("write entry %s: %w", rel, err)
	}

	entry := Entry{ID: id, Path: rel, Metadata: metadata, Content: content}
	if err := s.updateSnapshot(func(snap snapshotFile) {
		snap[id] = snapshotRecord{Path: rel, Metadata: metadata, Content: content}
	}); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Get looks up an entry by id via the snapshot.
func (s *Store) Get(id string) (Entry, bool, error) {
	snap, err := loadSnapshot(s.snapshotPath())
	if err != nil {
		return Entry{}, false, err
	}
	rec, ok := snap[id]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{ID: id, Path: rec.Path, Metadata: rec.Metadata, Content: rec.Content}, true, nil
}

// List returns every live entry for a conversation, optionally filtered to
// a single role.
func (s *Store) List(conversationID, role string) ([]Entry, error) {
	snap, err := loadSnapshot(s.snapshotPath())
	if err != nil {
		return nil, err
	}
	var out []Entry
	for id, rec := range snap {
		if rec.Metadata.ConversationID != conversationID {
			continue
		}
		if role != "" && rec.Metadata.Role != role {
			continue
		}
		out = append(out, Entry{ID: id, Path: rec.Path, Metadata: rec.Metadata, Content: rec.Content})
	}
	return out, nil
}

// SoftDelete moves the entry's file to the parallel deleted/ subtree,
// recording replacedBy (optional) in its frontmatter, and removes it from
// the snapshot.
func (s *Store) SoftDelete(id string, replacedBy string) error {
	snap, err := loadSnapshot(s.snapshotPath())
	if err != nil {
		return err
	}
	rec, ok := snap[id]
	if !ok {
		return nil // already gone; deleting an absent entry is not an error
	}

	lock := s.lockFor(rec.Metadata.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	src := filepath.Join(s.entriesDir(), rec.Path)
	dst := filepath.Join(s.entriesDir(), deletedDirName, rec.Path)

	metadata := rec.Metadata
	metadata.ReplacedBy = replacedBy
	body, err := encodeMarkdown(metadata, rec.Content)
	if err != nil {
		return err
	}
	if err := atomicWrite(dst, body); err != nil {
		return fmt.Errorf("tombstone write %s: %w", rec.Path, err)
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove live entry %s: %w", rec.Path, err)
	}

	return s.updateSnapshot(func(snap snapshotFile) {
		delete(snap, id)
	})
}

// updateSnapshot loads, mutates, and atomically rewrites snapshot.json
// under a package-wide lock (the snapshot is a single shared file, so
// per-conversation locking is not sufficient on its own).
func (s *Store) updateSnapshot(mutate func(snapshotFile)) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	snap, err := loadSnapshot(s.snapshotPath())
	if err != nil {
		return err
	}
	mutate(snap)
	return writeSnapshot(s.snapshotPath(), snap)
}

// RebuildSnapshot walks entries/ (excluding deleted/) and regenerates
// snapshot.json from disk. Used on startup to repair divergence after a
// crash mid-write.
func (s *Store) RebuildSnapshot() error {
	snap := snapshotFile{}
	root := s.entriesDir()
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if isUnderDeleted(rel) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		metadata, content, err := decodeMarkdown(raw)
		if err != nil {
			return nil // skip unreadable files rather than aborting the whole rebuild
		}
		id := idFromFilename(filepath.Base(path))
		if id == "" {
			return nil
		}
		snap[id] = snapshotRecord{Path: rel, Metadata: metadata, Content: content}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk entries: %w", err)
	}
	return writeSnapshot(s.snapshotPath(), snap)
}

func isUnderDeleted(rel string) bool {
	for _, p := range strings.Split(filepath.ToSlash(rel), "/") {
		if p == deletedDirName {
			return true
		}
	}
	return false
}

// idFromFilename extracts the id from a "<timestamp>_<id>.md" filename.
func idFromFilename(name string) string {
	name = name[:len(name)-len(filepath.Ext(name))]
	idx := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '_' {
			idx = i
			break
		}
	}
	if idx == -1 || idx == len(name)-1 {
		return ""
	}
	return name[idx+1:]
}
