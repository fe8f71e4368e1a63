package httpapi

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iyesgames/iyesmesh/pkg/ima"
)

// Store tracks the container files found under a root directory.
// IDs are stable across rescans for files that stay in place.
type Store struct {
	root string

	mu      sync.RWMutex
	byID    map[string]FileEntry
	byName  map[string]string // name -> id
	idPaths map[string]string // name -> id from previous scans
}

func NewStore(root string) *Store {
	return &Store{
		root:    root,
		byID:    make(map[string]FileEntry),
		byName:  make(map[string]string),
		idPaths: make(map[string]string),
	}
}

// Scan walks the root directory and registers every container file.
// Non-container files are skipped silently.
func (s *Store) Scan() error {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("httpapi: scan %s: %w", s.root, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]FileEntry)
	byName := make(map[string]string)
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		info, err := de.Info()
		if err != nil {
			continue
		}
		if !s.isContainer(filepath.Join(s.root, name)) {
			continue
		}
		id, ok := s.idPaths[name]
		if !ok {
			id = uuid.NewString()
			s.idPaths[name] = id
		}
		byID[id] = FileEntry{ID: id, Name: name, Size: info.Size()}
		byName[name] = id
	}
	s.byID = byID
	s.byName = byName
	return nil
}

func (s *Store) isContainer(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	ok, err := ima.IsContainerFile(f)
	return err == nil && ok
}

// List returns all known entries sorted by name.
func (s *Store) List() []FileEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]FileEntry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Get looks up an entry by ID, falling back to the file name.
func (s *Store) Get(key string) (FileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.byID[key]; ok {
		return e, true
	}
	if id, ok := s.byName[key]; ok {
		return s.byID[id], true
	}
	return FileEntry{}, false
}

// Path returns the filesystem path for an entry.
func (s *Store) Path(e FileEntry) string {
	return filepath.Join(s.root, e.Name)
}
