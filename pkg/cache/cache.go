// Package cache provides the known-mapping table consulted before any
// network call, and an optional JSON file cache that persists resolved
// mappings between runs.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btraven00/tinkuy/pkg/xref"
)

// KnownMappings are accession cross-references observed and verified by
// hand. They are consulted before the file cache and before any API call,
// and a live lookup never overrides them.
var KnownMappings = map[string]xref.Mapping{
	"ERP127673": {
		Accession:    "ERP127673",
		BioProjectID: "PRJEB43688",
		GEOID:        "E-MTAB-10220",
		Source:       "known",
	},
	"SRP324458": {
		Accession:    "SRP324458",
		BioProjectID: "PRJNA738600",
		GEOID:        "GSE178360",
		Source:       "known",
	},
}

// Known returns the static mapping for an accession, if one exists.
func Known(accession string) (*xref.Mapping, bool) {
	if m, ok := KnownMappings[accession]; ok {
		copied := m
		return &copied, true
	}

	return nil, false
}

// Store is a concurrency-safe accession→mapping cache, optionally backed
// by a JSON file. Entries are write-once: a stored mapping is never
// replaced by a later lookup.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*xref.Mapping
	path     string
	modified bool
}

// NewStore creates an empty in-memory store. When path is non-empty the
// store persists to that file via Load and Save.
func NewStore(path string) *Store {
	return &Store{
		entries: make(map[string]*xref.Mapping),
		path:    path,
	}
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Get returns the cached mapping for an accession, if present.
func (s *Store) Get(accession string) (*xref.Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.entries[accession]
	if !ok {
		return nil, false
	}

	copied := *m

	return &copied, true
}

// Put stores a mapping for an accession. The first stored value wins;
// subsequent puts for the same accession are ignored so cached results
// are never contradicted within a run.
func (s *Store) Put(m *xref.Mapping) {
	if m == nil || m.Accession == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[m.Accession]; exists {
		return
	}

	copied := *m
	s.entries[m.Accession] = &copied
	s.modified = true
}

// Load reads cached entries from the backing file, merging them with any
// entries already in memory. A missing file is not an error.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read cache file %s: %w", s.path, err)
	}

	var entries map[string]*xref.Mapping
	if err := json.Unmarshal(content, &entries); err != nil {
		return fmt.Errorf("failed to parse cache file %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for accession, m := range entries {
		if _, exists := s.entries[accession]; !exists && m != nil {
			m.Accession = accession
			s.entries[accession] = m
		}
	}

	return nil
}

// Save writes the cached entries to the backing file. It is a no-op when
// the store has no backing file or nothing changed since the last save.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()

	if !s.modified {
		s.mu.RUnlock()
		return nil
	}

	content, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.modified = false
	s.mu.Unlock()

	return nil
}
