package document

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/bassista/go_coalesce/internal/repository"
)

// ErrSectionNotFound is returned when a section id does not exist.
var ErrSectionNotFound = errors.New("section not found")

// Store keeps an in-memory copy of the document being edited. Every mutation
// returns a deep-copied snapshot of the new document, which the owning
// controller feeds to the autosave scheduler.
type Store struct {
	mu         sync.RWMutex
	data       repository.Document
	lastUpdate int64 // cache's metadata.lastUpdate
}

// NewStore creates a store seeded with doc.
func NewStore(doc repository.Document) *Store {
	return &Store{data: doc, lastUpdate: doc.Metadata.LastUpdate}
}

// GetLastUpdate returns the cache's last update timestamp.
func (s *Store) GetLastUpdate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// SetLastUpdate sets the cache's last update timestamp.
func (s *Store) SetLastUpdate(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = ts
}

// Snapshot returns a deep copy of the cached document.
func (s *Store) Snapshot() (repository.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDocument(s.data)
}

// Replace swaps the cached document, e.g. after a reload from disk.
func (s *Store) Replace(doc repository.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned, err := cloneDocument(doc)
	if err != nil {
		return err
	}
	s.data = cloned
	s.lastUpdate = doc.Metadata.LastUpdate
	return nil
}

// ReplaceContent swaps everything except metadata, returning the new snapshot.
// Used by full-document updates from the API.
func (s *Store) ReplaceContent(doc repository.Document) (repository.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned, err := cloneDocument(doc)
	if err != nil {
		return repository.Document{}, err
	}
	cloned.Metadata = s.data.Metadata
	s.data = cloned

	return cloneDocument(s.data)
}

// UpsertSection inserts or updates a section by id, maintaining order, and
// returns the new snapshot.
func (s *Store) UpsertSection(section repository.Section) (repository.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned, err := cloneSection(section)
	if err != nil {
		return repository.Document{}, err
	}

	inOrder := false
	for _, id := range s.data.Order {
		if id == cloned.ID {
			inOrder = true
			break
		}
	}

	replaced := false
	for i := range s.data.Sections {
		if s.data.Sections[i].ID == cloned.ID {
			s.data.Sections[i] = cloned
			replaced = true
			break
		}
	}

	if !replaced {
		s.data.Sections = append(s.data.Sections, cloned)
	}

	if !inOrder {
		s.data.Order = append(s.data.Order, cloned.ID)
	}

	return cloneDocument(s.data)
}

// RemoveSection deletes a section by id and returns the new snapshot.
func (s *Store) RemoveSection(id string) (repository.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.data.Sections {
		if s.data.Sections[i].ID == id {
			s.data.Sections = append(s.data.Sections[:i], s.data.Sections[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return repository.Document{}, ErrSectionNotFound
	}

	for i, orderedID := range s.data.Order {
		if orderedID == id {
			s.data.Order = append(s.data.Order[:i], s.data.Order[i+1:]...)
			break
		}
	}

	return cloneDocument(s.data)
}

// cloneDocument deep-copies the document to avoid shared slices between cache
// and callers.
func cloneDocument(doc repository.Document) (repository.Document, error) {
	bytes, err := json.Marshal(doc)
	if err != nil {
		return repository.Document{}, err
	}
	var copy repository.Document
	if err := json.Unmarshal(bytes, &copy); err != nil {
		return repository.Document{}, err
	}
	return copy, nil
}

// cloneSection deep-copies a section to avoid shared pointer fields.
func cloneSection(sec repository.Section) (repository.Section, error) {
	bytes, err := json.Marshal(sec)
	if err != nil {
		return repository.Section{}, err
	}
	var copy repository.Section
	if err := json.Unmarshal(bytes, &copy); err != nil {
		return repository.Section{}, err
	}
	return copy, nil
}
