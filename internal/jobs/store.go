package jobs

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for ids that were never created or were purged.
	ErrNotFound = errors.New("job not found")
	// ErrExists is returned when creating a record whose id is already present.
	ErrExists = errors.New("job already exists")
	// ErrTerminal is returned when updating a record that already finished.
	ErrTerminal = errors.New("job already finished")
)

// Store is the capability the supervisor and orchestrator need from a status store.
type Store interface {
	Create(rec Record) (Record, error)
	Update(id string, update Update) (Record, error)
	Get(id string) (Record, error)
	Delete(id string) error
	List() []Record
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Record
	now  func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Record), now: time.Now}
}

// Create inserts rec. CreatedAt and UpdatedAt default to now and Status to
// uploaded when unset.
func (s *MemoryStore) Create(rec Record) (Record, error) {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return Record{}, errors.New("job id is required")
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusUploaded
	}
	rec.Progress = clampProgress(rec.Progress)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[rec.ID]; exists {
		return Record{}, ErrExists
	}
	s.jobs[rec.ID] = rec
	return rec, nil
}

// Update applies a partial update and refreshes UpdatedAt.
func (s *MemoryStore) Update(id string, update Update) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Status.IsTerminal() {
		return rec, ErrTerminal
	}
	if update.Status != nil {
		rec.Status = *update.Status
	}
	if update.Progress != nil {
		rec.Progress = clampProgress(*update.Progress)
	}
	if update.Message != nil {
		rec.Message = *update.Message
	}
	if update.OutputRef != nil {
		rec.OutputRef = *update.OutputRef
	}
	rec.UpdatedAt = s.now().UTC()
	s.jobs[id] = rec
	return rec, nil
}

// Get returns a copy of the record for id.
func (s *MemoryStore) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record for id. Deleting an unknown id returns ErrNotFound.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// List returns copies of every record ordered by creation time.
func (s *MemoryStore) List() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts returns how many records are in each status.
func (s *MemoryStore) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Status]int, 5)
	for _, rec := range s.jobs {
		counts[rec.Status]++
	}
	return counts
}
