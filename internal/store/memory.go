package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/i474232898/weather-records/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Records are copied in and out, so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: record id
	data map[uint]weather.Record

	// key: location, value: record id
	byLocation map[string]uint

	nextID uint
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:       make(map[uint]weather.Record),
		byLocation: make(map[string]uint),
		nextID:     1,
	}
}

// Get returns a copy of the record with the given id.
func (s *MemoryStore) Get(_ context.Context, id uint) (*weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, weather.ErrNotFound
	}
	return &rec, nil
}

// FindByLocation returns a copy of the record stored for location.
func (s *MemoryStore) FindByLocation(_ context.Context, location string) (*weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLocation[location]
	if !ok {
		return nil, weather.ErrNotFound
	}
	rec := s.data[id]
	return &rec, nil
}

// Locations returns the distinct stored locations in lexical order.
func (s *MemoryStore) Locations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]string, 0, len(s.byLocation))
	for loc := range s.byLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	return locations, nil
}

// List returns every record ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]weather.Record, 0, len(s.data))
	for _, rec := range s.data {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

// Create assigns the next id to rec and stores it.
func (s *MemoryStore) Create(_ context.Context, rec *weather.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocation(rec); err != nil {
		return err
	}
	s.insert(rec)
	return nil
}

// Update overwrites the stored record with the same id.
func (s *MemoryStore) Update(_ context.Context, rec *weather.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[rec.ID]; !ok {
		return weather.ErrNotFound
	}
	if err := s.checkLocation(rec); err != nil {
		return err
	}
	s.replace(rec)
	return nil
}

// Delete removes rec by id.
func (s *MemoryStore) Delete(_ context.Context, rec *weather.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.data[rec.ID]
	if !ok {
		return weather.ErrNotFound
	}
	delete(s.data, old.ID)
	delete(s.byLocation, old.Location)
	return nil
}

// SaveAll validates the whole batch before applying any of it.
func (s *MemoryStore) SaveAll(_ context.Context, recs []*weather.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if strings.TrimSpace(rec.Location) == "" {
			return errEmptyLocation
		}
		if _, dup := seen[rec.Location]; dup {
			return weather.ErrDuplicateLocation
		}
		seen[rec.Location] = struct{}{}

		if rec.ID != 0 {
			if _, ok := s.data[rec.ID]; !ok {
				return weather.ErrNotFound
			}
		}
		if err := s.checkLocation(rec); err != nil {
			return err
		}
	}

	for _, rec := range recs {
		if rec.ID == 0 {
			s.insert(rec)
		} else {
			s.replace(rec)
		}
	}
	return nil
}

// checkLocation rejects rec if its location belongs to another record.
// Callers must hold the write lock.
func (s *MemoryStore) checkLocation(rec *weather.Record) error {
	if strings.TrimSpace(rec.Location) == "" {
		return errEmptyLocation
	}
	if id, ok := s.byLocation[rec.Location]; ok && id != rec.ID {
		return weather.ErrDuplicateLocation
	}
	return nil
}

func (s *MemoryStore) insert(rec *weather.Record) {
	rec.ID = s.nextID
	s.nextID++
	s.data[rec.ID] = *rec
	s.byLocation[rec.Location] = rec.ID
}

func (s *MemoryStore) replace(rec *weather.Record) {
	if old, ok := s.data[rec.ID]; ok && old.Location != rec.Location {
		delete(s.byLocation, old.Location)
	}
	s.data[rec.ID] = *rec
	s.byLocation[rec.Location] = rec.ID
}
