package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when no entry matches an ID or position.
	ErrNotFound = errors.New("not found")
	// ErrPersist is returned when an entry could not be durably appended.
	ErrPersist = errors.New("history: persist failed")
)

// Store is the ordered, append-only collection of recorded exchanges.
// Insertion order is chronological order. Every Append is written to the
// backing Log before it becomes visible to readers.
//
// Appends are serialized; reads may run concurrently and always observe
// whole entries.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
	hooks   []func(Entry)

	log    Log
	logger zerolog.Logger
}

// Open creates a Store backed by l and loads its existing contents.
// A load failure is logged and the store starts empty.
func Open(ctx context.Context, l Log, logger zerolog.Logger) *Store {
	s := &Store{
		index:  make(map[string]int),
		log:    l,
		logger: logger,
	}

	entries, err := l.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("history could not be loaded, starting empty")
		return s
	}

	for _, e := range entries {
		if _, dup := s.index[e.ID]; dup {
			logger.Warn().Str("id", e.ID).Msg("skipping duplicate history entry")
			continue
		}
		s.index[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	logger.Info().Int("entries", len(s.entries)).Msg("history loaded")
	return s
}

// OnAppend registers fn to be called with every entry after it has been
// durably appended. Hooks run on the appending goroutine, outside the lock.
func (s *Store) OnAppend(fn func(Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Append adds e to the end of the history. The entry is persisted first;
// if persisting fails the entry is not added and the error wraps ErrPersist.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}
	e = e.Clone()

	s.mu.Lock()
	if _, dup := s.index[e.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("appending entry: id %s already recorded", e.ID)
	}
	if err := s.log.Append(ctx, e); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.index[e.ID] = len(s.entries)
	s.entries = append(s.entries, e)
	hooks := s.hooks
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(e.Clone())
	}
	return nil
}

// List returns the entries in [offset, offset+limit), clamped to the
// available range. It returns an empty slice when offset is past the end.
func (s *Store) List(offset, limit int) []Entry {
	entries, _ := s.Window(offset, limit)
	return entries
}

// Window is List plus the history length, both taken from the same snapshot.
func (s *Store) Window(offset, limit int) ([]Entry, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= len(s.entries) {
		return []Entry{}, len(s.entries)
	}
	end := offset + limit
	if end > len(s.entries) || end < offset {
		end = len(s.entries)
	}

	out := make([]Entry, 0, end-offset)
	for _, e := range s.entries[offset:end] {
		out = append(out, e.Clone())
	}
	return out, len(s.entries)
}

// Get returns the entry with the given ID.
func (s *Store) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return s.entries[i].Clone(), nil
}

// At returns the entry at the zero-based position i.
func (s *Store) At(i int) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.entries) {
		return Entry{}, ErrNotFound
	}
	return s.entries[i].Clone(), nil
}

// Len returns the number of recorded entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close releases the backing log.
func (s *Store) Close() error {
	return s.log.Close()
}
