package history

import (
	"context"
	"sync"
)

// Log is the durable, append-only storage behind a Store.
// Load is only called once, when the Store is opened.
type Log interface {
	// Load returns every persisted entry in append order.
	Load(ctx context.Context) ([]Entry, error)
	// Append durably records e. It must not return before e is saved.
	Append(ctx context.Context, e Entry) error
	// Close releases any resources held by the log.
	Close() error
}

// Backend names accepted by configuration.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// MemoryLog keeps entries in process memory only. Nothing survives a restart.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLog creates a MemoryLog pre-populated with entries.
func NewMemoryLog(entries ...Entry) *MemoryLog {
	l := &MemoryLog{}
	for _, e := range entries {
		l.entries = append(l.entries, e.Clone())
	}
	return l
}

func (l *MemoryLog) Load(context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

func (l *MemoryLog) Append(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e.Clone())
	return nil
}

// Len returns the number of appended entries.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLog) Close() error { return nil }
