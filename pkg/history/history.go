// Package history exposes the recorded-exchange store and its durable logs.
package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	internalhistory "github.com/SmitUplenchwar2687/Tapedeck/internal/history"
)

// Entry is one recorded request/response exchange.
type Entry = internalhistory.Entry

// Exchange is the raw material of a new Entry.
type Exchange = internalhistory.Exchange

// Store is the ordered, append-only history.
type Store = internalhistory.Store

// Log is a durable backing for a Store.
type Log = internalhistory.Log

// Log implementations.
type (
	FileLog     = internalhistory.FileLog
	SQLiteLog   = internalhistory.SQLiteLog
	RedisLog    = internalhistory.RedisLog
	RedisConfig = internalhistory.RedisConfig
	MemoryLog   = internalhistory.MemoryLog
)

var (
	ErrNotFound = internalhistory.ErrNotFound
	ErrPersist  = internalhistory.ErrPersist
)

// NewEntry builds an Entry with a fresh ID, stamped at now.
func NewEntry(ex Exchange, now time.Time) Entry {
	return internalhistory.NewEntry(ex, now)
}

// Open creates a Store backed by l and loads its existing contents.
func Open(ctx context.Context, l Log, logger zerolog.Logger) *Store {
	return internalhistory.Open(ctx, l, logger)
}

// NewFileLog creates a newline-delimited JSON log at path.
func NewFileLog(path string) *FileLog {
	return internalhistory.NewFileLog(path)
}

// NewSQLiteLog opens or creates a sqlite history database.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	return internalhistory.NewSQLiteLog(path)
}

// NewRedisLog connects to redis and uses a list as the history log.
func NewRedisLog(ctx context.Context, cfg *RedisConfig) (*RedisLog, error) {
	return internalhistory.NewRedisLog(ctx, cfg)
}

// NewMemoryLog creates a volatile log seeded with entries.
func NewMemoryLog(entries ...Entry) *MemoryLog {
	return internalhistory.NewMemoryLog(entries...)
}

// Unique drops entries identical to an earlier one, keeping first
// occurrences in order.
func Unique(entries []Entry) []Entry {
	return internalhistory.Unique(entries)
}
