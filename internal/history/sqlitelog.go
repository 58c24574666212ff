package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLog persists entries in a single append-only sqlite table.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens (or creates) the database at dbPath.
func NewSQLiteLog(dbPath string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes ordered.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteLog{db: db}, nil
}

const createHistoryTable = `
	CREATE TABLE IF NOT EXISTS history (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		recorded_at TEXT NOT NULL,
		data        TEXT NOT NULL
	);
`

func createTables(db *sql.DB) error {
	if _, err := db.Exec(createHistoryTable); err != nil {
		return fmt.Errorf("creating history table: %w", err)
	}
	return nil
}

// Load reads every row in insertion order. A table holding an undecodable
// row is renamed to history_corrupt_<unix>, a fresh history table takes its
// place and the decode error is returned.
func (l *SQLiteLog) Load(ctx context.Context) ([]Entry, error) {
	entries, err := l.readAll(ctx)
	if !errors.Is(err, errCorruptRow) {
		return entries, err
	}

	aside := "history_corrupt_" + strconv.FormatInt(time.Now().Unix(), 10)
	if rerr := l.quarantine(ctx, aside); rerr != nil {
		return nil, errors.Join(err, fmt.Errorf("moving corrupt history table: %w", rerr))
	}
	return nil, fmt.Errorf("%w (moved to table %s)", err, aside)
}

var errCorruptRow = errors.New("corrupt history row")

func (l *SQLiteLog) readAll(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT seq, data FROM history ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			seq  int64
			data string
		)
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e, err := Decode([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", errCorruptRow, seq, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// quarantine renames the history table to aside and recreates an empty one
// in the same transaction.
func (l *SQLiteLog) quarantine(ctx context.Context, aside string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `ALTER TABLE history RENAME TO `+aside); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, createHistoryTable); err != nil {
		return err
	}
	return tx.Commit()
}

func (l *SQLiteLog) Append(ctx context.Context, e Entry) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO history (id, recorded_at, data) VALUES (?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return fmt.Errorf("inserting history: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
