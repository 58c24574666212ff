package history

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// FileLog persists entries as newline-delimited JSON, one entry per line.
// Each Append is written and synced before it returns.
type FileLog struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewFileLog creates a FileLog writing to path. The file is created on the
// first Append.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Path returns the file the log writes to.
func (l *FileLog) Path() string {
	return l.path
}

// Load reads all entries from the file. A missing file is an empty log.
// A corrupt file is renamed to <path>.corrupt-<unix> so later appends start
// a fresh log, and the decode error is returned.
func (l *FileLog) Load(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening history file: %w", err)
	}

	entries, err := readEntries(ctx, f)
	f.Close()
	if err != nil {
		aside := l.path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		if rerr := os.Rename(l.path, aside); rerr != nil {
			return nil, errors.Join(err, fmt.Errorf("moving corrupt history file: %w", rerr))
		}
		return nil, fmt.Errorf("%w (moved to %s)", err, aside)
	}
	return entries, nil
}

func readEntries(ctx context.Context, r io.Reader) ([]Entry, error) {
	var entries []Entry
	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			e, derr := Decode(line)
			if derr != nil {
				return nil, fmt.Errorf("history file line %d: %w", lineNo, derr)
			}
			entries = append(entries, e)
		}
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading history file: %w", err)
		}
	}
}

// Append writes e as a single line and syncs the file.
func (l *FileLog) Append(_ context.Context, e Entry) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return fmt.Errorf("creating history directory: %w", err)
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening history file: %w", err)
		}
		l.f = f
	}

	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("writing history file: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing history file: %w", err)
	}
	return nil
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
