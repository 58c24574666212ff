package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type failingLog struct {
	MemoryLog
	loadErr   error
	appendErr error
}

func (l *failingLog) Load(ctx context.Context) ([]Entry, error) {
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return l.MemoryLog.Load(ctx)
}

func (l *failingLog) Append(ctx context.Context, e Entry) error {
	if l.appendErr != nil {
		return l.appendErr
	}
	return l.MemoryLog.Append(ctx, e)
}

func newTestStore(t *testing.T, entries ...Entry) *Store {
	t.Helper()
	return Open(context.Background(), NewMemoryLog(entries...), zerolog.Nop())
}

func TestStore_AppendOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	want := makeEntries(25)
	for _, e := range want {
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got := s.List(0, len(want))
	if len(got) != len(want) {
		t.Fatalf("List() returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("List()[%d].ID = %q, want %q", i, got[i].ID, want[i].ID)
		}
	}
}

func TestStore_AppendPersistsFirst(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog()
	s := Open(ctx, l, zerolog.Nop())

	if err := s.Append(ctx, makeEntry(1)); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 1 {
		t.Errorf("log has %d entries, want 1", l.Len())
	}
}

func TestStore_AppendPersistFailure(t *testing.T) {
	ctx := context.Background()
	l := &failingLog{appendErr: errors.New("disk full")}
	s := Open(ctx, l, zerolog.Nop())

	err := s.Append(ctx, makeEntry(1))
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("Append() error = %v, want ErrPersist", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed append", s.Len())
	}
	if _, err := s.Get(makeEntry(1).ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_AppendRejectsInvalidAndDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Append(ctx, Entry{}); err == nil {
		t.Error("invalid entry should be rejected")
	}
	if err := s.Append(ctx, makeEntry(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, makeEntry(1)); err == nil {
		t.Error("reused id should be rejected")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t, makeEntries(15)...)

	tests := []struct {
		offset, limit int
		wantLen       int
		wantFirst     string
	}{
		{0, 10, 10, "entry-000"},
		{10, 10, 5, "entry-010"},
		{14, 10, 1, "entry-014"},
		{15, 10, 0, ""},
		{100, 10, 0, ""},
		{5, 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("offset=%d,limit=%d", tt.offset, tt.limit), func(t *testing.T) {
			got := s.List(tt.offset, tt.limit)
			if got == nil {
				t.Fatal("List() should return an empty slice, not nil")
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0].ID != tt.wantFirst {
				t.Errorf("first = %q, want %q", got[0].ID, tt.wantFirst)
			}
		})
	}
}

func TestStore_GetAndAt(t *testing.T) {
	s := newTestStore(t, makeEntries(3)...)

	e, err := s.Get("entry-002")
	if err != nil {
		t.Fatal(err)
	}
	if e.Path != "/items/2" {
		t.Errorf("Path = %q, want /items/2", e.Path)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	e, err = s.At(1)
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != "entry-001" {
		t.Errorf("At(1).ID = %q, want entry-001", e.ID)
	}
	for _, i := range []int{-1, 3} {
		if _, err := s.At(i); !errors.Is(err, ErrNotFound) {
			t.Errorf("At(%d) error = %v, want ErrNotFound", i, err)
		}
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := newTestStore(t, makeEntries(1)...)

	got := s.List(0, 1)
	got[0].RequestHeaders.Set("Accept", "mutated")
	got[0].Path = "/mutated"

	e, _ := s.At(0)
	if e.Path != "/items/0" || e.RequestHeaders.Get("Accept") != "application/json" {
		t.Error("List() should return copies, stored entry was mutated")
	}
}

func TestStore_LoadFailureStartsEmpty(t *testing.T) {
	l := &failingLog{loadErr: errors.New("corrupt")}
	s := Open(context.Background(), l, zerolog.Nop())

	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if err := s.Append(context.Background(), makeEntry(1)); err != nil {
		t.Errorf("Append() after failed load = %v", err)
	}
}

func TestStore_LoadSkipsDuplicateIDs(t *testing.T) {
	s := newTestStore(t, makeEntry(1), makeEntry(1), makeEntry(2))
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStore_OnAppend(t *testing.T) {
	s := newTestStore(t)

	var got []string
	s.OnAppend(func(e Entry) { got = append(got, e.ID) })

	s.Append(context.Background(), makeEntry(1))
	s.Append(context.Background(), makeEntry(2))

	if len(got) != 2 || got[0] != "entry-001" || got[1] != "entry-002" {
		t.Errorf("hook saw %v", got)
	}
}

func TestStore_OnAppendNotCalledOnFailure(t *testing.T) {
	s := Open(context.Background(), &failingLog{appendErr: errors.New("boom")}, zerolog.Nop())

	called := false
	s.OnAppend(func(Entry) { called = true })
	s.Append(context.Background(), makeEntry(1))

	if called {
		t.Error("hook should not run when the append fails")
	}
}

func TestStore_ConcurrentAppendAndRead(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog()
	s := Open(ctx, l, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := s.Append(ctx, makeEntry(i)); err != nil {
				t.Error(err)
			}
		}(i)
		go func() {
			defer wg.Done()
			for _, e := range s.List(0, s.Len()) {
				if err := e.Validate(); err != nil {
					t.Errorf("torn entry observed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if s.Len() != 100 {
		t.Errorf("Len() = %d, want 100", s.Len())
	}
	if l.Len() != 100 {
		t.Errorf("log Len() = %d, want 100", l.Len())
	}

	loaded, _ := l.Load(ctx)
	stored := s.List(0, 100)
	for i := range loaded {
		if loaded[i].ID != stored[i].ID {
			t.Fatalf("log order differs from store order at %d", i)
		}
	}
}
