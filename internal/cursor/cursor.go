// Package cursor implements the opaque pagination tokens used to walk the
// recorded history.
//
// A token is the URL-safe base64 encoding of a decimal, zero-based position
// in the history. Both directions are exclusive: "after" resumes at the
// position following the token, "before" ends at the token's position.
package cursor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
)

// DefaultLimit is the page size used when none is requested.
const DefaultLimit = 10

// MaxOffset bounds decoded positions so offset arithmetic cannot overflow.
const MaxOffset = 1 << 40

// ErrInvalidCursor is returned for tokens that do not decode to a
// non-negative position.
var ErrInvalidCursor = errors.New("invalid cursor")

// Encode returns the token for position offset.
func Encode(offset int) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// Decode returns the position encoded in token.
func Decode(token string) (int, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(token)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not base64", ErrInvalidCursor, token)
	}

	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil || n > MaxOffset {
		return 0, fmt.Errorf("%w: %q does not encode a position", ErrInvalidCursor, token)
	}
	return int(n), nil
}

// Query is a page request. Before and After are tokens; when both are set
// Before takes precedence.
type Query struct {
	Limit  int
	Before string
	After  string
}

// Page describes the window selected by a Query over a history of a given
// length. Next and Previous are empty when there is no such page.
type Page struct {
	Offset   int
	Limit    int
	Next     string
	Previous string
}

// Resolve returns the offset and page size selected by q.
func Resolve(q Query) (offset, limit int, err error) {
	limit = q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	switch {
	case q.Before != "":
		pos, err := Decode(q.Before)
		if err != nil {
			return 0, 0, fmt.Errorf("before: %w", err)
		}
		offset = max(pos-limit, 0)
	case q.After != "":
		pos, err := Decode(q.After)
		if err != nil {
			return 0, 0, fmt.Errorf("after: %w", err)
		}
		offset = pos + 1
	}
	return offset, limit, nil
}

// Links returns the next and previous tokens for the page at offset over a
// history holding length entries. Either is empty when there is no such page.
func Links(offset, limit, length int) (next, previous string) {
	if end := offset + limit; end < length {
		// Points at the last entry of this page; "after" excludes it.
		next = Encode(end - 1)
	}
	if offset > 0 && offset < length {
		previous = Encode(offset)
	}
	return next, previous
}

// Window returns up to limit items starting at offset together with the
// total length, both read from one snapshot.
type Window[T any] func(offset, limit int) ([]T, int)

// Paginate resolves q, reads the selected page through window and links it
// to its neighbours using the length seen by that same read.
func Paginate[T any](q Query, window Window[T]) ([]T, Page, error) {
	offset, limit, err := Resolve(q)
	if err != nil {
		return nil, Page{}, err
	}
	items, length := window(offset, limit)
	next, previous := Links(offset, limit, length)
	return items, Page{Offset: offset, Limit: limit, Next: next, Previous: previous}, nil
}
