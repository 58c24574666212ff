// Package client is a Go client for a running Tapedeck proxy's history and
// replay API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/server"
)

// Entry is one recorded exchange.
type Entry = history.Entry

// Client talks to a Tapedeck proxy.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client for the proxy at baseURL, e.g. "http://localhost:5000".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Query selects a page of history. Before wins over After.
type Query struct {
	Limit  int
	After  string
	Before string
	Unique bool
}

// Page is one page of history. Next and Previous are empty at the ends.
type Page struct {
	History  []Entry
	Next     string
	Previous string
	Limit    int
}

// ReplayResult is a replay the upstream answered, whatever its status.
type ReplayResult struct {
	// StatusCode is the upstream's status for the replayed request.
	StatusCode int
	Entry      Entry
	ReplayOf   string
}

// APIError is a non-success answer from the proxy.
type APIError struct {
	StatusCode int
	Message    string
	Traceback  string
	// Origin is "proxy" or "upstream" when the proxy tagged the failure.
	Origin string
}

func (e *APIError) Error() string {
	if e.Origin != "" {
		return fmt.Sprintf("tapedeck: %s error (%d): %s", e.Origin, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tapedeck: %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is the proxy saying an entry does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound && apiErr.Origin == ""
}

// IsProxyError reports whether err is a failure inside the proxy itself.
func IsProxyError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Origin == server.OriginProxy
}

// History fetches one page of recorded exchanges.
func (c *Client) History(ctx context.Context, q Query) (*Page, error) {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.After != "" {
		v.Set("after", q.After)
	}
	if q.Before != "" {
		v.Set("before", q.Before)
	}
	if q.Unique {
		v.Set("unique", "true")
	}
	u := c.BaseURL + "/__history"
	if len(v) > 0 {
		u += "?" + v.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var wire server.HistoryPage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding history page: %w", err)
	}

	page := &Page{History: wire.History, Limit: wire.Limit}
	if wire.Next != nil {
		page.Next = *wire.Next
	}
	if wire.Previous != nil {
		page.Previous = *wire.Previous
	}
	return page, nil
}

// Walk calls fn for every page from the start of the history, following
// next cursors until the last page or until fn returns an error.
func (c *Client) Walk(ctx context.Context, q Query, fn func(*Page) error) error {
	q.Before = ""
	for {
		page, err := c.History(ctx, q)
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
		if page.Next == "" {
			return nil
		}
		q.After = page.Next
	}
}

// All returns every recorded exchange, oldest first. With unique set,
// duplicates are dropped per page as the proxy does.
func (c *Client) All(ctx context.Context, unique bool) ([]Entry, error) {
	var all []Entry
	err := c.Walk(ctx, Query{Limit: 100, Unique: unique}, func(p *Page) error {
		all = append(all, p.History...)
		return nil
	})
	return all, err
}

// Last returns the most recently recorded exchange.
func (c *Client) Last(ctx context.Context) (Entry, error) {
	var last *Entry
	err := c.Walk(ctx, Query{Limit: 100}, func(p *Page) error {
		if n := len(p.History); n > 0 {
			last = &p.History[n-1]
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if last == nil {
		return Entry{}, &APIError{StatusCode: http.StatusNotFound, Message: "history is empty"}
	}
	return *last, nil
}

// Replay re-issues the recorded request with the given id.
func (c *Client) Replay(ctx context.Context, id string) (*ReplayResult, error) {
	return c.replay(ctx, server.ReplayRequest{ID: id})
}

// ReplayIndex re-issues the recorded request at zero-based position i.
func (c *Client) ReplayIndex(ctx context.Context, i int) (*ReplayResult, error) {
	return c.replay(ctx, server.ReplayRequest{Index: json.Number(strconv.Itoa(i))})
}

func (c *Client) replay(ctx context.Context, body server.ReplayRequest) (*ReplayResult, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/__replay", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replaying: %w", err)
	}
	defer resp.Body.Close()

	// Only a recorded replay carries the source header; the status is the
	// upstream's and may be anything.
	source := resp.Header.Get(server.ReplayOfHeader)
	if source == "" {
		return nil, decodeError(resp)
	}

	res := &ReplayResult{StatusCode: resp.StatusCode, ReplayOf: source}
	// The response status is 200 when the upstream's could not carry a body.
	if raw := resp.Header.Get(server.UpstreamStatusHeader); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", server.UpstreamStatusHeader, raw)
		}
		res.StatusCode = code
	}
	if err := json.NewDecoder(resp.Body).Decode(&res.Entry); err != nil {
		return nil, fmt.Errorf("decoding replayed entry: %w", err)
	}
	return res, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Origin:     resp.Header.Get(server.ErrorHeader),
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body struct {
		Error     string `json:"error"`
		Traceback string `json:"traceback"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Traceback = body.Traceback
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
