package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultHTTPVersion is used when a request line carries no protocol.
const DefaultHTTPVersion = "HTTP/1.1"

// newID returns a fresh entry identifier. Overridden in tests.
var newID = uuid.NewString

// Entry is one recorded exchange: the request the proxy received and the
// response the upstream returned for it. Entries are never modified after
// they are appended to a Store.
type Entry struct {
	ID              string      `json:"id"`
	Timestamp       time.Time   `json:"timestamp"`
	Method          string      `json:"method"`
	Path            string      `json:"path"`
	Query           string      `json:"query,omitempty"`
	HTTPVersion     string      `json:"http_version"`
	RequestHeaders  http.Header `json:"request_headers"`
	RequestBody     string      `json:"request_body"`
	StatusCode      int         `json:"status_code"`
	ResponseHeaders http.Header `json:"response_headers"`
	ResponseBody    string      `json:"response_body"`
	ReplayOf        string      `json:"replay_of,omitempty"`
}

// Exchange holds the captured facets of a request/response pair before it
// becomes an Entry.
type Exchange struct {
	Method          string
	Path            string
	Query           string
	HTTPVersion     string
	RequestHeaders  http.Header
	RequestBody     []byte
	StatusCode      int
	ResponseHeaders http.Header
	ResponseBody    []byte
	ReplayOf        string
}

// NewEntry builds an Entry from ex with a fresh ID and the given timestamp.
// Headers are copied and the Host header is dropped from the request side.
func NewEntry(ex Exchange, now time.Time) Entry {
	reqHeaders := cloneHeader(ex.RequestHeaders)
	reqHeaders.Del("Host")

	version := ex.HTTPVersion
	if version == "" {
		version = DefaultHTTPVersion
	}

	return Entry{
		ID:              newID(),
		Timestamp:       now.UTC(),
		Method:          ex.Method,
		Path:            ex.Path,
		Query:           ex.Query,
		HTTPVersion:     version,
		RequestHeaders:  reqHeaders,
		RequestBody:     string(ex.RequestBody),
		StatusCode:      ex.StatusCode,
		ResponseHeaders: cloneHeader(ex.ResponseHeaders),
		ResponseBody:    string(ex.ResponseBody),
		ReplayOf:        ex.ReplayOf,
	}
}

// Validate reports whether e is a well-formed entry.
func (e Entry) Validate() error {
	var errs []error
	if e.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if e.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if e.Method == "" {
		errs = append(errs, errors.New("method is required"))
	}
	if e.StatusCode < 100 || e.StatusCode > 999 {
		errs = append(errs, fmt.Errorf("status code %d out of range", e.StatusCode))
	}
	return errors.Join(errs...)
}

// Target returns the request target: path plus query string, if any.
func (e Entry) Target() string {
	if e.Query == "" {
		return e.Path
	}
	return e.Path + "?" + e.Query
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	e.RequestHeaders = cloneHeader(e.RequestHeaders)
	e.ResponseHeaders = cloneHeader(e.ResponseHeaders)
	return e
}

// Encode serializes e to its persisted JSON form.
func Encode(e Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding entry %s: %w", e.ID, err)
	}
	return data, nil
}

// Decode parses a persisted entry and validates it.
func Decode(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decoding entry: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Entry{}, fmt.Errorf("invalid entry: %w", err)
	}
	if e.RequestHeaders == nil {
		e.RequestHeaders = http.Header{}
	}
	if e.ResponseHeaders == nil {
		e.ResponseHeaders = http.Header{}
	}
	return e, nil
}

// HTTPMessage renders the exchange as a raw HTTP request followed by the
// raw HTTP response.
func (e Entry) HTTPMessage() string {
	version := e.HTTPVersion
	if version == "" {
		version = DefaultHTTPVersion
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", e.Method, e.Target(), version)
	writeHeaders(&b, e.RequestHeaders)
	b.WriteString("\n")
	if e.RequestBody != "" {
		b.WriteString(e.RequestBody)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "%s %d %s\n", version, e.StatusCode, http.StatusText(e.StatusCode))
	writeHeaders(&b, e.ResponseHeaders)
	b.WriteString("\n")
	if e.ResponseBody != "" {
		b.WriteString(e.ResponseBody)
		b.WriteString("\n")
	}
	return b.String()
}

func writeHeaders(b *strings.Builder, h http.Header) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			fmt.Fprintf(b, "%s: %s\n", k, v)
		}
	}
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}
