package history

import "encoding/json"

// Signature identifies an exchange by content. Two entries with equal
// signatures are duplicates regardless of ID or timestamp.
type Signature struct {
	Method          string
	Path            string
	StatusCode      int
	RequestHeaders  string
	RequestBody     string
	ResponseHeaders string
	ResponseBody    string
}

// SignatureOf derives the signature of e. Header sets are canonicalized
// with sorted keys, so header order never affects equality.
func SignatureOf(e Entry) Signature {
	return Signature{
		Method:          e.Method,
		Path:            e.Path,
		StatusCode:      e.StatusCode,
		RequestHeaders:  canonicalHeaders(e.RequestHeaders),
		RequestBody:     e.RequestBody,
		ResponseHeaders: canonicalHeaders(e.ResponseHeaders),
		ResponseBody:    e.ResponseBody,
	}
}

// Unique keeps the first occurrence of each signature in entries and drops
// later duplicates, preserving relative order. The input is not modified.
func Unique(entries []Entry) []Entry {
	seen := make(map[Signature]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		sig := SignatureOf(e)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, e)
	}
	return out
}

// canonicalHeaders relies on encoding/json writing map keys in sorted order.
func canonicalHeaders(h map[string][]string) string {
	if len(h) == 0 {
		return "{}"
	}
	data, err := json.Marshal(h)
	if err != nil {
		// map[string][]string always marshals
		panic(err)
	}
	return string(data)
}
