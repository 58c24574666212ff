package history

import (
	"fmt"
	"net/http"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func makeEntry(i int) Entry {
	return Entry{
		ID:              fmt.Sprintf("entry-%03d", i),
		Timestamp:       epoch.Add(time.Duration(i) * time.Second),
		Method:          http.MethodGet,
		Path:            fmt.Sprintf("/items/%d", i),
		HTTPVersion:     DefaultHTTPVersion,
		RequestHeaders:  http.Header{"Accept": {"application/json"}},
		StatusCode:      http.StatusOK,
		ResponseHeaders: http.Header{"Content-Type": {"application/json"}},
		ResponseBody:    `{"ok":true}`,
	}
}

func makeEntries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = makeEntry(i)
	}
	return out
}
