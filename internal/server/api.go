package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/cursor"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/replay"
)

// HistoryPage is the body of GET /__history. Next and Previous are null
// when there is no such page.
type HistoryPage struct {
	History  []history.Entry `json:"history"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Limit    int             `json:"limit"`
}

// ReplayRequest is the body of POST /__replay. ID wins when both are set.
type ReplayRequest struct {
	ID    string      `json:"id,omitempty"`
	Index json.Number `json:"index,omitempty"`
}

const maxReplayBody = 1 << 20

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	limit := cursor.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	unique := false
	if raw := q.Get("unique"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unique must be a boolean")
			return
		}
		unique = b
	}

	entries, page, err := cursor.Paginate(cursor.Query{
		Limit:  limit,
		Before: q.Get("before"),
		After:  q.Get("after"),
	}, s.store.Window)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if unique {
		entries = history.Unique(entries)
	}

	writeJSON(w, http.StatusOK, HistoryPage{
		History:  entries,
		Next:     optional(page.Next),
		Previous: optional(page.Previous),
		Limit:    page.Limit,
	})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}
	var req ReplayRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	// Like forwarding, a replay that reached the upstream is recorded even
	// if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	var res replay.Result
	switch {
	case req.ID != "":
		res, err = s.replayer.Replay(ctx, req.ID)
	case req.Index != "":
		i, convErr := strconv.Atoi(req.Index.String())
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "index must be an integer")
			return
		}
		res, err = s.replayer.ReplayAt(ctx, i)
	default:
		writeError(w, http.StatusBadRequest, "id or index is required")
		return
	}
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeProxyError(w, err.Error(), replay.Traceback(err, debug.Stack()))
		return
	}

	switch res.Outcome {
	case replay.UpstreamResponded:
		setEntryID(r.Context(), res.Entry.ID)
		status := res.Entry.StatusCode
		if !bodyAllowed(status) {
			status = http.StatusOK
		}
		w.Header().Set(ReplayOfHeader, res.Source.ID)
		w.Header().Set(UpstreamStatusHeader, strconv.Itoa(res.Entry.StatusCode))
		writeJSON(w, status, res.Entry)
	default:
		msg := "replay failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		writeProxyError(w, msg, res.Trace)
	}
}

// bodyAllowed reports whether a response with the given status may carry
// the replayed entry.
func bodyAllowed(status int) bool {
	switch {
	case status < http.StatusOK:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
