package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/proxy"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/replay"
)

var proxyMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// handleProxy forwards the request upstream and relays the recorded
// response byte for byte.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, proxyMethods...) {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	req := proxy.Request{
		Method: r.Method,
		Path:   r.URL.EscapedPath(),
		Query:  r.URL.RawQuery,
		Proto:  r.Proto,
		Header: r.Header.Clone(),
		Body:   body,
	}

	// A client hanging up must not abort an exchange that may already have
	// reached the upstream.
	resp, entry, err := s.forwarder.Forward(context.WithoutCancel(r.Context()), req)
	switch {
	case errors.Is(err, proxy.ErrUpstream):
		w.Header().Set(ErrorHeader, OriginUpstream)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	case errors.Is(err, history.ErrPersist):
		writeProxyError(w, err.Error(), replay.Traceback(err, nil))
		return
	case err != nil:
		writeProxyError(w, err.Error(), replay.Traceback(err, debug.Stack()))
		return
	}

	setEntryID(r.Context(), entry.ID)

	h := w.Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
