package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/replay"
)

type requestInfoKey struct{}

// requestInfo is filled in by handlers for the access log.
type requestInfo struct {
	entryID string
}

func setEntryID(ctx context.Context, id string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.entryID = id
	}
}

// statusRecorder captures the status code and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += n
	return n, err
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// Hijack lets the websocket upgrader take over the connection.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// AccessLog logs one line per request with its outcome and, when an
// exchange was recorded, the id of the new history entry.
func AccessLog(next http.Handler, log zerolog.Logger, clk clock.Clock) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clk.Now()
		info := &requestInfo{}
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev = ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", rec.bytes).
			Dur("duration", clk.Since(start))
		if info.entryID != "" {
			ev = ev.Str("entry", info.entryID)
		}
		if origin := rec.Header().Get(ErrorHeader); origin != "" {
			ev = ev.Str("error_origin", origin)
		}
		ev.Msg("request")
	})
}

// Recover turns a panic in next into a proxy error response instead of
// dropping the connection.
func Recover(next http.Handler, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err := fmt.Errorf("panic: %v", v)
			stack := debug.Stack()
			log.Error().Err(err).Str("path", r.URL.Path).Bytes("stack", stack).Msg("handler panicked")
			writeProxyError(w, err.Error(), replay.Traceback(err, stack))
		}()
		next.ServeHTTP(w, r)
	})
}
