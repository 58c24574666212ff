package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/metrics"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/proxy"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/replay"
)

// Response headers that tag where a failure came from.
const (
	ErrorHeader    = "X-Tapedeck-Error"
	ReplayOfHeader = "X-Tapedeck-Replay-Of"

	// UpstreamStatusHeader carries the upstream's status on replay
	// responses, which may differ from the response status itself.
	UpstreamStatusHeader = "X-Tapedeck-Upstream-Status"

	OriginProxy    = "proxy"
	OriginUpstream = "upstream"
)

// ReservedPrefix marks paths served by the proxy itself instead of being
// forwarded upstream.
const ReservedPrefix = "/__"

// Options holds the optional collaborators of a Server.
type Options struct {
	// Hub receives every recorded entry. Nil disables /__ws.
	Hub    *Hub
	Logger zerolog.Logger
	Clock  clock.Clock
}

// Server is the Tapedeck HTTP server: a recording proxy plus its
// history and replay API.
type Server struct {
	httpServer *http.Server
	store      *history.Store
	forwarder  *proxy.Forwarder
	replayer   *replay.Engine
	hub        *Hub
	clock      clock.Clock
	log        zerolog.Logger
	mux        *http.ServeMux
}

// New creates a new Tapedeck server.
func New(addr string, store *history.Store, fwd *proxy.Forwarder, eng *replay.Engine, opts Options) *Server {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	s := &Server{
		store:     store,
		forwarder: fwd,
		replayer:  eng,
		hub:       opts.Hub,
		clock:     clk,
		log:       opts.Logger,
		mux:       http.NewServeMux(),
	}
	s.routes()

	metrics.HistoryEntries.Set(float64(store.Len()))
	store.OnAppend(func(e history.Entry) {
		metrics.HistoryEntries.Set(float64(store.Len()))
		if s.hub != nil {
			s.hub.Broadcast(e)
		}
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/__health", s.handleHealth)
	s.mux.HandleFunc("/__history", s.handleHistory)
	s.mux.HandleFunc("/__replay", s.handleReplay)
	s.mux.Handle("/__metrics", promhttp.Handler())
	s.mux.HandleFunc("/__dashboard/", s.handleDashboard)
	if s.hub != nil {
		s.mux.HandleFunc("/__ws", s.hub.HandleWebSocket)
	}
	s.mux.HandleFunc("/", s.handleProxy)
}

// Handler returns the root handler with middleware applied. Paths outside
// the reserved prefix skip the mux so they reach the upstream exactly as
// sent, without path cleaning or redirects.
func (s *Server) Handler() http.Handler {
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, ReservedPrefix) {
			s.mux.ServeHTTP(w, r)
			return
		}
		s.handleProxy(w, r)
	})
	return AccessLog(Recover(root, s.log), s.log, s.clock)
}

// handleHealth reports liveness and the number of recorded exchanges.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"entries": s.store.Len(),
		"time":    s.clock.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(DashboardHTML))
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("tapedeck listening")
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects live-feed
// subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

type errorBody struct {
	Error     string `json:"error"`
	Traceback string `json:"traceback,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeProxyError reports a failure of the proxy itself, tagged so callers
// can tell it apart from an upstream error status.
func writeProxyError(w http.ResponseWriter, msg, trace string) {
	w.Header().Set(ErrorHeader, OriginProxy)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: msg, Traceback: trace})
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}
