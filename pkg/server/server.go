package server

import (
	"github.com/rs/zerolog"

	internalserver "github.com/SmitUplenchwar2687/Tapedeck/internal/server"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/history"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/proxy"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/replay"
)

// Server is the Tapedeck recording proxy and its history API.
type Server = internalserver.Server

// Options configures optional server features.
type Options = internalserver.Options

// Hub broadcasts recorded entries to WebSocket clients.
type Hub = internalserver.Hub

// Wire types of the history and replay endpoints.
type (
	HistoryPage   = internalserver.HistoryPage
	ReplayRequest = internalserver.ReplayRequest
	Event         = internalserver.Event
)

// Response headers tagging where a failure came from.
const (
	ErrorHeader    = internalserver.ErrorHeader
	ReplayOfHeader = internalserver.ReplayOfHeader
	OriginProxy    = internalserver.OriginProxy
	OriginUpstream = internalserver.OriginUpstream
)

// DashboardHTML is the embedded live history page.
const DashboardHTML = internalserver.DashboardHTML

// New creates a new Tapedeck server.
func New(addr string, store *history.Store, fwd *proxy.Forwarder, eng *replay.Engine, opts Options) *Server {
	return internalserver.New(addr, store, fwd, eng, opts)
}

// NewHub creates a new WebSocket hub.
func NewHub(log zerolog.Logger) *Hub {
	return internalserver.NewHub(log)
}
