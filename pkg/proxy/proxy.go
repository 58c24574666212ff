package proxy

import (
	"time"

	"github.com/rs/zerolog"

	internalproxy "github.com/SmitUplenchwar2687/Tapedeck/internal/proxy"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/history"
)

// Upstream sends requests to the configured base URL.
type Upstream = internalproxy.Upstream

// Forwarder relays requests upstream and records each exchange.
type Forwarder = internalproxy.Forwarder

// Request is an inbound request as it will be sent upstream.
type Request = internalproxy.Request

// Response is an upstream reply with its body fully read.
type Response = internalproxy.Response

// ErrUpstream wraps failures to reach the upstream.
var ErrUpstream = internalproxy.ErrUpstream

// NewUpstream validates baseURL and builds an Upstream for it.
// A zero timeout leaves upstream calls unbounded.
func NewUpstream(baseURL string, timeout time.Duration, clk clock.Clock) (*Upstream, error) {
	return internalproxy.NewUpstream(baseURL, timeout, clk)
}

// NewForwarder creates a Forwarder recording into store.
func NewForwarder(up *Upstream, store *history.Store, clk clock.Clock, log zerolog.Logger) *Forwarder {
	return internalproxy.NewForwarder(up, store, clk, log)
}
