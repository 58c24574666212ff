package replay

import (
	"github.com/rs/zerolog"

	internalreplay "github.com/SmitUplenchwar2687/Tapedeck/internal/replay"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/history"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/proxy"
)

// Engine re-issues recorded requests against the current upstream.
type Engine = internalreplay.Engine

// Result is the outcome of one replay.
type Result = internalreplay.Result

// Outcome tells an upstream answer apart from a proxy failure.
type Outcome = internalreplay.Outcome

const (
	UpstreamResponded = internalreplay.UpstreamResponded
	ProxyError        = internalreplay.ProxyError
)

// New creates a replay Engine sharing up with the forwarder.
func New(up *proxy.Upstream, store *history.Store, clk clock.Clock, log zerolog.Logger) *Engine {
	return internalreplay.New(up, store, clk, log)
}
