package replay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/metrics"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/proxy"
)

// Outcome tells where a replay ended up.
type Outcome int

const (
	// UpstreamResponded means the upstream answered, with any status code.
	// The answer was recorded as a new entry.
	UpstreamResponded Outcome = iota + 1
	// ProxyError means the proxy itself failed while replaying.
	ProxyError
)

func (o Outcome) String() string {
	switch o {
	case UpstreamResponded:
		return "upstream_responded"
	case ProxyError:
		return "proxy_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of replaying one recorded exchange.
type Result struct {
	Outcome Outcome
	// Source is the entry that was replayed.
	Source history.Entry
	// Entry is the newly recorded exchange. Set for UpstreamResponded.
	Entry history.Entry
	// Err and Trace describe a ProxyError.
	Err   error
	Trace string
}

// Engine re-issues recorded requests against the current upstream.
type Engine struct {
	upstream *proxy.Upstream
	store    *history.Store
	clock    clock.Clock
	log      zerolog.Logger
}

// New creates a replay Engine. It shares the upstream with the Forwarder so
// replays always target the currently configured upstream.
func New(up *proxy.Upstream, store *history.Store, clk clock.Clock, log zerolog.Logger) *Engine {
	return &Engine{
		upstream: up,
		store:    store,
		clock:    clk,
		log:      log,
	}
}

// Replay replays the entry with the given ID. It returns history.ErrNotFound,
// without contacting the upstream, if no such entry exists. Every other
// failure is reported in the Result as a ProxyError.
func (e *Engine) Replay(ctx context.Context, id string) (Result, error) {
	src, err := e.store.Get(id)
	if err != nil {
		metrics.ReplaysTotal.WithLabelValues("not_found").Inc()
		return Result{}, err
	}
	return e.run(ctx, src), nil
}

// ReplayAt replays the entry at the zero-based history position i.
func (e *Engine) ReplayAt(ctx context.Context, i int) (Result, error) {
	src, err := e.store.At(i)
	if err != nil {
		metrics.ReplaysTotal.WithLabelValues("not_found").Inc()
		return Result{}, err
	}
	return e.run(ctx, src), nil
}

func (e *Engine) run(ctx context.Context, src history.Entry) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = e.proxyError(src, fmt.Errorf("panic: %v", r), debug.Stack())
		}
		metrics.ReplaysTotal.WithLabelValues(res.Outcome.String()).Inc()
	}()

	resp, err := e.upstream.Do(ctx, proxy.Request{
		Method: src.Method,
		Path:   src.Path,
		Query:  src.Query,
		Proto:  src.HTTPVersion,
		Header: src.RequestHeaders,
		Body:   []byte(src.RequestBody),
	}, metrics.KindReplay)
	if err != nil {
		return e.proxyError(src, err, debug.Stack())
	}

	entry := history.NewEntry(history.Exchange{
		Method:          src.Method,
		Path:            src.Path,
		Query:           src.Query,
		HTTPVersion:     src.HTTPVersion,
		RequestHeaders:  src.RequestHeaders,
		RequestBody:     []byte(src.RequestBody),
		StatusCode:      resp.StatusCode,
		ResponseHeaders: resp.Header,
		ResponseBody:    resp.Body,
		ReplayOf:        src.ID,
	}, e.clock.Now())

	if err := e.store.Append(ctx, entry); err != nil {
		return e.proxyError(src, err, debug.Stack())
	}

	e.log.Info().
		Str("source", src.ID).
		Str("id", entry.ID).
		Int("status", entry.StatusCode).
		Msg("replay recorded")
	return Result{Outcome: UpstreamResponded, Source: src, Entry: entry}
}

func (e *Engine) proxyError(src history.Entry, err error, stack []byte) Result {
	e.log.Error().Err(err).Str("source", src.ID).Msg("replay failed")
	return Result{
		Outcome: ProxyError,
		Source:  src,
		Err:     err,
		Trace:   Traceback(err, stack),
	}
}

// Traceback renders err's wrap chain followed by the goroutine stack.
func Traceback(err error, stack []byte) string {
	var b strings.Builder
	for depth := 0; err != nil; depth++ {
		if depth > 0 {
			b.WriteString("caused by: ")
		}
		b.WriteString(err.Error())
		b.WriteString("\n")
		err = unwrapOne(err)
	}
	if len(stack) > 0 {
		b.WriteString("\n")
		b.Write(stack)
	}
	return b.String()
}

func unwrapOne(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := multi.Unwrap(); len(errs) > 0 {
			return errs[len(errs)-1]
		}
	}
	return nil
}
