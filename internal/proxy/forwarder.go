package proxy

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/metrics"
)

// Forwarder relays requests to the upstream and records each completed
// exchange in the history before handing the response back.
type Forwarder struct {
	upstream *Upstream
	store    *history.Store
	clock    clock.Clock
	log      zerolog.Logger
}

// NewForwarder creates a Forwarder.
func NewForwarder(up *Upstream, store *history.Store, clk clock.Clock, log zerolog.Logger) *Forwarder {
	return &Forwarder{
		upstream: up,
		store:    store,
		clock:    clk,
		log:      log,
	}
}

// Forward sends req upstream, appends the exchange to the history, and
// returns the upstream response unmodified together with the new entry.
//
// Transport failures wrap ErrUpstream and record nothing. A failed append
// wraps history.ErrPersist; the response is then withheld.
func (f *Forwarder) Forward(ctx context.Context, req Request) (*Response, history.Entry, error) {
	resp, err := f.upstream.Do(ctx, req, metrics.KindForward)
	if err != nil {
		f.log.Warn().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("upstream call failed")
		return nil, history.Entry{}, err
	}

	entry := history.NewEntry(history.Exchange{
		Method:          req.Method,
		Path:            req.Path,
		Query:           req.Query,
		HTTPVersion:     req.Proto,
		RequestHeaders:  req.Header,
		RequestBody:     req.Body,
		StatusCode:      resp.StatusCode,
		ResponseHeaders: resp.Header,
		ResponseBody:    resp.Body,
	}, f.clock.Now())

	if err := f.store.Append(ctx, entry); err != nil {
		f.log.Error().Err(err).Str("id", entry.ID).Msg("recording exchange failed")
		return nil, history.Entry{}, err
	}

	metrics.ForwardedTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	f.log.Debug().
		Str("id", entry.ID).
		Str("method", entry.Method).
		Str("path", entry.Path).
		Int("status", entry.StatusCode).
		Msg("exchange recorded")
	return resp, entry, nil
}
