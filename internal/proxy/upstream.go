package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/metrics"
)

// ErrUpstream is returned when the upstream could not be reached or its
// response could not be read.
var ErrUpstream = errors.New("upstream request failed")

// Request is an inbound request as it will be sent upstream.
type Request struct {
	Method string
	// Path is the escaped request path, starting with "/".
	Path   string
	Query  string
	Proto  string
	Header http.Header
	Body   []byte
}

// Response is an upstream reply, body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Upstream issues requests against the configured base URL. It never
// retries, follows redirects, or decompresses bodies, so responses pass
// through as the upstream sent them.
type Upstream struct {
	base   *url.URL
	client *http.Client
	clock  clock.Clock
}

// NewUpstream validates baseURL and builds an Upstream for it.
// A zero timeout means upstream calls are not bounded.
func NewUpstream(baseURL string, timeout time.Duration, clk clock.Clock) (*Upstream, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true

	return &Upstream{
		base: base,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		clock: clk,
	}, nil
}

// ParseBaseURL checks that raw is an absolute http(s) URL without a query
// or fragment.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream url %q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("upstream url %q must not have a query or fragment", raw)
	}
	return u, nil
}

// BaseURL returns the upstream base URL.
func (u *Upstream) BaseURL() string {
	return u.base.String()
}

// URL joins the base URL with path and appends query verbatim.
func (u *Upstream) URL(path, query string) string {
	target := strings.TrimSuffix(u.base.String(), "/")
	if !strings.HasPrefix(path, "/") {
		target += "/"
	}
	target += path
	if query != "" {
		target += "?" + query
	}
	return target
}

// Do sends req upstream and reads the full response. The Host header is
// not forwarded; every other header is sent unchanged.
func (u *Upstream) Do(ctx context.Context, req Request, kind string) (*Response, error) {
	out, err := http.NewRequestWithContext(ctx, req.Method, u.URL(req.Path, req.Query), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Header.Del("Host")

	start := u.clock.Now()
	resp, err := u.client.Do(out)
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues(kind).Inc()
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues(kind).Inc()
		return nil, fmt.Errorf("%w: reading body: %w", ErrUpstream, err)
	}
	metrics.UpstreamDuration.WithLabelValues(kind).Observe(u.clock.Since(start).Seconds())

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
