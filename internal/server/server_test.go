package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/proxy"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/replay"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	baseURL  string
	store    *history.Store
	hub      *Hub
	upstream *httptest.Server
	hits     *atomic.Int32
}

func startTestServer(t *testing.T, h http.HandlerFunc, l history.Log) *testEnv {
	t.Helper()

	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(upstream.Close)

	vc := clock.NewVirtualClock(epoch)
	up, err := proxy.NewUpstream(upstream.URL, 5*time.Second, vc)
	if err != nil {
		t.Fatal(err)
	}
	store := history.Open(context.Background(), l, zerolog.Nop())
	hub := NewHub(zerolog.Nop())
	srv := New("", store,
		proxy.NewForwarder(up, store, vc, zerolog.Nop()),
		replay.New(up, store, vc, zerolog.Nop()),
		Options{Hub: hub, Logger: zerolog.Nop(), Clock: vc},
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.StartOnListener(ln)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testEnv{
		baseURL:  "http://" + ln.Addr().String(),
		store:    store,
		hub:      hub,
		upstream: upstream,
		hits:     &hits,
	}
}

func okJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Date", "Mon, 01 Jan 2024 00:00:00 GMT")
	w.Write([]byte(`{"ok":true}`))
}

func seeded(n int) *history.MemoryLog {
	entries := make([]history.Entry, n)
	for i := range entries {
		entries[i] = history.Entry{
			ID:              fmt.Sprintf("entry-%03d", i),
			Timestamp:       epoch.Add(time.Duration(i) * time.Second),
			Method:          http.MethodGet,
			Path:            fmt.Sprintf("/items/%d", i),
			HTTPVersion:     "HTTP/1.1",
			RequestHeaders:  http.Header{},
			StatusCode:      http.StatusOK,
			ResponseHeaders: http.Header{},
			ResponseBody:    `{"ok":true}`,
		}
	}
	return history.NewMemoryLog(entries...)
}

func getPage(t *testing.T, url string) HistoryPage {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status = %d, body = %s", url, resp.StatusCode, b)
	}
	var page HistoryPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	return page
}

func postReplay(t *testing.T, baseURL, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(baseURL+"/__replay", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, b
}

func TestServer_ForwardRecordsExchange(t *testing.T) {
	env := startTestServer(t, okJSON, history.NewMemoryLog())

	resp, err := http.Get(env.baseURL + "/items?x=1")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q, want upstream body", body)
	}
	if resp.Header.Get(ErrorHeader) != "" {
		t.Errorf("unexpected %s header on a passthrough response", ErrorHeader)
	}

	if env.store.Len() != 1 {
		t.Fatalf("history length = %d, want 1", env.store.Len())
	}
	e, _ := env.store.At(0)
	if e.Method != "GET" || e.Path != "/items" || e.Query != "x=1" || e.StatusCode != 200 {
		t.Errorf("entry = %s %s?%s -> %d, want GET /items?x=1 -> 200", e.Method, e.Path, e.Query, e.StatusCode)
	}
	if e.ResponseBody != `{"ok":true}` {
		t.Errorf("recorded body = %q", e.ResponseBody)
	}
}

func TestServer_ForwardPreservesPathAndBody(t *testing.T) {
	var gotURI string
	var gotBody []byte
	env := startTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}, history.NewMemoryLog())

	req, _ := http.NewRequest(http.MethodPut, env.baseURL+"/a//b/%2F?k=v&k=w", bytes.NewReader([]byte("payload")))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if gotURI != "/a//b/%2F?k=v&k=w" {
		t.Errorf("upstream saw %q", gotURI)
	}
	if string(gotBody) != "payload" {
		t.Errorf("upstream body = %q", gotBody)
	}
}

func TestServer_ForwardMethodNotAllowed(t *testing.T) {
	env := startTestServer(t, okJSON, history.NewMemoryLog())

	req, _ := http.NewRequest(http.MethodOptions, env.baseURL+"/items", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	if env.hits.Load() != 0 || env.store.Len() != 0 {
		t.Error("a rejected method must not reach the upstream")
	}
}

func TestServer_ForwardUpstreamDown(t *testing.T) {
	env := startTestServer(t, okJSON, history.NewMemoryLog())
	env.upstream.Close()

	resp, err := http.Get(env.baseURL + "/items")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if got := resp.Header.Get(ErrorHeader); got != OriginUpstream {
		t.Errorf("%s = %q, want %q", ErrorHeader, got, OriginUpstream)
	}
	if env.store.Len() != 0 {
		t.Errorf("history length = %d, want 0", env.store.Len())
	}
}

type brokenLog struct{ *history.MemoryLog }

func (brokenLog) Append(context.Context, history.Entry) error { return errors.New("disk full") }

func TestServer_ForwardPersistFailure(t *testing.T) {
	env := startTestServer(t, okJSON, brokenLog{history.NewMemoryLog()})

	resp, err := http.Get(env.baseURL + "/items")
	if err != nil {
		t.Fatal(err)
	}
	var body errorBody
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if got := resp.Header.Get(ErrorHeader); got != OriginProxy {
		t.Errorf("%s = %q, want %q", ErrorHeader, got, OriginProxy)
	}
	if !strings.Contains(body.Error, "disk full") {
		t.Errorf("error = %q, want the persist failure", body.Error)
	}
	if env.store.Len() != 0 {
		t.Errorf("history length = %d, want 0", env.store.Len())
	}
}

func TestServer_HistoryPagination(t *testing.T) {
	env := startTestServer(t, okJSON, seeded(15))

	first := getPage(t, env.baseURL+"/__history?limit=10")
	if len(first.History) != 10 {
		t.Fatalf("first page len = %d, want 10", len(first.History))
	}
	if first.Next == nil {
		t.Fatal("first page should have next")
	}
	if first.Previous != nil {
		t.Errorf("first page previous = %q, want null", *first.Previous)
	}
	if first.Limit != 10 {
		t.Errorf("limit = %d, want 10", first.Limit)
	}

	second := getPage(t, env.baseURL+"/__history?limit=10&after="+*first.Next)
	if len(second.History) != 5 {
		t.Fatalf("second page len = %d, want 5", len(second.History))
	}
	if second.Next != nil {
		t.Errorf("second page next = %q, want null", *second.Next)
	}
	if second.Previous == nil {
		t.Error("second page should have previous")
	}
	if second.History[0].ID != "entry-010" {
		t.Errorf("second page starts at %s, want entry-010", second.History[0].ID)
	}

	back := getPage(t, env.baseURL+"/__history?limit=10&before="+*second.Previous)
	if len(back.History) != 10 || back.History[0].ID != "entry-000" {
		t.Errorf("before previous returned %d entries starting at %s", len(back.History), back.History[0].ID)
	}
}

func TestServer_HistoryNullLinks(t *testing.T) {
	env := startTestServer(t, okJSON, history.NewMemoryLog())

	resp, err := http.Get(env.baseURL + "/__history")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&raw)
	if string(raw["history"]) != "[]" {
		t.Errorf("history = %s, want []", raw["history"])
	}
	if string(raw["next"]) != "null" || string(raw["previous"]) != "null" {
		t.Errorf("next/previous = %s/%s, want null/null", raw["next"], raw["previous"])
	}
	if string(raw["limit"]) != "10" {
		t.Errorf("limit = %s, want 10", raw["limit"])
	}
}

func TestServer_HistoryBadInput(t *testing.T) {
	env := startTestServer(t, okJSON, seeded(3))

	for _, q := range []string{
		"after=!!!",
		"before=bm9wZQ==",
		"limit=abc",
		"limit=0",
		"limit=-5",
		"unique=maybe",
	} {
		resp, err := http.Get(env.baseURL + "/__history?" + q)
		if err != nil {
			t.Fatal(err)
		}
		var body errorBody
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
		if body.Error == "" {
			t.Errorf("%s: empty error message", q)
		}
	}
}

func TestServer_HistoryUnique(t *testing.T) {
	env := startTestServer(t, okJSON, history.NewMemoryLog())

	for i := 0; i < 2; i++ {
		resp, err := http.Get(env.baseURL + "/same")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	if got := len(getPage(t, env.baseURL+"/__history").History); got != 2 {
		t.Fatalf("history len = %d, want 2", got)
	}
	if got := len(getPage(t, env.baseURL+"/__history?unique=true").History); got != 1 {
		t.Errorf("unique history len = %d, want 1", got)
	}
}

func TestServer_ReplayUnknownID(t *testing.T) {
	env := startTestServer(t, okJSON, seeded(2))

	resp, body := postReplay(t, env.baseURL, `{"id":"nope"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"error":"not found"}` {
		t.Errorf("body = %s", body)
	}
	if env.store.Len() != 2 {
		t.Errorf("history length = %d, want 2", env.store.Len())
	}
	if env.hits.Load() != 0 {
		t.Errorf("upstream hits = %d, want 0", env.hits.Load())
	}
}

func TestServer_ReplayUpstream500(t *testing.T) {
	env := startTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}, seeded(1))

	resp, body := postReplay(t, env.baseURL, `{"id":"entry-000"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want upstream's 500", resp.StatusCode)
	}
	if got := resp.Header.Get(ErrorHeader); got != "" {
		t.Errorf("%s = %q, an upstream 500 is not a proxy error", ErrorHeader, got)
	}
	if got := resp.Header.Get(ReplayOfHeader); got != "entry-000" {
		t.Errorf("%s = %q, want entry-000", ReplayOfHeader, got)
	}
	if got := resp.Header.Get(UpstreamStatusHeader); got != "500" {
		t.Errorf("%s = %q, want 500", UpstreamStatusHeader, got)
	}

	var e history.Entry
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("body is not an entry: %v (%s)", err, body)
	}
	if e.ReplayOf != "entry-000" || e.StatusCode != 500 {
		t.Errorf("entry = %+v", e)
	}
	if env.store.Len() != 2 {
		t.Errorf("history length = %d, want 2", env.store.Len())
	}
}

func TestServer_ReplayBodylessStatus(t *testing.T) {
	for _, code := range []int{http.StatusNoContent, http.StatusNotModified} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			env := startTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}, seeded(1))

			resp, body := postReplay(t, env.baseURL, `{"id":"entry-000"}`)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200 so the entry can be sent", resp.StatusCode)
			}
			if got := resp.Header.Get(UpstreamStatusHeader); got != fmt.Sprint(code) {
				t.Errorf("%s = %q, want %d", UpstreamStatusHeader, got, code)
			}
			var e history.Entry
			if err := json.Unmarshal(body, &e); err != nil {
				t.Fatalf("body is not an entry: %v (%q)", err, body)
			}
			if e.StatusCode != code || e.ReplayOf != "entry-000" {
				t.Errorf("entry = %+v", e)
			}
			if got, err := env.store.Get(e.ID); err != nil || got.StatusCode != code {
				t.Errorf("stored entry = %+v, %v", got, err)
			}
		})
	}
}

func TestServer_ReplaySurvivesClientDisconnect(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	env := startTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-release
		okJSON(w, r)
	}, seeded(1))

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.baseURL+"/__replay", strings.NewReader(`{"id":"entry-000"}`))
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
		}
	}()

	<-arrived
	cancel()
	<-done
	close(release)

	deadline := time.Now().Add(5 * time.Second)
	for env.store.Len() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("history length = %d, want the replay recorded", env.store.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if e, _ := env.store.At(1); e.ReplayOf != "entry-000" {
		t.Errorf("recorded entry = %+v", e)
	}
}

func TestServer_ReplayByIndex(t *testing.T) {
	env := startTestServer(t, okJSON, seeded(3))

	resp, body := postReplay(t, env.baseURL, `{"index":2}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get(ReplayOfHeader); got != "entry-002" {
		t.Errorf("%s = %q, want entry-002", ReplayOfHeader, got)
	}

	for body, want := range map[string]int{
		`{"index":1.5}`:   http.StatusBadRequest,
		`{"index":"x"}`:   http.StatusBadRequest,
		`{"index":9}`:     http.StatusNotFound,
		`{}`:              http.StatusBadRequest,
		`not json`:        http.StatusBadRequest,
		`{"id":"","x":1}`: http.StatusBadRequest,
	} {
		resp, _ := postReplay(t, env.baseURL, body)
		if resp.StatusCode != want {
			t.Errorf("%s: status = %d, want %d", body, resp.StatusCode, want)
		}
	}
}

func TestServer_ReplayProxyFailure(t *testing.T) {
	env := startTestServer(t, okJSON, seeded(1))
	env.upstream.Close()

	resp, raw := postReplay(t, env.baseURL, `{"id":"entry-000"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if got := resp.Header.Get(ErrorHeader); got != OriginProxy {
		t.Errorf("%s = %q, want %q", ErrorHeader, got, OriginProxy)
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatal(err)
	}
	if body.Error == "" || body.Traceback == "" {
		t.Errorf("body = %+v, want error and traceback", body)
	}
	if env.store.Len() != 1 {
		t.Errorf("history length = %d, want 1", env.store.Len())
	}
}

func TestServer_ReplayMethod(t *testing.T) {
	env := startTestServer(t, okJSON, seeded(1))

	resp, err := http.Get(env.baseURL + "/__replay")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	if env.hits.Load() != 0 {
		t.Error("reserved paths must not be forwarded")
	}
}

func TestServer_Health(t *testing.T) {
	env := startTestServer(t, okJSON, seeded(4))

	resp, err := http.Get(env.baseURL + "/__health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Entries int    `json:"entries"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Status != "ok" || body.Entries != 4 {
		t.Errorf("health = %+v, want ok with 4 entries", body)
	}
}

func TestServer_Dashboard(t *testing.T) {
	env := startTestServer(t, okJSON, history.NewMemoryLog())

	resp, err := http.Get(env.baseURL + "/__dashboard/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestServer_Metrics(t *testing.T) {
	env := startTestServer(t, okJSON, history.NewMemoryLog())

	resp, err := http.Get(env.baseURL + "/items")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(env.baseURL + "/__metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "tapedeck_forwarded_requests_total") {
		t.Error("metrics output is missing the forwarded counter")
	}
}

func TestServer_WebSocketFeed(t *testing.T) {
	env := startTestServer(t, okJSON, history.NewMemoryLog())

	wsURL := "ws" + strings.TrimPrefix(env.baseURL, "http") + "/__ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(env.baseURL + "/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "recorded" || ev.Entry.Path != "/live" {
		t.Errorf("event = %+v", ev)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get(ErrorHeader) != OriginProxy {
		t.Error("recovered panics are proxy errors")
	}
	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "panic: kaboom" || !strings.Contains(body.Traceback, "goroutine") {
		t.Errorf("body = %+v", body)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	vc := clock.NewVirtualClock(epoch)

	h := AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setEntryID(r.Context(), "abc")
		w.WriteHeader(http.StatusTeapot)
	}), log, vc)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["status"] != float64(http.StatusTeapot) || line["entry"] != "abc" || line["path"] != "/tea" {
		t.Errorf("log line = %v", line)
	}
}
