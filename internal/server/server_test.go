package server

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/timanema/fail2ban-exporter/internal/aggregator"
	"github.com/timanema/fail2ban-exporter/internal/logger"
	"github.com/timanema/fail2ban-exporter/internal/metrics"
	"github.com/timanema/fail2ban-exporter/pkg/storage"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeScraper struct {
	calls int32
	body  string
}

func (f *fakeScraper) Scrape(context.Context) string {
	atomic.AddInt32(&f.calls, 1)
	return f.body
}

func do(t *testing.T, h http.Handler, method, path string, header http.Header) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestMetricsEndpoint(t *testing.T) {
	scraper := &fakeScraper{body: "f2b_banned_total 0\n"}
	h := New(scraper, logger.Nop(), Config{}).Handler()

	res := do(t, h, http.MethodGet, "/metrics", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := readBody(t, res); got != scraper.body {
		t.Errorf("body = %q", got)
	}
	if scraper.calls != 1 {
		t.Errorf("scrape calls = %d, want 1", scraper.calls)
	}
}

func TestHealthEndpoint(t *testing.T) {
	scraper := &fakeScraper{}
	h := New(scraper, logger.Nop(), Config{}).Handler()

	before := time.Now().Unix()
	res := do(t, h, http.MethodGet, "/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var body struct {
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Timestamp < before || body.Timestamp > time.Now().Unix() {
		t.Errorf("timestamp %d is not the current epoch second", body.Timestamp)
	}
	if scraper.calls != 0 {
		t.Error("health must not touch the aggregator")
	}
}

func TestNotFound(t *testing.T) {
	scraper := &fakeScraper{body: "x"}
	h := New(scraper, logger.Nop(), Config{}).Handler()

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/unknown"},
		{http.MethodGet, "/"},
		{http.MethodGet, "/metrics/"},
		{http.MethodGet, "//metrics"},
		{http.MethodGet, "/health/../metrics"},
		{http.MethodGet, "/./health"},
		{http.MethodPost, "/metrics"},
		{http.MethodDelete, "/health"},
	} {
		res := do(t, h, tt.method, tt.path, nil)
		if res.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", tt.method, tt.path, res.StatusCode)
		}
		if body := readBody(t, res); body != "" {
			t.Errorf("%s %s: body = %q, want empty", tt.method, tt.path, body)
		}
	}
	if scraper.calls != 0 {
		t.Errorf("scrape calls = %d, want 0", scraper.calls)
	}
}

func TestNoAccessLog(t *testing.T) {
	var buf bytes.Buffer
	h := New(&fakeScraper{}, logger.NewWithWriter(&buf, "debug"), Config{}).Handler()

	do(t, h, http.MethodGet, "/metrics", nil)
	do(t, h, http.MethodGet, "/health", nil)
	do(t, h, http.MethodGet, "/nope", nil)

	if buf.Len() != 0 {
		t.Fatalf("requests were logged: %s", buf.String())
	}
}

func TestCORS(t *testing.T) {
	h := New(&fakeScraper{}, logger.Nop(), Config{CORSOrigins: []string{"https://grafana.example"}}).Handler()

	res := do(t, h, http.MethodGet, "/health", http.Header{"Origin": {"https://grafana.example"}})
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "https://grafana.example" {
		t.Errorf("allowed origin = %q", got)
	}

	res = do(t, h, http.MethodGet, "/health", http.Header{"Origin": {"https://evil.example"}})
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}
}

func TestMetricsWithMissingLogFile(t *testing.T) {
	store := storage.NewMemoryStore()
	exp, err := metrics.NewExposition(store, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	agg, err := aggregator.New(logger.Nop(), store, exp, aggregator.Options{
		Path:      filepath.Join(t.TempDir(), "fail2ban.log"),
		MaxLines:  10000,
		Retention: 24 * time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(New(agg, logger.Nop(), Config{}).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	body := readBody(t, res)
	for _, want := range []string{"f2b_banned_total 0\n", "f2b_currently_banned 0\n", "f2b_exporter_last_update_seconds "} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestShutdown(t *testing.T) {
	s := New(&fakeScraper{}, logger.Nop(), Config{Addr: "127.0.0.1:0"})

	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe() }()

	time.Sleep(50 * time.Millisecond)
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("ListenAndServe after shutdown: %v", err)
	}
}
