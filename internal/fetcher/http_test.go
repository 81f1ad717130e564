package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// newTestFetcher returns a fetcher whose throttle records pauses instead of sleeping.
func newTestFetcher(t *testing.T) (*HTTPFetcher, *[]time.Duration) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Fetcher.UserAgent = "keibastalk-test"
	f := NewHTTPFetcher(cfg, observability.NewMetrics(testLogger), testLogger)
	var pauses []time.Duration
	f.throttle.sleep = func(d time.Duration) { pauses = append(pauses, d) }
	t.Cleanup(func() { f.Close() })
	return f, &pauses
}

func TestHTTPFetcherGet(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=EUC-JP")
		w.Write([]byte("<html><body>race</body></html>"))
	}))
	defer srv.Close()

	f, pauses := newTestFetcher(t)
	body, err := f.Get(context.Background(), srv.URL+"/race/202306010101")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != "<html><body>race</body></html>" {
		t.Errorf("unexpected body %q", body)
	}
	if gotUA != "keibastalk-test" {
		t.Errorf("expected fixed user agent, got %q", gotUA)
	}
	if len(*pauses) != 1 || (*pauses)[0] != time.Second {
		t.Errorf("expected one 1s pause, got %v", *pauses)
	}
	if f.metrics.PagesFetched.Load() != 1 {
		t.Errorf("expected 1 page fetched, got %d", f.metrics.PagesFetched.Load())
	}
}

func TestHTTPFetcherNon2xxIsFetchError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f, pauses := newTestFetcher(t)
	_, err := f.Get(context.Background(), srv.URL)

	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", fe.StatusCode)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
	if len(*pauses) != 1 {
		t.Errorf("delay must follow failed requests too, got %d pauses", len(*pauses))
	}
	if f.metrics.FetchFailures.Load() != 1 {
		t.Errorf("expected 1 failure counted, got %d", f.metrics.FetchFailures.Load())
	}
}

func TestHTTPFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f, _ := newTestFetcher(t)
	_, err := f.Get(context.Background(), url)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != 0 {
		t.Errorf("transport errors carry no status, got %d", fe.StatusCode)
	}
}

func TestHTTPFetcherRejectsNonHTTP(t *testing.T) {
	f, _ := newTestFetcher(t)
	_, err := f.Get(context.Background(), "ftp://example.com/race")
	if !errors.Is(err, types.ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestHTTPFetcherDecompresses(t *testing.T) {
	const page = "<html><body><table class=\"race_table_01\"></table></body></html>"

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(page))
	zw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte(page))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz.Bytes())
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			w.Write(br.Bytes())
		}
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	for _, path := range []string{"/gzip", "/br"} {
		body, err := f.Get(context.Background(), srv.URL+path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if string(body) != page {
			t.Errorf("%s: unexpected body %q", path, body)
		}
	}
}

func TestHTTPFetcherRejectsOversizedBody(t *testing.T) {
	page := strings.Repeat("a", 2026)
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(page))
	zw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plain":
			w.Write([]byte(page))
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz.Bytes())
		case "/fits":
			w.Write([]byte(page[:100]))
		}
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	f.cfg.MaxBodySize = 100
	if gz.Len() >= 100 {
		t.Fatalf("compressed page should fit under the limit, got %d bytes", gz.Len())
	}

	for _, path := range []string{"/plain", "/gzip"} {
		body, err := f.Get(context.Background(), srv.URL+path)
		var fe *types.FetchError
		if !errors.As(err, &fe) || !errors.Is(err, types.ErrBodyTooLarge) {
			t.Fatalf("%s: expected oversized FetchError, got %v", path, err)
		}
		if body != nil {
			t.Errorf("%s: truncated body returned (%d bytes)", path, len(body))
		}
	}
	if f.metrics.FetchFailures.Load() != 2 {
		t.Errorf("expected 2 failures counted, got %d", f.metrics.FetchFailures.Load())
	}

	body, err := f.Get(context.Background(), srv.URL+"/fits")
	if err != nil {
		t.Fatalf("page at the limit: %v", err)
	}
	if len(body) != 100 {
		t.Errorf("expected 100 bytes, got %d", len(body))
	}
}

func TestThrottleRespectsCancellation(t *testing.T) {
	th := NewThrottle(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := th.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled wait should return immediately")
	}
}

func TestThrottleZeroDelay(t *testing.T) {
	if err := NewThrottle(0).Wait(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
