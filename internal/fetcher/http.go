package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/types"
)

// HTTPFetcher fetches pages with plain GET requests. Each request is
// attempted once; the throttle delay follows every attempt.
type HTTPFetcher struct {
	client   *http.Client
	cfg      *config.FetcherConfig
	throttle *Throttle
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *HTTPFetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decoded below, including brotli
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.Fetcher.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.Fetcher.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.Fetcher.MaxRedirects)
		}
		return nil
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport:     transport,
			Timeout:       cfg.Fetcher.RequestTimeout,
			CheckRedirect: redirectPolicy,
		},
		cfg:      &cfg.Fetcher,
		throttle: NewThrottle(cfg.Fetcher.Delay),
		metrics:  metrics,
		logger:   logger.With("component", "http_fetcher"),
	}
}

// Get fetches rawURL and returns the undecoded body.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Fetch executes a single GET and returns the response. Non-2xx statuses
// are errors. The throttle delay is applied whatever the outcome.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	defer f.throttle.Wait(ctx)

	resp, err := f.do(ctx, req)
	if err != nil {
		f.metrics.FetchFailures.Add(1)
		f.logger.Warn("fetch failed", "url", req.URLString(), "error", err)
		return nil, err
	}

	f.metrics.PagesFetched.Add(1)
	f.metrics.BytesDownloaded.Add(int64(len(resp.Body)))
	f.logger.Debug("fetch complete",
		"url", req.URLString(),
		"status", resp.StatusCode,
		"size", len(resp.Body),
		"duration", resp.FetchDuration,
	)
	return resp, nil
}

func (f *HTTPFetcher) do(ctx context.Context, req *types.Request) (*types.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URLString(), nil)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, &types.FetchError{
			URL:        req.URLString(),
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", httpResp.StatusCode),
		}
	}

	decoded, err := decompressReader(httpResp)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: httpResp.StatusCode, Err: err}
	}
	defer decoded.Close()

	// One byte past the limit tells a full page from a cut-off one.
	var reader io.Reader = decoded
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(decoded, f.cfg.MaxBodySize+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: httpResp.StatusCode, Err: err}
	}
	if f.cfg.MaxBodySize > 0 && int64(len(body)) > f.cfg.MaxBodySize {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: httpResp.StatusCode, Err: types.ErrBodyTooLarge}
	}
	if len(body) == 0 {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: httpResp.StatusCode, Err: types.ErrEmptyResponse}
	}

	return types.NewResponse(httpResp, body, duration), nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// decompressReader wraps the response body with the decompressor its
// Content-Encoding names: gzip, deflate or brotli (br). Closing the result
// releases the decompressor but not the body.
func decompressReader(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
