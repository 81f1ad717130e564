package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for a pipeline run.
type Metrics struct {
	// Fetch metrics
	PagesFetched    atomic.Int64
	FetchFailures   atomic.Int64
	BytesDownloaded atomic.Int64

	// Artifact metrics
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	ArchiveSkipped  atomic.Int64
	ArtifactsStored atomic.Int64

	// Table metrics
	PagesExtracted     atomic.Int64
	ExtractionFailures atomic.Int64
	RowsNormalized     atomic.Int64
	RowsDropped        atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"keibastalk_pages_fetched_total", "Total pages fetched", m.PagesFetched.Load()},
		{"keibastalk_fetch_failures_total", "Total failed fetches", m.FetchFailures.Load()},
		{"keibastalk_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"keibastalk_cache_hits_total", "Artifacts served from the store", m.CacheHits.Load()},
		{"keibastalk_cache_misses_total", "Artifacts recomputed", m.CacheMisses.Load()},
		{"keibastalk_archive_skipped_total", "Pages already archived", m.ArchiveSkipped.Load()},
		{"keibastalk_artifacts_stored_total", "Artifacts written", m.ArtifactsStored.Load()},
		{"keibastalk_pages_extracted_total", "Pages turned into table rows", m.PagesExtracted.Load()},
		{"keibastalk_extraction_failures_total", "Pages skipped by the extractor", m.ExtractionFailures.Load()},
		{"keibastalk_rows_normalized_total", "Rows written to normalized tables", m.RowsNormalized.Load()},
		{"keibastalk_rows_dropped_total", "Rows dropped during normalization", m.RowsDropped.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_fetched":       m.PagesFetched.Load(),
		"fetch_failures":      m.FetchFailures.Load(),
		"bytes_downloaded":    m.BytesDownloaded.Load(),
		"cache_hits":          m.CacheHits.Load(),
		"cache_misses":        m.CacheMisses.Load(),
		"archive_skipped":     m.ArchiveSkipped.Load(),
		"artifacts_stored":    m.ArtifactsStored.Load(),
		"pages_extracted":     m.PagesExtracted.Load(),
		"extraction_failures": m.ExtractionFailures.Load(),
		"rows_normalized":     m.RowsNormalized.Load(),
		"rows_dropped":        m.RowsDropped.Load(),
	}
}
