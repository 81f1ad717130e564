// Package engine wires the pipeline stages together and runs them in order:
// discover race ids, archive race pages, extract race tables, mine horse
// ids, archive horse pages, extract horse history, normalize.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/keibastalk/internal/archive"
	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/discovery"
	"github.com/IshaanNene/keibastalk/internal/extract"
	"github.com/IshaanNene/keibastalk/internal/fetcher"
	"github.com/IshaanNene/keibastalk/internal/normalize"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/storage"
)

// State represents the engine's current lifecycle state.
type State int32

const (
	StateIdle    State = 0
	StateRunning State = 1
	StateStopped State = 2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Engine owns every pipeline component built from one Config.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	store *storage.ArtifactStore
	pages fetcher.PageProvider
	links fetcher.LinkProvider
	sink  storage.Sink

	discoverer *discovery.Discoverer
	archiver   *archive.Archiver
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer

	state atomic.Int32
}

// Option overrides a component New would otherwise build from the config.
type Option func(*Engine)

// WithStore uses an already opened artifact store.
func WithStore(s *storage.ArtifactStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithPages uses p for detail and calendar pages.
func WithPages(p fetcher.PageProvider) Option {
	return func(e *Engine) { e.pages = p }
}

// WithLinks uses l for script-rendered listing pages.
func WithLinks(l fetcher.LinkProvider) Option {
	return func(e *Engine) { e.links = l }
}

// WithSink writes normalized tables to s instead of the configured sinks.
func WithSink(s storage.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithMetrics shares a metrics registry with the caller.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an Engine. Mapping tables are loaded here, so a missing
// table fails before any request is made.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, logger: logger.With("component", "engine")}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observability.NewMetrics(logger)
	}

	maps, err := normalize.LoadMappings(cfg.Paths.MappingDir)
	if err != nil {
		return nil, err
	}

	if e.store == nil {
		e.store, err = storage.OpenArtifactStore(ctx, cfg.Paths.ArtifactURL, e.metrics, logger)
		if err != nil {
			return nil, err
		}
	}
	if e.pages == nil {
		e.pages = fetcher.NewHTTPFetcher(cfg, e.metrics, logger)
	}
	if e.links == nil {
		e.links = fetcher.NewBrowserFetcher(cfg, e.metrics, logger)
	}
	if e.sink == nil {
		e.sink, err = openSinks(cfg, logger)
		if err != nil {
			e.store.Close()
			return nil, err
		}
	}

	e.extractor, err = extract.New(cfg, e.store, e.metrics, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.discoverer = discovery.New(cfg, e.store, e.pages, e.links, e.extractor, logger)
	e.archiver = archive.New(cfg, e.store, e.pages, e.metrics, logger)
	e.normalizer = normalize.New(maps, e.metrics, logger)
	return e, nil
}

// openSinks builds the TSV sink and, when configured, the MongoDB mirror.
func openSinks(cfg *config.Config, logger *slog.Logger) (storage.Sink, error) {
	tsv, err := storage.NewTSVSink(cfg.Paths.OutputDir, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.MongoURI == "" {
		return tsv, nil
	}
	mongo, err := storage.NewMongoSink(cfg.Storage.MongoURI, cfg.Storage.MongoDatabase, logger)
	if err != nil {
		tsv.Close()
		return nil, err
	}
	return storage.NewMultiSink([]storage.Sink{tsv, mongo}, logger), nil
}

// Metrics returns the run counters.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// Store returns the artifact store.
func (e *Engine) Store() *storage.ArtifactStore { return e.store }

// Archiver returns the page archiver.
func (e *Engine) Archiver() *archive.Archiver { return e.archiver }

// GetState returns the current engine state.
func (e *Engine) GetState() State {
	return State(e.state.Load())
}

// Dates runs the meeting date stage.
func (e *Engine) Dates(ctx context.Context, r discovery.Range) ([]string, StageSummary, error) {
	s := e.begin("kaisai_date")
	dates, err := e.discoverer.KaisaiDates(ctx, r)
	s.Items = len(dates)
	return dates, e.end(s, err), err
}

// Races runs the race id stage, recovering meeting dates if needed.
func (e *Engine) Races(ctx context.Context, r discovery.Range) ([]string, StageSummary, error) {
	s := e.begin("race_id")
	ids, err := e.discoverer.RaceIDs(ctx, r)
	s.Items = len(ids)
	return ids, e.end(s, err), err
}

// Archive stores the pages of ids.
func (e *Engine) Archive(ctx context.Context, c archive.Category, ids []string) (StageSummary, error) {
	s := e.begin("archive_" + string(c))
	report, err := e.archiver.ArchiveAll(ctx, c, ids)
	s.Items = len(ids)
	s.Fetched = report.Fetched
	s.Skipped = report.Skipped
	s.Failed = len(report.Failed)
	return e.end(s, err), err
}

// Extract rebuilds the combined raw table of kind from the archive.
func (e *Engine) Extract(ctx context.Context, kind extract.Kind) (StageSummary, error) {
	s := e.begin(string(kind))
	t, err := e.extractor.Build(ctx, kind)
	if t != nil {
		s.Items = t.Len()
	}
	return e.end(s, err), err
}

// Entities mines horse, jockey and trainer ids from the results table.
func (e *Engine) Entities(ctx context.Context) (map[discovery.Entity][]string, StageSummary, error) {
	s := e.begin("entity_id")
	ents, err := e.discoverer.MineEntities(ctx)
	for _, ids := range ents {
		s.Items += len(ids)
	}
	return ents, e.end(s, err), err
}

// HorseIDs returns the mined horse ids, mining them if not cached.
func (e *Engine) HorseIDs(ctx context.Context) ([]string, error) {
	return e.discoverer.EntityIDs(ctx, discovery.Horse)
}

// Normalize converts the cached raw table of kind and writes the result
// to the output sinks.
func (e *Engine) Normalize(ctx context.Context, kind extract.Kind) (StageSummary, error) {
	s := e.begin("normalize_" + string(kind))
	err := e.normalize(ctx, kind, &s)
	return e.end(s, err), err
}

func (e *Engine) normalize(ctx context.Context, kind extract.Kind, s *StageSummary) error {
	raw, err := e.extractor.Table(ctx, kind)
	if err != nil {
		return err
	}
	out, err := e.normalizer.Normalize(kind, raw)
	if err != nil {
		return err
	}
	s.Items = out.Len()
	if err := e.sink.Write(ctx, out); err != nil {
		return fmt.Errorf("write %s: %w", out.Name, err)
	}
	return nil
}

// Run executes every stage for r. A stage error stops the run; stages
// already completed keep their artifacts, so a re-run resumes from them.
func (e *Engine) Run(ctx context.Context, r discovery.Range) (*Summary, error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("engine is in state %s, cannot run", e.GetState())
	}
	defer e.state.Store(int32(StateStopped))

	sum := &Summary{Range: r.String(), Started: time.Now()}
	e.logger.Info("run starting", "range", r.String(), "delay", e.cfg.Fetcher.Delay)

	err := e.run(ctx, r, sum)
	sum.Elapsed = time.Since(sum.Started)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			e.logger.Warn("run interrupted", "elapsed", sum.Elapsed)
		}
		return sum, err
	}
	e.logger.Info("run finished", "elapsed", sum.Elapsed, "stats", e.metrics.Snapshot())
	return sum, nil
}

func (e *Engine) run(ctx context.Context, r discovery.Range, sum *Summary) error {
	var (
		raceIDs []string
		ents    map[discovery.Entity][]string
	)
	stages := []func() (StageSummary, error){
		func() (s StageSummary, err error) {
			raceIDs, s, err = e.Races(ctx, r)
			return s, err
		},
		func() (StageSummary, error) { return e.Archive(ctx, archive.Race, raceIDs) },
		func() (StageSummary, error) { return e.Extract(ctx, extract.RaceResults) },
		func() (StageSummary, error) { return e.Extract(ctx, extract.RaceInfo) },
		func() (StageSummary, error) { return e.Extract(ctx, extract.RacePayouts) },
		func() (s StageSummary, err error) {
			ents, s, err = e.Entities(ctx)
			return s, err
		},
		func() (StageSummary, error) { return e.Archive(ctx, archive.Horse, ents[discovery.Horse]) },
		func() (StageSummary, error) { return e.Extract(ctx, extract.HorseHistory) },
	}
	for _, kind := range extract.Kinds {
		kind := kind
		stages = append(stages, func() (StageSummary, error) { return e.Normalize(ctx, kind) })
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := stage()
		sum.add(s)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) begin(stage string) StageSummary {
	e.logger.Info("stage starting", "stage", stage)
	return StageSummary{Name: stage, started: time.Now()}
}

func (e *Engine) end(s StageSummary, err error) StageSummary {
	s.Duration = time.Since(s.started)
	if err != nil {
		s.Err = err
		e.logger.Error("stage failed", "stage", s.Name, "error", err)
		return s
	}
	e.logger.Info("stage finished", "stage", s.Name, "items", s.Items, "duration", s.Duration)
	return s
}

// Close releases fetchers, sinks and the artifact store.
func (e *Engine) Close() error {
	var errs []error
	if e.links != nil {
		errs = append(errs, e.links.Close())
	}
	if e.pages != nil {
		errs = append(errs, e.pages.Close())
	}
	if e.sink != nil {
		errs = append(errs, e.sink.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
