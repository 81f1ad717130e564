package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/parser"
	"github.com/IshaanNene/keibastalk/internal/storage"
	"github.com/IshaanNene/keibastalk/internal/types"
)

// Extractor turns archived pages into combined raw tables.
type Extractor struct {
	store     *storage.ArtifactStore
	parser    *parser.Parser
	paths     config.PathsConfig
	payoutEnc encoding.Encoding
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates an Extractor reading pages from store.
func New(cfg *config.Config, store *storage.ArtifactStore, metrics *observability.Metrics, logger *slog.Logger) (*Extractor, error) {
	enc, err := htmlindex.Get(cfg.Source.PayoutEncoding)
	if err != nil {
		return nil, fmt.Errorf("payout encoding %q: %w", cfg.Source.PayoutEncoding, err)
	}
	return &Extractor{
		store:     store,
		parser:    parser.New(logger),
		paths:     cfg.Paths,
		payoutEnc: enc,
		metrics:   metrics,
		logger:    logger.With("component", "extractor"),
	}, nil
}

// pageFunc extracts the rows of one page.
type pageFunc func(id string, page []byte) (*types.Table, error)

type plan struct {
	stage   string
	idKey   string
	columns []string
	extract pageFunc
}

func (e *Extractor) plan(kind Kind) (plan, error) {
	switch kind {
	case RaceResults:
		return plan{e.paths.HTMLRaceDir, "race_id", RaceResultSchema.TableColumns(), e.RaceResults}, nil
	case RaceInfo:
		return plan{e.paths.HTMLRaceDir, "race_id", RaceInfoSchema.TableColumns(), e.RaceInfo}, nil
	case RacePayouts:
		return plan{e.paths.HTMLRaceDir, "race_id", payoutColumns, e.RacePayouts}, nil
	case HorseHistory:
		return plan{e.paths.HTMLHorseDir, "horse_id", HorseHistorySchema.TableColumns(), e.HorseHistory}, nil
	}
	return plan{}, fmt.Errorf("unknown raw table %q", kind)
}

// Key returns where the combined table of kind is cached.
func (e *Extractor) Key(kind Kind) storage.Key {
	return storage.Key{Stage: e.paths.RawTableDir, Name: string(kind) + ".tsv"}
}

// Build extracts every archived page of the kind's category, concatenates
// the per-page rows and stores the combined table. Pages that cannot be
// extracted are logged with their identifier and left out.
func (e *Extractor) Build(ctx context.Context, kind Kind) (*types.Table, error) {
	p, err := e.plan(kind)
	if err != nil {
		return nil, err
	}

	names, err := e.store.List(ctx, p.stage)
	if err != nil {
		return nil, err
	}

	out := types.NewTable(string(kind), p.columns...)
	var extracted, skipped int
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, ok := storage.PageID(name)
		if !ok {
			continue
		}

		page, ok, err := e.store.Load(ctx, storage.PageKey(p.stage, id))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		rows, err := p.extract(id, page)
		if err != nil {
			skipped++
			e.metrics.ExtractionFailures.Add(1)
			var pe *types.ParseError
			if errors.As(err, &pe) {
				e.logger.Error("extraction failed", "table", kind, p.idKey, id, "error", err)
			} else {
				e.logger.Warn("extraction skipped", "table", kind, p.idKey, id, "error", err)
			}
			continue
		}
		if err := out.Concat(rows); err != nil {
			return nil, err
		}
		extracted++
		e.metrics.PagesExtracted.Add(1)
	}

	if extracted == 0 {
		e.logger.Warn("no pages extracted", "table", kind, "stage", p.stage)
	}
	if err := e.store.SaveTable(ctx, e.Key(kind), out); err != nil {
		return nil, err
	}

	e.logger.Info("raw table built", "table", kind, "pages", extracted, "skipped", skipped, "rows", out.Len())
	return out, nil
}

// Table returns the cached combined table of kind, building it when the
// cache is empty.
func (e *Extractor) Table(ctx context.Context, kind Kind) (*types.Table, error) {
	t, ok, err := e.store.LoadTable(ctx, e.Key(kind), string(kind))
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	e.logger.Info("raw table not cached, building", "table", kind)
	return e.Build(ctx, kind)
}

// clean collapses runs of whitespace so every cell fits on one TSV line.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
