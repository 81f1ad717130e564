// Package discovery finds the identifiers the archive is keyed by:
// meeting dates from the calendar, race ids from the race listings and
// horse, jockey and trainer ids from archived race results. Each stage
// caches its output and, on a miss, rebuilds the stage before it.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/extract"
	"github.com/IshaanNene/keibastalk/internal/fetcher"
	"github.com/IshaanNene/keibastalk/internal/parser"
	"github.com/IshaanNene/keibastalk/internal/storage"
	"github.com/IshaanNene/keibastalk/internal/types"
)

var (
	kaisaiDateRule = parser.Rule{
		Name:      "kaisai_date",
		Type:      parser.CSS,
		Selector:  "a[href]",
		Attribute: "href",
		Pattern:   `kaisai_date=(\d{8})`,
	}
	raceIDPattern = regexp.MustCompile(`race_id=(\d{12})`)
)

const calendarTable = "table.Calendar_Table"

// Entity is a kind of identifier mined from race results.
type Entity string

const (
	Horse   Entity = "horse"
	Jockey  Entity = "jockey"
	Trainer Entity = "trainer"
)

// Entities lists the mined identifier kinds.
var Entities = []Entity{Horse, Jockey, Trainer}

// Column returns the raw results column holding the entity's identifiers.
func (e Entity) Column() string { return string(e) + "_id" }

// TableSource provides combined raw tables, building them when needed.
type TableSource interface {
	Table(ctx context.Context, kind extract.Kind) (*types.Table, error)
}

// Discoverer runs the identifier stages.
type Discoverer struct {
	store  *storage.ArtifactStore
	pages  fetcher.PageProvider
	links  fetcher.LinkProvider
	tables TableSource
	parser *parser.Parser
	paths  config.PathsConfig
	source config.SourceConfig
	logger *slog.Logger
}

// New creates a Discoverer.
func New(cfg *config.Config, store *storage.ArtifactStore, pages fetcher.PageProvider, links fetcher.LinkProvider, tables TableSource, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		store:  store,
		pages:  pages,
		links:  links,
		tables: tables,
		parser: parser.New(logger),
		paths:  cfg.Paths,
		source: cfg.Source,
		logger: logger.With("component", "discovery"),
	}
}

// KaisaiDateKey is where the meeting dates of r are cached.
func (d *Discoverer) KaisaiDateKey(r Range) storage.Key {
	return storage.Key{Stage: d.paths.KaisaiDateDir, Name: r.artifactName("kaisai_date_list")}
}

// RaceIDKey is where the race ids of r are cached.
func (d *Discoverer) RaceIDKey(r Range) storage.Key {
	return storage.Key{Stage: d.paths.RaceIDDir, Name: r.artifactName("race_id_list")}
}

// EntityKey is where the mined identifiers of an entity are cached.
func (d *Discoverer) EntityKey(e Entity) storage.Key {
	var stage string
	switch e {
	case Horse:
		stage = d.paths.HorseIDDir
	case Jockey:
		stage = d.paths.JockeyIDDir
	case Trainer:
		stage = d.paths.TrainerIDDir
	}
	return storage.Key{Stage: stage, Name: string(e) + "_id_list.json"}
}

// KaisaiDates returns the meeting dates linked from the calendar pages of
// every month in r, in page order. Duplicates are kept. Months whose page
// cannot be fetched or parsed are logged and skipped.
func (d *Discoverer) KaisaiDates(ctx context.Context, r Range) ([]string, error) {
	key := d.KaisaiDateKey(r)
	dates, ok, err := d.store.LoadList(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		d.logger.Debug("kaisai dates cached", "range", r, "count", len(dates))
		return dates, nil
	}

	d.logger.Info("discovering kaisai dates", "range", r)
	dates = []string{}
	for _, month := range r.Months() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url := fmt.Sprintf(d.source.CalendarURL, month.Year(), int(month.Month()))
		found, err := d.calendarDates(ctx, url)
		if err != nil {
			d.logger.Error("calendar skipped", "month", month.Format("2006-01"), "url", url, "error", err)
			continue
		}
		d.logger.Info("calendar scanned", "month", month.Format("2006-01"), "dates", len(found))
		dates = append(dates, found...)
	}

	if err := d.store.SaveList(ctx, key, dates); err != nil {
		return nil, err
	}
	return dates, nil
}

func (d *Discoverer) calendarDates(ctx context.Context, url string) ([]string, error) {
	body, err := d.pages.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := parser.ParsePage(body)
	if err != nil {
		return nil, err
	}
	cal, ok := doc.Scope(calendarTable)
	if !ok {
		return nil, &types.ExtractionError{Category: "calendar", ID: url, Selector: calendarTable}
	}
	return d.parser.Apply(cal, kaisaiDateRule)
}

// RaceIDs returns the race ids listed for every meeting date of r. The
// meeting dates are loaded from cache or discovered first. Dates whose
// listing cannot be rendered are logged and skipped.
func (d *Discoverer) RaceIDs(ctx context.Context, r Range) ([]string, error) {
	key := d.RaceIDKey(r)
	ids, ok, err := d.store.LoadList(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		d.logger.Debug("race ids cached", "range", r, "count", len(ids))
		return ids, nil
	}

	dates, err := d.KaisaiDates(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("recover kaisai dates: %w", err)
	}

	d.logger.Info("discovering race ids", "range", r, "dates", len(dates))
	ids = []string{}
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url := fmt.Sprintf(d.source.RaceListURL, date)
		hrefs, err := d.links.Links(ctx, url, d.source.RaceListSelector)
		if err != nil {
			d.logger.Error("race list skipped", "kaisai_date", date, "error", err)
			continue
		}
		n := 0
		for _, href := range hrefs {
			m := raceIDPattern.FindStringSubmatch(href)
			if m == nil {
				d.logger.Warn("listing link without race id", "kaisai_date", date, "href", href)
				continue
			}
			ids = append(ids, m[1])
			n++
		}
		d.logger.Info("race list scanned", "kaisai_date", date, "races", n)
	}

	if err := d.store.SaveList(ctx, key, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// EntityIDs returns the cached identifiers of e, mining the race results
// when the cache is empty.
func (d *Discoverer) EntityIDs(ctx context.Context, e Entity) ([]string, error) {
	ids, ok, err := d.store.LoadList(ctx, d.EntityKey(e))
	if err != nil {
		return nil, err
	}
	if ok {
		return ids, nil
	}

	mined, err := d.MineEntities(ctx)
	if err != nil {
		return nil, err
	}
	return mined[e], nil
}

// MineEntities collects the distinct horse, jockey and trainer ids of the
// combined race results table, in first-seen order, and caches each list.
func (d *Discoverer) MineEntities(ctx context.Context) (map[Entity][]string, error) {
	results, err := d.tables.Table(ctx, extract.RaceResults)
	if err != nil {
		return nil, fmt.Errorf("recover race results: %w", err)
	}

	out := make(map[Entity][]string, len(Entities))
	for _, e := range Entities {
		ids := unique(results.Column(e.Column()))
		if err := d.store.SaveList(ctx, d.EntityKey(e), ids); err != nil {
			return nil, err
		}
		out[e] = ids
		d.logger.Info("identifiers mined", "entity", e, "count", len(ids))
	}
	return out, nil
}

func unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
