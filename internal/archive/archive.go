// Package archive keeps one raw capture per race or horse page. A page is
// fetched once; later requests for the same identifier are skipped.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/fetcher"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/storage"
	"github.com/IshaanNene/keibastalk/internal/types"
)

// Category is a kind of archived page.
type Category string

const (
	Race  Category = "race"
	Horse Category = "horse"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case Race, Horse:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown page category %q (want race or horse)", s)
}

// Report summarizes an ArchiveAll run.
type Report struct {
	Category Category
	Fetched  int
	Skipped  int
	Failed   []string
}

// Archiver fetches and stores page captures.
type Archiver struct {
	store   *storage.ArtifactStore
	pages   fetcher.PageProvider
	paths   config.PathsConfig
	source  config.SourceConfig
	metrics *observability.Metrics
	logger  *slog.Logger

	// Refresh refetches pages that are already archived.
	Refresh bool
}

// New creates an Archiver.
func New(cfg *config.Config, store *storage.ArtifactStore, pages fetcher.PageProvider, metrics *observability.Metrics, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:   store,
		pages:   pages,
		paths:   cfg.Paths,
		source:  cfg.Source,
		metrics: metrics,
		logger:  logger.With("component", "archiver"),
	}
}

// Stage returns the artifact prefix of a category.
func (a *Archiver) Stage(c Category) string {
	if c == Horse {
		return a.paths.HTMLHorseDir
	}
	return a.paths.HTMLRaceDir
}

// URL returns the detail page URL of an identifier.
func (a *Archiver) URL(c Category, id string) string {
	if c == Horse {
		return fmt.Sprintf(a.source.HorseURL, id)
	}
	return fmt.Sprintf(a.source.RaceURL, id)
}

// Archive stores the page of id unless it is already archived. fetched
// reports whether a request was made.
func (a *Archiver) Archive(ctx context.Context, c Category, id string) (fetched bool, err error) {
	key := storage.PageKey(a.Stage(c), id)
	idKey := string(c) + "_id"

	if !a.Refresh {
		exists, err := a.store.Exists(ctx, key)
		if err != nil {
			return false, err
		}
		if exists {
			a.metrics.ArchiveSkipped.Add(1)
			a.logger.Info("skip: already archived", idKey, id)
			return false, nil
		}
	}

	page, err := a.pages.Get(ctx, a.URL(c, id))
	if err != nil {
		return true, err
	}
	if err := a.store.Save(ctx, key, page); err != nil {
		return true, err
	}

	a.logger.Info("archived", idKey, id, "size", len(page))
	return true, nil
}

// ArchiveAll archives every identifier in order. Fetch failures are
// logged with the identifier and collected in the report; storage
// failures and cancellation stop the run.
func (a *Archiver) ArchiveAll(ctx context.Context, c Category, ids []string) (Report, error) {
	report := Report{Category: c}
	idKey := string(c) + "_id"

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fetched, err := a.Archive(ctx, c, id)
		if err != nil {
			var fe *types.FetchError
			if !errors.As(err, &fe) {
				return report, err
			}
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed = append(report.Failed, id)
			a.logger.Error("archive failed", idKey, id, "error", err)
			continue
		}
		if fetched {
			report.Fetched++
		} else {
			report.Skipped++
		}
		a.logger.Debug("archive progress", "category", c, "done", i+1, "total", len(ids))
	}

	a.logger.Info("archive finished",
		"category", c,
		"fetched", report.Fetched,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
	)
	return report, nil
}
