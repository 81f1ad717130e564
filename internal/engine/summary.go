package engine

import (
	"context"
	"time"

	"github.com/IshaanNene/keibastalk/internal/extract"
)

// StageSummary reports one executed stage.
type StageSummary struct {
	Name     string
	Items    int
	Fetched  int
	Skipped  int
	Failed   int
	Duration time.Duration
	Err      error

	started time.Time
}

// Summary collects the stages of one run.
type Summary struct {
	Range   string
	Started time.Time
	Elapsed time.Duration
	Stages  []StageSummary
}

func (s *Summary) add(st StageSummary) {
	s.Stages = append(s.Stages, st)
}

// ArtifactCount is the number of stored artifacts under one stage prefix.
type ArtifactCount struct {
	Stage  string
	Prefix string
	Count  int
}

// Status counts the artifacts of every stage.
func (e *Engine) Status(ctx context.Context) ([]ArtifactCount, error) {
	p := e.cfg.Paths
	stages := []ArtifactCount{
		{Stage: "kaisai_date", Prefix: p.KaisaiDateDir},
		{Stage: "race_id", Prefix: p.RaceIDDir},
		{Stage: "html_race", Prefix: p.HTMLRaceDir},
		{Stage: "horse_id", Prefix: p.HorseIDDir},
		{Stage: "jockey_id", Prefix: p.JockeyIDDir},
		{Stage: "trainer_id", Prefix: p.TrainerIDDir},
		{Stage: "html_horse", Prefix: p.HTMLHorseDir},
		{Stage: "raw_table", Prefix: p.RawTableDir},
	}
	for i := range stages {
		names, err := e.store.List(ctx, stages[i].Prefix)
		if err != nil {
			return nil, err
		}
		stages[i].Count = len(names)
	}
	return stages, nil
}

// Clean removes the cached combined raw tables so the next extract
// rebuilds them. Page captures and identifier lists are kept.
func (e *Engine) Clean(ctx context.Context) (int, error) {
	removed := 0
	for _, kind := range extract.Kinds {
		key := e.extractor.Key(kind)
		ok, err := e.store.Exists(ctx, key)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		if err := e.store.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
		e.logger.Info("removed cached table", "key", key.String())
	}
	return removed, nil
}
