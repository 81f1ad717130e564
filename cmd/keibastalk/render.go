package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/engine"
)

func renderStages(stages ...engine.StageSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Stage", "Items", "Fetched", "Skipped", "Failed", "Duration", "Error"})

	for _, s := range stages {
		errText := ""
		if s.Err != nil {
			errText = text.FgRed.Sprint(s.Err.Error())
		}
		t.AppendRow(table.Row{s.Name, s.Items, s.Fetched, s.Skipped, s.Failed, s.Duration.Round(time.Millisecond), errText})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, WidthMax: 60},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderSummary(sum *engine.Summary) {
	fmt.Printf("Range %s, %s elapsed\n", sum.Range, sum.Elapsed.Round(time.Millisecond))
	renderStages(sum.Stages...)
}

func renderStatus(counts []engine.ArtifactCount) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Stage", "Prefix", "Artifacts"})

	total := 0
	for _, c := range counts {
		t.AppendRow(table.Row{c.Stage, c.Prefix, c.Count})
		total += c.Count
	}
	t.AppendFooter(table.Row{"", "Total", total})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderConfig(cfg *config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Setting", "Value"})

	t.AppendRows([]table.Row{
		{"paths.artifact_url", cfg.Paths.ArtifactURL},
		{"paths.output_dir", cfg.Paths.OutputDir},
		{"paths.mapping_dir", cfg.Paths.MappingDir},
		{"source.race_url", cfg.Source.RaceURL},
		{"source.horse_url", cfg.Source.HorseURL},
		{"source.payout_encoding", cfg.Source.PayoutEncoding},
		{"fetcher.delay", cfg.Fetcher.Delay},
		{"fetcher.request_timeout", cfg.Fetcher.RequestTimeout},
		{"fetcher.user_agent", cfg.Fetcher.UserAgent},
		{"browser.headless", cfg.Browser.Headless},
		{"browser.stealth", cfg.Browser.Stealth},
		{"storage.mongo", cfg.Storage.MongoURI != ""},
		{"metrics.enabled", cfg.Metrics.Enabled},
	})
	t.AppendSeparator()
	t.AppendRow(table.Row{"logging.level", cfg.Logging.Level})

	t.SetStyle(table.StyleRounded)
	t.Render()
}
