// Package normalize turns the combined raw tables into typed output tables.
// Numbers are written in plain decimal form, categories as their mapped
// codes and missing values as empty cells.
package normalize

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/keibastalk/internal/extract"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/types"
)

// Output table names.
const (
	RaceTable     = "df_race"
	RaceInfoTable = "df_race_info"
	PayoutTable   = "df_race_return"
	HorseTable    = "df_horse"
)

var digits = regexp.MustCompile(`\d+`)

// Normalizer applies the field rules of every output table.
type Normalizer struct {
	maps    Mappings
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Normalizer over loaded mapping tables.
func New(maps Mappings, metrics *observability.Metrics, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		maps:    maps,
		metrics: metrics,
		logger:  logger.With("component", "normalizer"),
	}
}

// Normalize dispatches a raw table to its normalizer.
func (n *Normalizer) Normalize(kind extract.Kind, raw *types.Table) (*types.Table, error) {
	switch kind {
	case extract.RaceResults:
		return n.Race(raw)
	case extract.RaceInfo:
		return n.RaceInfo(raw)
	case extract.RacePayouts:
		return n.Payouts(raw)
	case extract.HorseHistory:
		return n.Horse(raw)
	}
	return nil, fmt.Errorf("no normalizer for %q", kind)
}

func requireColumns(t *types.Table, columns ...string) error {
	var missing []string
	for _, c := range columns {
		if t.ColumnIndex(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s: missing columns %s", t.Name, strings.Join(missing, ", "))
	}
	return nil
}

func (n *Normalizer) finish(out *types.Table, dropped int) *types.Table {
	n.metrics.RowsNormalized.Add(int64(out.Len()))
	n.metrics.RowsDropped.Add(int64(dropped))
	n.logger.Info("table normalized", "table", out.Name, "rows", out.Len(), "dropped", dropped)
	return out
}

// parseInt reads an integer cell; ok is false for blanks and non-numbers.
func parseInt(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	return v, err == nil
}

// parseFloat reads a decimal cell, ignoring thousands separators.
func parseFloat(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func formatInt(v int, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.Itoa(v)
}

// formatFloat writes integral values with one decimal ("56.0").
func formatFloat(v float64, ok bool) string {
	if !ok {
		return ""
	}
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// nthRune returns the i-th character of s, or "".
func nthRune(s string, i int) string {
	r := []rune(s)
	if i >= len(r) {
		return ""
	}
	return string(r[i])
}

// firstNumber returns the first run of digits in s.
func firstNumber(s string) (int, bool) {
	return parseInt(digits.FindString(s))
}

// parseDate reformats a date cell to YYYY-MM-DD.
func parseDate(layout, s string) string {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
