package discovery

import (
	"fmt"
	"time"

	"github.com/IshaanNene/keibastalk/internal/types"
)

var rangeLayouts = []string{"2006-01-02", "2006-01"}

// Range is an inclusive date range. From and To keep the caller's spelling
// because cached artifact names are derived from it.
type Range struct {
	From, To   string
	start, end time.Time
}

// ParseRange parses a from/to pair given as YYYY-MM or YYYY-MM-DD.
func ParseRange(from, to string) (Range, error) {
	start, err := parseDate(from)
	if err != nil {
		return Range{}, err
	}
	end, err := parseDate(to)
	if err != nil {
		return Range{}, err
	}
	if end.Before(start) {
		return Range{}, fmt.Errorf("%w: %s is after %s", types.ErrInvalidRange, from, to)
	}
	return Range{From: from, To: to, start: start, end: end}, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range rangeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM or YYYY-MM-DD", types.ErrInvalidRange, s)
}

// Months returns the first day of every month that starts inside the range.
// A range starting mid-month begins with the following month.
func (r Range) Months() []time.Time {
	first := time.Date(r.start.Year(), r.start.Month(), 1, 0, 0, 0, 0, time.UTC)
	if first.Before(r.start) {
		first = first.AddDate(0, 1, 0)
	}

	var months []time.Time
	for m := first; !m.After(r.end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// artifactName derives the cache name of a stage output for this range.
func (r Range) artifactName(prefix string) string {
	return fmt.Sprintf("%s_%s_to_%s.json", prefix, r.From, r.To)
}

func (r Range) String() string {
	return r.From + ".." + r.To
}
