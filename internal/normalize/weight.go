package normalize

import (
	"regexp"
	"strconv"

	"github.com/IshaanNene/keibastalk/internal/types"
)

var weightPattern = regexp.MustCompile(`^\s*(\d+)\s*\(\s*([+-]?\d+)\s*\)\s*$`)

// Weight is a horse body weight and its change since the previous race.
type Weight struct {
	Weight int
	Diff   int
}

// ParseWeight parses "NNN(+N)". The parenthesised delta is required.
func ParseWeight(s string) (Weight, error) {
	m := weightPattern.FindStringSubmatch(s)
	if m == nil {
		return Weight{}, &types.FormatError{Field: "weight", Value: s}
	}
	w, err := strconv.Atoi(m[1])
	if err != nil {
		return Weight{}, &types.FormatError{Field: "weight", Value: s}
	}
	d, err := strconv.Atoi(m[2])
	if err != nil {
		return Weight{}, &types.FormatError{Field: "weight", Value: s}
	}
	return Weight{Weight: w, Diff: d}, nil
}
