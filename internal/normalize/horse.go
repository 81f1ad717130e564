package normalize

import (
	"strings"

	"github.com/IshaanNene/keibastalk/internal/types"
)

var horseColumns = []string{
	"horse_id", "date", "rank", "prize", "rank_diff", "weather",
	"race_type", "course_len", "ground_state", "race_class", "n_horses",
}

const horseDateLayout = "2006/01/02"

// Horse normalizes the combined past performance table. Rows without a
// numeric finishing position are dropped.
func (n *Normalizer) Horse(raw *types.Table) (*types.Table, error) {
	if err := requireColumns(raw,
		"horse_id", "日付", "天気", "レース名", "頭数", "着順", "距離", "馬場", "着差", "賞金",
	); err != nil {
		return nil, err
	}

	out := types.NewTable(HorseTable, horseColumns...)
	dropped := 0
	for i := range raw.Rows {
		rank, ok := parseInt(raw.Get(i, "着順"))
		if !ok {
			dropped++
			continue
		}

		distance := strings.TrimSpace(raw.Get(i, "距離"))
		courseLen, courseOK := firstNumber(distance)
		nHorses, nOK := parseInt(raw.Get(i, "頭数"))

		out.Append(
			raw.Get(i, "horse_id"),
			parseDate(horseDateLayout, raw.Get(i, "日付")),
			formatInt(rank, true),
			n.prize(raw.Get(i, "賞金")),
			n.margin(rank, raw.Get(i, "着差")),
			n.maps.Lookup(Weather, strings.TrimSpace(raw.Get(i, "天気"))).String(),
			n.maps.Lookup(RaceType, nthRune(distance, 0)).String(),
			formatInt(courseLen, courseOK),
			n.maps.Lookup(GroundState, strings.TrimSpace(raw.Get(i, "馬場"))).String(),
			n.maps.Find(RaceClass, raw.Get(i, "レース名")).String(),
			formatInt(nHorses, nOK),
		)
	}
	return n.finish(out, dropped), nil
}

// prize reads the prize money cell; an empty cell means no prize.
func (n *Normalizer) prize(s string) string {
	if strings.TrimSpace(s) == "" {
		return formatFloat(0, true)
	}
	return formatFloat(parseFloat(s))
}

// margin normalizes the gap to the winner. The winner's own cell holds the
// gap to the runner-up, usually as a negative value, so rank 1 is always 0.
// Other negative values clamp to 0 and worded margins ("クビ", "大") go
// through the margin table.
func (n *Normalizer) margin(rank int, s string) string {
	if rank == 1 {
		return formatFloat(0, true)
	}
	s = strings.TrimSpace(s)
	if v, ok := parseFloat(s); ok {
		if v < 0 {
			v = 0
		}
		return formatFloat(v, true)
	}
	code := n.maps.Lookup(Margin, s)
	if !code.Known() {
		return ""
	}
	if v, ok := parseFloat(code.String()); ok {
		return formatFloat(v, true)
	}
	return code.String()
}
