package normalize

import (
	"slices"
	"strings"

	"github.com/IshaanNene/keibastalk/internal/types"
)

var raceColumns = []string{
	"race_id", "horse_id", "horse_name", "jockey_id", "jockey_name",
	"trainer_id", "trainer_name", "rank", "umaban", "wakuban",
	"tansho_odds", "popularity", "impost", "sex", "age", "weight", "weight_diff",
}

// Race normalizes the combined results table. Rows without a numeric
// finishing position (scratched, disqualified) or horse number are
// dropped, and each race is reordered by horse number so finishing order
// does not leak into the row order.
func (n *Normalizer) Race(raw *types.Table) (*types.Table, error) {
	if err := requireColumns(raw,
		"race_id", "horse_id", "jockey_id", "trainer_id",
		"着順", "枠番", "馬番", "馬名", "性齢", "斤量", "騎手", "単勝", "人気", "馬体重", "調教師",
	); err != nil {
		return nil, err
	}

	type row struct {
		raceID string
		umaban int
		cells  []string
	}
	rows := make([]row, 0, raw.Len())
	dropped := 0

	for i := range raw.Rows {
		rank, ok := parseInt(raw.Get(i, "着順"))
		if !ok {
			dropped++
			continue
		}
		raceID := raw.Get(i, "race_id")
		umaban, ok := parseInt(raw.Get(i, "馬番"))
		if !ok {
			n.logger.Warn("row dropped: horse number not numeric", "race_id", raceID, "umaban", raw.Get(i, "馬番"))
			dropped++
			continue
		}
		wakuban, wakubanOK := parseInt(raw.Get(i, "枠番"))
		popularity, popOK := parseInt(raw.Get(i, "人気"))
		odds, oddsOK := parseFloat(raw.Get(i, "単勝"))
		impost, impostOK := parseFloat(raw.Get(i, "斤量"))

		sexAge := strings.TrimSpace(raw.Get(i, "性齢"))
		sex := n.maps.Lookup(Sex, nthRune(sexAge, 0))
		age, ageOK := parseInt(strings.TrimPrefix(sexAge, nthRune(sexAge, 0)))

		weight, weightDiff := "", ""
		if w, err := ParseWeight(raw.Get(i, "馬体重")); err == nil {
			weight = formatInt(w.Weight, true)
			weightDiff = formatInt(w.Diff, true)
		} else {
			n.logger.Warn("weight not parsed", "race_id", raceID, "umaban", umaban, "error", err)
		}

		rows = append(rows, row{
			raceID: raceID,
			umaban: umaban,
			cells: []string{
				raceID,
				raw.Get(i, "horse_id"),
				raw.Get(i, "馬名"),
				raw.Get(i, "jockey_id"),
				raw.Get(i, "騎手"),
				raw.Get(i, "trainer_id"),
				raw.Get(i, "調教師"),
				formatInt(rank, true),
				formatInt(umaban, true),
				formatInt(wakuban, wakubanOK),
				formatFloat(odds, oddsOK),
				formatInt(popularity, popOK),
				formatFloat(impost, impostOK),
				sex.String(),
				formatInt(age, ageOK),
				weight,
				weightDiff,
			},
		})
	}

	slices.SortStableFunc(rows, func(a, b row) int {
		if c := strings.Compare(a.raceID, b.raceID); c != 0 {
			return c
		}
		return a.umaban - b.umaban
	})

	out := types.NewTable(RaceTable, raceColumns...)
	for _, r := range rows {
		out.Append(r.cells...)
	}
	return n.finish(out, dropped), nil
}
