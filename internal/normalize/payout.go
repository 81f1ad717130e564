package normalize

import (
	"strings"

	"github.com/IshaanNene/keibastalk/internal/types"
)

var payoutColumns = []string{"race_id", "bet_type", "win_umaban", "return"}

// bracketQuinella rows are not kept.
const bracketQuinella = "枠連"

var combinationJoiner = strings.NewReplacer(" - ", "-", " → ", "-", "→", "-")

// Payouts explodes multi-valued payout rows into one row per winning
// combination. Combination members are joined with "-", so "3 - 7" and
// "3 → 7" both become "3-7".
func (n *Normalizer) Payouts(raw *types.Table) (*types.Table, error) {
	if err := requireColumns(raw, "race_id", "bet_type", "win_umaban", "return"); err != nil {
		return nil, err
	}

	out := types.NewTable(PayoutTable, payoutColumns...)
	dropped := 0
	for i := range raw.Rows {
		raceID := raw.Get(i, "race_id")
		betType := strings.TrimSpace(raw.Get(i, "bet_type"))
		if betType == bracketQuinella {
			dropped++
			continue
		}

		wins := strings.Fields(combinationJoiner.Replace(raw.Get(i, "win_umaban")))
		returns := strings.Fields(strings.ReplaceAll(raw.Get(i, "return"), ",", ""))
		if len(wins) == 0 || len(wins) != len(returns) {
			n.logger.Warn("payout row dropped",
				"race_id", raceID,
				"bet_type", betType,
				"winners", len(wins),
				"returns", len(returns),
			)
			dropped++
			continue
		}

		for j, win := range wins {
			amount, ok := parseInt(returns[j])
			if !ok {
				n.logger.Warn("payout amount not numeric", "race_id", raceID, "bet_type", betType, "value", returns[j])
				dropped++
				continue
			}
			out.Append(raceID, betType, win, formatInt(amount, true))
		}
	}
	return n.finish(out, dropped), nil
}
