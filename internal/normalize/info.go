package normalize

import (
	"regexp"
	"strings"

	"github.com/IshaanNene/keibastalk/internal/extract"
	"github.com/IshaanNene/keibastalk/internal/types"
)

var raceInfoColumns = []string{
	"race_id", "date", "race_type", "around", "course_len",
	"weather", "ground_state", "race_class", "place",
}

var (
	weatherPattern = regexp.MustCompile(`天候:([\p{L}\p{N}_]+)`)
	groundPattern  = regexp.MustCompile(`(?:芝|ダート|障害):([\p{L}\p{N}_]+)`)
)

const infoDateLayout = "2006年1月2日"

// RaceInfo normalizes the race condition table. info1 carries the course
// token ("ダ右1200m") followed by weather and going; info2 starts with the
// meeting date and names the class.
func (n *Normalizer) RaceInfo(raw *types.Table) (*types.Table, error) {
	if err := requireColumns(raw, "race_id", "title", "info1", "info2"); err != nil {
		return nil, err
	}

	out := types.NewTable(RaceInfoTable, raceInfoColumns...)
	dropped := 0
	for i := range raw.Rows {
		raceID := raw.Get(i, "race_id")
		info1, err := extract.DecodeTokens(raw.Get(i, "info1"))
		if err != nil || len(info1) == 0 {
			n.logger.Warn("race info dropped", "race_id", raceID, "error", err)
			dropped++
			continue
		}
		info2, err := extract.DecodeTokens(raw.Get(i, "info2"))
		if err != nil {
			n.logger.Warn("race info dropped", "race_id", raceID, "error", err)
			dropped++
			continue
		}

		course := info1[0]
		joined1 := strings.Join(info1, " ")
		joined2 := strings.Join(info2, " ")

		courseLen, courseOK := firstNumber(course)

		weather := Unknown
		if m := weatherPattern.FindStringSubmatch(joined1); m != nil {
			weather = n.maps.Lookup(Weather, m[1])
		}
		ground := Unknown
		if m := groundPattern.FindStringSubmatch(joined1); m != nil {
			ground = n.maps.Lookup(GroundState, m[1])
		}

		date := ""
		if len(info2) > 0 {
			date = parseDate(infoDateLayout, info2[0])
		}

		class := n.maps.Find(RaceClass, raw.Get(i, "title"))
		if !class.Known() {
			class = n.maps.Find(RaceClass, joined2)
		}

		place := ""
		if len(raceID) >= 6 {
			p, ok := parseInt(raceID[4:6])
			place = formatInt(p, ok)
		}

		out.Append(
			raceID,
			date,
			n.maps.Lookup(RaceType, nthRune(course, 0)).String(),
			n.maps.Lookup(Around, nthRune(course, 1)).String(),
			formatInt(courseLen, courseOK),
			weather.String(),
			ground.String(),
			class.String(),
			place,
		)
	}
	return n.finish(out, dropped), nil
}
