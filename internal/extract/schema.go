package extract

import (
	"github.com/IshaanNene/keibastalk/internal/parser"
)

// Kind names one of the combined raw tables.
type Kind string

const (
	RaceResults  Kind = "raw_race"
	RaceInfo     Kind = "raw_race_info"
	RacePayouts  Kind = "raw_race_return"
	HorseHistory Kind = "raw_horse"
)

// Kinds lists every raw table in build order.
var Kinds = []Kind{RaceResults, RaceInfo, RacePayouts, HorseHistory}

// ParseKind validates a raw table name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Schema describes how a page category becomes table rows: the element
// that holds the rows, its positional columns and the cross-reference rules
// mined inside that element. Every link rule must yield one value per row.
// Fields are single-valued rules for pages that yield one row.
type Schema struct {
	Category  string
	Container string
	Columns   []string
	Fields    []parser.Rule
	Links     []parser.Rule
}

// IDColumn is the column carrying the source page identifier.
func (s Schema) IDColumn() string {
	return s.Category + "_id"
}

// TableColumns returns the combined table header: the source identifier,
// the positional columns, then one column per field and per link rule.
func (s Schema) TableColumns() []string {
	cols := make([]string, 0, 1+len(s.Columns)+len(s.Fields)+len(s.Links))
	cols = append(cols, s.IDColumn())
	cols = append(cols, s.Columns...)
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	for _, l := range s.Links {
		cols = append(cols, l.Name)
	}
	return cols
}

// RaceResultSchema is the finishing order table of a race page.
var RaceResultSchema = Schema{
	Category:  "race",
	Container: "table.race_table_01",
	Columns: []string{
		"着順", "枠番", "馬番", "馬名", "性齢", "斤量", "騎手",
		"タイム", "着差", "単勝", "人気", "馬体重", "調教師",
	},
	Links: []parser.Rule{
		{Name: "horse_id", Type: parser.CSS, Selector: "a[href]", Attribute: "href", Pattern: `^/horse/(\d+)`},
		{Name: "jockey_id", Type: parser.CSS, Selector: "a[href]", Attribute: "href", Pattern: `^/jockey/result/recent/(\d+)`},
		{Name: "trainer_id", Type: parser.CSS, Selector: "a[href]", Attribute: "href", Pattern: `^/trainer/result/recent/(\d+)`},
	},
}

// HorseHistorySchema is the past performance table of a horse page.
var HorseHistorySchema = Schema{
	Category:  "horse",
	Container: "table.db_h_race_results",
	Columns: []string{
		"日付", "開催", "天気", "R", "レース名", "映像", "頭数",
		"枠番", "馬番", "オッズ", "人気", "着順", "騎手", "斤量", "距離",
		"馬場", "馬場指数", "タイム", "着差", "タイム指数", "通過",
		"ペース", "上り", "馬体重", "厩舎コメント", "備考", "勝ち馬", "賞金",
	},
}

// RaceInfoSchema is the title block of a race page: the race name and
// the two descriptive paragraphs below it, by position.
var RaceInfoSchema = Schema{
	Category:  "race",
	Container: "div.data_intro",
	Fields: []parser.Rule{
		{Name: "title", Type: parser.XPath, Selector: "descendant::h1[1]"},
		{Name: "info1", Type: parser.XPath, Selector: "descendant::p[1]"},
		{Name: "info2", Type: parser.XPath, Selector: "descendant::p[2]"},
	},
}

const payoutContainer = "dl.pay_block"

var payoutColumns = []string{"race_id", "bet_type", "win_umaban", "return", "popularity"}
