package normalize

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/IshaanNene/keibastalk/internal/extract"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestNormalizer(t *testing.T) (*Normalizer, *observability.Metrics) {
	t.Helper()
	maps, err := LoadMappings(filepath.Join("..", "..", "configs", "mapping"))
	if err != nil {
		t.Fatal(err)
	}
	metrics := observability.NewMetrics(testLogger)
	return New(maps, metrics, testLogger), metrics
}

func rawRaceTable() *types.Table {
	t := types.NewTable(string(extract.RaceResults), extract.RaceResultSchema.TableColumns()...)
	// race_id 着順 枠番 馬番 馬名 性齢 斤量 騎手 タイム 着差 単勝 人気 馬体重 調教師 horse_id jockey_id trainer_id
	t.Append("202306010101", "1", "4", "7", "アルファ", "牡3", "56", "騎手A", "1:12.3", "", "2.4", "1", "482(+6)", "調教師A", "2020100007", "01001", "01101")
	t.Append("202306010101", "2", "1", "2", "ベータ", "牝3", "54.5", "騎手B", "1:12.5", "1", "5.1", "2", "480(0)", "調教師B", "2020100002", "01002", "01102")
	t.Append("202306010101", "中止", "3", "9", "ガンマ", "セ4", "57", "騎手C", "", "", "30.0", "9", "500(-4)", "調教師C", "2019100009", "01003", "01103")
	t.Append("202306010101", "3", "3", "5", "デルタ", "牡3", "56", "騎手D", "1:12.9", "2", "8.8", "3", "計不", "調教師D", "2020100005", "01004", "01104")
	return t
}

func TestRaceSortsByHorseNumberAndDropsUnranked(t *testing.T) {
	n, metrics := newTestNormalizer(t)
	out, err := n.Race(rawRaceTable())
	if err != nil {
		t.Fatal(err)
	}

	if out.Name != RaceTable {
		t.Errorf("name = %s", out.Name)
	}
	if got := out.Column("umaban"); !slices.Equal(got, []string{"2", "5", "7"}) {
		t.Errorf("umaban order = %v, want [2 5 7]", got)
	}
	if got := out.Column("rank"); !slices.Equal(got, []string{"2", "3", "1"}) {
		t.Errorf("rank = %v", got)
	}
	if metrics.RowsDropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", metrics.RowsDropped.Load())
	}

	// umaban 7 is now last.
	checks := map[string]string{
		"horse_id":    "2020100007",
		"sex":         "0",
		"age":         "3",
		"weight":      "482",
		"weight_diff": "6",
		"impost":      "56.0",
		"tansho_odds": "2.4",
		"popularity":  "1",
		"wakuban":     "4",
		"jockey_name": "騎手A",
	}
	for col, want := range checks {
		if got := out.Get(2, col); got != want {
			t.Errorf("%s = %q, want %q", col, got, want)
		}
	}
	if got := out.Get(0, "impost"); got != "54.5" {
		t.Errorf("impost = %q", got)
	}
	if got := out.Get(0, "weight_diff"); got != "0" {
		t.Errorf("weight_diff = %q", got)
	}
	if out.Get(1, "weight") != "" || out.Get(1, "weight_diff") != "" {
		t.Error("unparseable weight should leave both cells empty")
	}
}

func TestRaceDropsNonNumericHorseNumber(t *testing.T) {
	n, metrics := newTestNormalizer(t)
	raw := rawRaceTable()
	raw.Append("202306010101", "4", "2", "", "イプシロン", "牡3", "56", "騎手E", "1:13.0", "3", "12.0", "4", "470(+2)", "調教師E", "2020100010", "01005", "01105")
	raw.Append("202306010101", "5", "5", "取消", "ゼータ", "牝3", "54", "騎手F", "1:13.2", "1", "20.0", "5", "456(-8)", "調教師F", "2020100011", "01006", "01106")

	out, err := n.Race(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Column("umaban"); !slices.Equal(got, []string{"2", "5", "7"}) {
		t.Errorf("umaban = %v, want [2 5 7]", got)
	}
	if slices.Contains(out.Column("horse_id"), "2020100010") || slices.Contains(out.Column("horse_id"), "2020100011") {
		t.Error("rows without a horse number should be dropped")
	}
	if metrics.RowsDropped.Load() != 3 {
		t.Errorf("dropped = %d, want 3", metrics.RowsDropped.Load())
	}
}

func TestRaceMissingColumns(t *testing.T) {
	n, _ := newTestNormalizer(t)
	_, err := n.Race(types.NewTable("raw_race", "race_id", "着順"))
	if err == nil || !strings.Contains(err.Error(), "horse_id") {
		t.Errorf("expected missing column error, got %v", err)
	}
}

func tokens(t *testing.T, values ...string) string {
	t.Helper()
	b := "["
	for i, v := range values {
		if i > 0 {
			b += ","
		}
		b += `"` + v + `"`
	}
	return b + "]"
}

func TestRaceInfo(t *testing.T) {
	n, _ := newTestNormalizer(t)
	raw := types.NewTable(string(extract.RaceInfo), "race_id", "title", "info1", "info2")
	raw.Append("202306010101", "3歳未勝利",
		tokens(t, "ダ右1200m", "天候:晴", "ダート:稍重", "発走:10:05"),
		tokens(t, "2023年1月5日", "1回中山1日目", "3歳未勝利", "混"))
	raw.Append("202309020811", "阪神牝馬ステークス",
		tokens(t, "芝右外1600m", "天候:曇", "芝:良"),
		tokens(t, "2023年4月8日", "2回阪神5日目", "4歳以上オープン", "GII"))
	raw.Append("202309020812", "broken", "not json", "[]")

	out, err := n.RaceInfo(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 2 {
		t.Fatalf("rows = %d, want 2", out.Len())
	}

	want := [][]string{
		{"202306010101", "2023-01-05", "1", "0", "1200", "0", "1", "1", "6"},
		{"202309020811", "2023-04-08", "0", "0", "1600", "1", "0", "5", "9"},
	}
	for i, w := range want {
		if !slices.Equal(out.Rows[i], w) {
			t.Errorf("row %d = %v, want %v", i, out.Rows[i], w)
		}
	}
}

func TestPayoutsExplode(t *testing.T) {
	n, metrics := newTestNormalizer(t)
	raw := types.NewTable(string(extract.RacePayouts), "race_id", "bet_type", "win_umaban", "return", "popularity")
	raw.Append("202306010101", "単勝", "7", "240", "1")
	raw.Append("202306010101", "複勝", "7 2 5", "120 150 1,210", "1 2 5")
	raw.Append("202306010101", "枠連", "1 - 4", "580", "2")
	raw.Append("202306010101", "馬連", "2 - 7", "640", "1")
	raw.Append("202306010101", "三連単", "7 → 2 → 5", "12,340", "10")
	raw.Append("202306010101", "ワイド", "2 - 7 5 - 7", "250 900 480", "1 8 4")

	out, err := n.Payouts(raw)
	if err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"202306010101", "単勝", "7", "240"},
		{"202306010101", "複勝", "7", "120"},
		{"202306010101", "複勝", "2", "150"},
		{"202306010101", "複勝", "5", "1210"},
		{"202306010101", "馬連", "2-7", "640"},
		{"202306010101", "三連単", "7-2-5", "12340"},
	}
	if out.Len() != len(want) {
		t.Fatalf("rows = %v", out.Rows)
	}
	for i, w := range want {
		if !slices.Equal(out.Rows[i], w) {
			t.Errorf("row %d = %v, want %v", i, out.Rows[i], w)
		}
	}
	if slices.Contains(out.Column("bet_type"), "枠連") {
		t.Error("bracket quinella should be dropped")
	}
	if metrics.RowsDropped.Load() != 2 {
		t.Errorf("dropped = %d, want 2 (枠連 and the misaligned ワイド row)", metrics.RowsDropped.Load())
	}
}

func rawHorseTable() *types.Table {
	t := types.NewTable(string(extract.HorseHistory), extract.HorseHistorySchema.TableColumns()...)
	add := func(values map[string]string) {
		row := make([]string, len(t.Columns))
		for col, v := range values {
			row[t.ColumnIndex(col)] = v
		}
		t.Append(row...)
	}
	add(map[string]string{"horse_id": "2020100007", "日付": "2023/06/01", "天気": "晴", "レース名": "3歳未勝利", "頭数": "16", "着順": "1", "距離": "ダ1200", "馬場": "良", "着差": "-1", "賞金": "510.0"})
	add(map[string]string{"horse_id": "2020100007", "日付": "2023/05/01", "天気": "雨", "レース名": "3歳未勝利", "頭数": "14", "着順": "2", "距離": "芝1600", "馬場": "重", "着差": "0.5", "賞金": "2,000"})
	add(map[string]string{"horse_id": "2020100007", "日付": "2023/04/01", "天気": "曇", "レース名": "新馬", "頭数": "12", "着順": "5", "距離": "芝1800", "馬場": "稍", "着差": "クビ", "賞金": ""})
	add(map[string]string{"horse_id": "2020100007", "日付": "2023/03/01", "天気": "晴", "レース名": "新馬", "頭数": "12", "着順": "除", "距離": "芝1800", "馬場": "良"})
	add(map[string]string{"horse_id": "2020100007", "日付": "2023/02/01", "天気": "晴", "レース名": "未知のレース", "頭数": "10", "着順": "4", "距離": "障3000", "馬場": "不良", "着差": "-0.3", "賞金": ""})
	return t
}

func TestHorseMarginAndPrize(t *testing.T) {
	n, metrics := newTestNormalizer(t)
	out, err := n.Horse(rawHorseTable())
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 4 || metrics.RowsDropped.Load() != 1 {
		t.Fatalf("rows = %d dropped = %d", out.Len(), metrics.RowsDropped.Load())
	}

	if got := out.Column("rank_diff"); !slices.Equal(got, []string{"0.0", "0.5", "0.2", "0.0"}) {
		t.Errorf("rank_diff = %v", got)
	}
	if got := out.Column("prize"); !slices.Equal(got, []string{"510.0", "2000.0", "0.0", "0.0"}) {
		t.Errorf("prize = %v", got)
	}
	if got := out.Column("date"); got[0] != "2023-06-01" {
		t.Errorf("date = %v", got)
	}
	if got := out.Column("race_type"); !slices.Equal(got, []string{"1", "0", "0", "2"}) {
		t.Errorf("race_type = %v", got)
	}
	if got := out.Column("ground_state"); !slices.Equal(got, []string{"0", "2", "1", "3"}) {
		t.Errorf("ground_state = %v", got)
	}
	if got := out.Column("race_class"); !slices.Equal(got, []string{"1", "1", "0", ""}) {
		t.Errorf("race_class = %v", got)
	}
	if got := out.Get(3, "course_len"); got != "3000" {
		t.Errorf("course_len = %q", got)
	}
	if got := out.Get(0, "n_horses"); got != "16" {
		t.Errorf("n_horses = %q", got)
	}
}

func TestNormalizeDispatch(t *testing.T) {
	n, _ := newTestNormalizer(t)
	out, err := n.Normalize(extract.RaceResults, rawRaceTable())
	if err != nil || out.Name != RaceTable {
		t.Fatalf("Normalize(raw_race) = %v, %v", out, err)
	}
	if _, err := n.Normalize(extract.Kind("raw_jockey"), rawRaceTable()); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestFormatFloat(t *testing.T) {
	tests := map[float64]string{56: "56.0", 54.5: "54.5", 0.05: "0.05", 1210: "1210.0"}
	for in, want := range tests {
		if got := formatFloat(in, true); got != want {
			t.Errorf("formatFloat(%v) = %q, want %q", in, got, want)
		}
	}
	if got := formatFloat(1, false); got != "" {
		t.Errorf("missing value = %q", got)
	}
}
