package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"gocloud.dev/blob/memblob"
	"golang.org/x/text/encoding/japanese"

	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/storage"
	"github.com/IshaanNene/keibastalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// racePage builds a race page with n result rows, horseLinks horse anchors
// and n jockey and trainer anchors, encoded as EUC-JP like the real site.
func racePage(t *testing.T, n, horseLinks int) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<html><head><meta http-equiv="Content-Type" content="text/html; charset=EUC-JP"></head><body>`)
	b.WriteString(`<div class="data_intro"><h1>3歳未勝利</h1>`)
	b.WriteString(`<p><span>ダ右1200m&nbsp;/&nbsp;天候 : 晴&nbsp;/&nbsp;ダート : 良&nbsp;/&nbsp;発走 : 10:05</span></p>`)
	b.WriteString(`<p class="smalltxt">2023年1月5日 1回中山1日目 3歳未勝利&nbsp;&nbsp;(混)[指](馬齢)</p></div>`)
	b.WriteString(`<table class="race_table_01"><tr><th>着順</th><th>枠番</th><th>馬番</th><th>馬名</th><th>性齢</th><th>斤量</th><th>騎手</th><th>タイム</th><th>着差</th><th>単勝</th><th>人気</th><th>馬体重</th><th>調教師</th></tr>`)
	for i := 1; i <= n; i++ {
		horse := fmt.Sprintf("馬%d", i)
		if i <= horseLinks {
			horse = fmt.Sprintf(`<a href="/horse/202010500%d/">馬%d</a>`, i, i)
		}
		fmt.Fprintf(&b, `<tr><td>%d</td><td>%d</td><td>%d</td><td>%s</td><td>牡3</td><td>56.0</td>`+
			`<td><a href="/jockey/result/recent/0117%d/">騎手%d</a></td><td>1:12.3</td><td></td><td>2.4</td><td>%d</td>`+
			`<td>482(+6)</td><td>[東] <a href="/trainer/result/recent/0100%d/">調教師%d</a></td></tr>`,
			i, i, i, horse, i, i, i, i, i)
	}
	b.WriteString(`</table>`)
	b.WriteString(`<dl class="pay_block"><dd><table class="pay_table_01">`)
	b.WriteString(`<tr><th class="tan">単勝</th><td>3</td><td>250</td><td>1</td></tr>`)
	b.WriteString(`<tr><th class="fuku">複勝</th><td>3<br />7<br />1</td><td>120<br />150<br />1,210</td><td>1<br />2<br />9</td></tr>`)
	b.WriteString(`<tr><th class="uren">馬連</th><td>3 - 7</td><td>1,020</td><td>4</td></tr>`)
	b.WriteString(`</table></dd></dl></body></html>`)
	return encodeEUCJP(t, b.String())
}

func encodeEUCJP(t *testing.T, s string) []byte {
	t.Helper()
	out, err := japanese.EUCJP.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return out
}

func newTestExtractor(t *testing.T) (*Extractor, *storage.ArtifactStore) {
	t.Helper()
	metrics := observability.NewMetrics(testLogger)
	store := storage.NewArtifactStore(memblob.OpenBucket(nil), "mem", metrics, testLogger)
	t.Cleanup(func() { store.Close() })
	e, err := New(config.DefaultConfig(), store, metrics, testLogger)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return e, store
}

func TestRaceResultsAlignsLinks(t *testing.T) {
	e, _ := newTestExtractor(t)

	tbl, err := e.RaceResults("202306010101", racePage(t, 3, 3))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.Len())
	}
	for i := 0; i < 3; i++ {
		for _, col := range []string{"horse_id", "jockey_id", "trainer_id"} {
			if tbl.Get(i, col) == "" {
				t.Errorf("row %d: missing %s", i, col)
			}
		}
	}
	if tbl.Get(1, "horse_id") != "2020105002" || tbl.Get(1, "jockey_id") != "01172" {
		t.Errorf("row 1 misaligned: %v", tbl.Rows[1])
	}
	if tbl.Get(0, "race_id") != "202306010101" || tbl.Get(0, "馬名") != "馬1" {
		t.Errorf("unexpected row 0: %v", tbl.Rows[0])
	}
	if tbl.Get(2, "馬体重") != "482(+6)" {
		t.Errorf("expected raw weight cell, got %q", tbl.Get(2, "馬体重"))
	}
}

func TestRaceResultsMissingLinkIsParseError(t *testing.T) {
	e, _ := newTestExtractor(t)

	_, err := e.RaceResults("202306010101", racePage(t, 3, 2))
	var pe *types.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Rule != "horse_id" || pe.Want != 3 || pe.Got != 2 {
		t.Errorf("unexpected parse error %+v", pe)
	}
}

func TestRaceResultsMissingTable(t *testing.T) {
	e, _ := newTestExtractor(t)
	_, err := e.RaceResults("202306010101", []byte("<html><body>nothing</body></html>"))
	var ee *types.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestRaceInfoTokens(t *testing.T) {
	e, _ := newTestExtractor(t)

	tbl, err := e.RaceInfo("202306010101", racePage(t, 1, 1))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := strings.Join(tbl.Columns, ","); got != "race_id,title,info1,info2" {
		t.Errorf("columns = %s", got)
	}
	if tbl.Get(0, "title") != "3歳未勝利" {
		t.Errorf("unexpected title %q", tbl.Get(0, "title"))
	}

	info1, err := DecodeTokens(tbl.Get(0, "info1"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ダ右1200m", "天候:晴", "ダート:良", "発走:10:05"}
	if strings.Join(info1, "|") != strings.Join(want, "|") {
		t.Errorf("info1 = %v, want %v", info1, want)
	}

	info2, err := DecodeTokens(tbl.Get(0, "info2"))
	if err != nil {
		t.Fatal(err)
	}
	if len(info2) == 0 || info2[0] != "2023年1月5日" {
		t.Errorf("info2 should start with the date, got %v", info2)
	}
}

func TestRaceInfoMissingParagraph(t *testing.T) {
	e, _ := newTestExtractor(t)
	page := []byte(`<html><body><div class="data_intro"><h1>T</h1><p>only one</p></div></body></html>`)
	_, err := e.RaceInfo("202306010101", page)
	var ee *types.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestRacePayoutsDecodesLegacyEncoding(t *testing.T) {
	e, _ := newTestExtractor(t)

	tbl, err := e.RacePayouts("202306010101", racePage(t, 1, 1))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("expected 3 bet type rows, got %d", tbl.Len())
	}
	if tbl.Get(0, "bet_type") != "単勝" {
		t.Errorf("bet type not decoded: %q", tbl.Get(0, "bet_type"))
	}
	if tbl.Get(1, "win_umaban") != "3 7 1" || tbl.Get(1, "return") != "120 150 1,210" {
		t.Errorf("multi-valued cells should stay whitespace separated: %v", tbl.Rows[1])
	}
	if tbl.Get(2, "win_umaban") != "3 - 7" {
		t.Errorf("unexpected combination %q", tbl.Get(2, "win_umaban"))
	}
}

func TestHorseHistoryMissingTable(t *testing.T) {
	e, _ := newTestExtractor(t)
	_, err := e.HorseHistory("2020105001", []byte(`<html><body><div class="db_prof_area_02"></div></body></html>`))
	var ee *types.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestBuildSkipsBadPagesAndCaches(t *testing.T) {
	ctx := context.Background()
	e, store := newTestExtractor(t)
	cfg := config.DefaultConfig()

	pages := map[string][]byte{
		"202306010101": racePage(t, 2, 2),
		"202306010102": racePage(t, 3, 2), // misaligned
		"202306010103": racePage(t, 1, 1),
	}
	for id, page := range pages {
		if err := store.Save(ctx, storage.PageKey(cfg.Paths.HTMLRaceDir, id), page); err != nil {
			t.Fatal(err)
		}
	}

	tbl, err := e.Build(ctx, RaceResults)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tbl.Len() != 3 {
		t.Errorf("expected 3 rows from the two good pages, got %d", tbl.Len())
	}
	for _, id := range tbl.Column("race_id") {
		if id == "202306010102" {
			t.Error("misaligned race should be left out")
		}
	}
	if e.metrics.ExtractionFailures.Load() != 1 {
		t.Errorf("expected 1 extraction failure, got %d", e.metrics.ExtractionFailures.Load())
	}

	// A cached table is served without touching the archive.
	if err := store.Delete(ctx, storage.PageKey(cfg.Paths.HTMLRaceDir, "202306010101")); err != nil {
		t.Fatal(err)
	}
	cached, err := e.Table(ctx, RaceResults)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if cached.Len() != 3 || cached.Get(0, "horse_id") != tbl.Get(0, "horse_id") {
		t.Errorf("expected cached copy, got %d rows", cached.Len())
	}
}

func TestTableBuildsOnMiss(t *testing.T) {
	ctx := context.Background()
	e, store := newTestExtractor(t)
	cfg := config.DefaultConfig()

	if err := store.Save(ctx, storage.PageKey(cfg.Paths.HTMLHorseDir, "2020105001"), []byte("<html></html>")); err != nil {
		t.Fatal(err)
	}
	tbl, err := e.Table(ctx, HorseHistory)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if tbl.Len() != 0 {
		t.Errorf("horse without history should contribute no rows, got %d", tbl.Len())
	}
	if ok, _ := store.Exists(ctx, e.Key(HorseHistory)); !ok {
		t.Error("expected the built table to be cached")
	}
}
