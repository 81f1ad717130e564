package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/IshaanNene/keibastalk/internal/parser"
	"github.com/IshaanNene/keibastalk/internal/types"
)

var (
	// Unicode-aware word tokens, with and without colons.
	info1Token = regexp.MustCompile(`[\p{L}\p{N}_:]+`)
	info2Token = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// RaceResults extracts the finishing order table of a race page together
// with the horse, jockey and trainer identifiers linked from each row.
func (e *Extractor) RaceResults(id string, page []byte) (*types.Table, error) {
	return e.schemaTable(RaceResultSchema, string(RaceResults), id, page)
}

// HorseHistory extracts the past performance table of a horse page.
func (e *Extractor) HorseHistory(id string, page []byte) (*types.Table, error) {
	return e.schemaTable(HorseHistorySchema, string(HorseHistory), id, page)
}

func (e *Extractor) schemaTable(s Schema, name, id string, page []byte) (*types.Table, error) {
	doc, err := parser.ParsePage(page)
	if err != nil {
		return nil, err
	}

	scope, ok := doc.Scope(s.Container)
	if !ok {
		return nil, &types.ExtractionError{Category: s.Category, ID: id, Selector: s.Container}
	}
	tbl := parser.ExtractTable(scope.Query.Selection)

	links := make([][]string, len(s.Links))
	for i, rule := range s.Links {
		values, err := e.parser.Apply(scope, rule)
		if err != nil {
			return nil, err
		}
		if len(values) != len(tbl.Rows) {
			return nil, &types.ParseError{
				Category: s.Category,
				ID:       id,
				Rule:     rule.Name,
				Want:     len(tbl.Rows),
				Got:      len(values),
			}
		}
		links[i] = values
	}

	out := types.NewTable(name, s.TableColumns()...)
	for r, row := range tbl.Rows {
		cells := make([]string, 0, len(out.Columns))
		cells = append(cells, id)
		for c := range s.Columns {
			if c < len(row) {
				cells = append(cells, clean(row[c]))
			} else {
				cells = append(cells, "")
			}
		}
		for i := range links {
			cells = append(cells, links[i][r])
		}
		out.Append(cells...)
	}
	return out, nil
}

// RaceInfo extracts the title and the two descriptive paragraphs of a race
// page. The paragraphs are kept as JSON token lists:
// "ダ右1200m / 天候 : 晴" becomes ["ダ右1200m","天候:晴"].
func (e *Extractor) RaceInfo(id string, page []byte) (*types.Table, error) {
	s := RaceInfoSchema
	doc, err := parser.ParsePage(page)
	if err != nil {
		return nil, err
	}

	scope, ok := doc.Scope(s.Container)
	if !ok {
		return nil, &types.ExtractionError{Category: s.Category, ID: id, Selector: s.Container}
	}
	fields, err := e.parser.ApplyAll(scope, s.Fields)
	if err != nil {
		return nil, err
	}
	for _, rule := range s.Fields {
		if len(fields[rule.Name]) == 0 {
			return nil, &types.ExtractionError{Category: s.Category, ID: id, Selector: s.Container + " " + rule.Selector}
		}
	}

	info1 := info1Token.FindAllString(strings.ReplaceAll(fields["info1"][0], " ", ""), -1)
	info2 := info2Token.FindAllString(fields["info2"][0], -1)

	info1JSON, err := encodeTokens(info1)
	if err != nil {
		return nil, err
	}
	info2JSON, err := encodeTokens(info2)
	if err != nil {
		return nil, err
	}

	out := types.NewTable(string(RaceInfo), s.TableColumns()...)
	out.Append(id, clean(fields["title"][0]), info1JSON, info2JSON)
	return out, nil
}

// RacePayouts extracts the payout block of a race page, one row per bet
// type row of its tables. Multi-valued cells are kept whitespace separated.
// The page is decoded with the configured payout encoding, whatever it
// declares.
func (e *Extractor) RacePayouts(id string, page []byte) (*types.Table, error) {
	decoded, err := e.payoutEnc.NewDecoder().Bytes(page)
	if err != nil {
		return nil, fmt.Errorf("decode payouts: %w", err)
	}
	doc, err := parser.NewDocumentBytes(decoded)
	if err != nil {
		return nil, err
	}

	scope, ok := doc.Scope(payoutContainer)
	if !ok {
		return nil, &types.ExtractionError{Category: "race", ID: id, Selector: payoutContainer}
	}

	out := types.NewTable(string(RacePayouts), payoutColumns...)
	for _, tbl := range parser.ExtractTables(scope.Query.Selection) {
		for _, row := range tbl.Rows {
			if len(row) < 3 {
				continue
			}
			popularity := ""
			if len(row) > 3 {
				popularity = clean(row[3])
			}
			out.Append(id, clean(row[0]), clean(row[1]), clean(row[2]), popularity)
		}
	}
	if out.Len() == 0 {
		return nil, &types.ExtractionError{Category: "race", ID: id, Selector: payoutContainer + " table tr"}
	}
	return out, nil
}

func encodeTokens(tokens []string) (string, error) {
	if tokens == nil {
		tokens = []string{}
	}
	b, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("encode tokens: %w", err)
	}
	return string(b), nil
}

// DecodeTokens reverses the token list encoding of the race info columns.
func DecodeTokens(cell string) ([]string, error) {
	var tokens []string
	if err := json.Unmarshal([]byte(cell), &tokens); err != nil {
		return nil, fmt.Errorf("decode tokens %q: %w", cell, err)
	}
	return tokens, nil
}
