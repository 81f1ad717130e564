package parser

import (
	"github.com/PuerkitoBio/goquery"
)

// HTMLTable is a markup table split into its header and body rows.
type HTMLTable struct {
	Header []string
	Rows   [][]string
}

// ExtractTable parses a <table> selection.
func ExtractTable(table *goquery.Selection) HTMLTable {
	var t HTMLTable

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		var cells []string
		headerOnly := true
		row.ChildrenFiltered("td, th").Each(func(j int, cell *goquery.Selection) {
			if goquery.NodeName(cell) == "td" {
				headerOnly = false
			}
			cells = append(cells, Text(cell))
		})
		if len(cells) == 0 {
			return
		}
		if headerOnly {
			if t.Header == nil {
				t.Header = cells
			}
			return
		}
		t.Rows = append(t.Rows, cells)
	})

	return t
}

// ExtractTables parses every table inside the selection, in document order.
func ExtractTables(scope *goquery.Selection) []HTMLTable {
	var tables []HTMLTable
	scope.Find("table").Each(func(i int, sel *goquery.Selection) {
		tables = append(tables, ExtractTable(sel))
	})
	return tables
}
