package types

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Table is a string-typed frame of rows with named columns. Extracted tables
// keep the raw markup text of every cell; normalized tables keep the
// formatted typed values, with "" standing for a missing value.
type Table struct {
	// Name identifies the table (e.g. "raw_race", "df_horse").
	Name string

	// Columns are the ordered column names.
	Columns []string

	// Rows hold one value per column.
	Rows [][]string

	index map[string]int
}

// NewTable creates an empty table with the given columns.
func NewTable(name string, columns ...string) *Table {
	t := &Table{
		Name:    name,
		Columns: append([]string(nil), columns...),
	}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c] = i
	}
}

// Append adds a row. Short rows are padded with empty cells, long rows are truncated.
func (t *Table) Append(row ...string) {
	r := make([]string, len(t.Columns))
	copy(r, row)
	t.Rows = append(t.Rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Get returns the cell at row i for the named column ("" if the column is unknown).
func (t *Table) Get(i int, column string) string {
	c := t.ColumnIndex(column)
	if c < 0 || i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i][c]
}

// Column returns a copy of all values of the named column.
func (t *Table) Column(name string) []string {
	c := t.ColumnIndex(name)
	if c < 0 {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[c]
	}
	return values
}

// Concat appends the rows of other tables sharing the same columns.
func (t *Table) Concat(others ...*Table) error {
	for _, o := range others {
		if o == nil {
			continue
		}
		if !slices.Equal(t.Columns, o.Columns) {
			return fmt.Errorf("concat %s: column mismatch with %s", t.Name, o.Name)
		}
		t.Rows = append(t.Rows, o.Rows...)
	}
	return nil
}

// WriteTSV writes a header line followed by all rows, tab separated.
func (t *Table) WriteTSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write TSV header: %w", err)
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write TSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTSV parses a table written by WriteTSV.
func ReadTSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read TSV %s: %w", name, ErrEmptyResponse)
		}
		return nil, fmt.Errorf("read TSV header: %w", err)
	}

	t := NewTable(name, header...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read TSV row: %w", err)
		}
		t.Append(rec...)
	}
	return t, nil
}
