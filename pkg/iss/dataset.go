package iss

import (
	"fmt"
	"slices"
)

// Dataset is the materialized result of one paginated query.
type Dataset struct {
	// Section is the ISS section the rows were read from.
	Section string

	// Columns is taken from the first non-empty page.
	Columns []string

	// Rows are positionally aligned to Columns.
	Rows [][]any

	// Pages is the number of page calls made, an empty terminator included.
	Pages int

	// Truncated is set when pagination stopped on a malformed page
	// instead of an empty one.
	Truncated bool
}

// NewDataset builds a Dataset from a single page.
func NewDataset(p *Page) *Dataset {
	return &Dataset{
		Section: p.Section,
		Columns: slices.Clone(p.Columns),
		Rows:    p.Rows,
		Pages:   1,
	}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Index returns the position of a column by name.
func (d *Dataset) Index(name string) (int, error) {
	return ColumnIndex(d.Columns, name)
}

// Column returns all values of one column.
func (d *Dataset) Column(name string) ([]any, error) {
	idx, err := d.Index(name)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Strings returns the non-empty string values of one column, in row order.
func (d *Dataset) Strings(name string) ([]string, error) {
	values, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := AsString(v); ok && s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Floats returns the numeric values of one column; non-numeric cells are skipped.
func (d *Dataset) Floats(name string) ([]float64, error) {
	values, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := AsFloat(v); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Value returns one cell by row number and column name.
func (d *Dataset) Value(row int, name string) (any, error) {
	if row < 0 || row >= len(d.Rows) {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, len(d.Rows))
	}
	idx, err := d.Index(name)
	if err != nil {
		return nil, err
	}
	return d.Rows[row][idx], nil
}

// Float returns one numeric cell. ok is false for null or non-numeric cells.
func (d *Dataset) Float(row int, name string) (float64, bool, error) {
	v, err := d.Value(row, name)
	if err != nil {
		return 0, false, err
	}
	f, ok := AsFloat(v)
	return f, ok, nil
}

// Text returns one text cell. ok is false for null cells.
func (d *Dataset) Text(row int, name string) (string, bool, error) {
	v, err := d.Value(row, name)
	if err != nil {
		return "", false, err
	}
	s, ok := AsString(v)
	return s, ok, nil
}

// Records returns every row as a column-name keyed map.
func (d *Dataset) Records() []map[string]any {
	out := make([]map[string]any, len(d.Rows))
	for i, row := range d.Rows {
		rec := make(map[string]any, len(d.Columns))
		for j, c := range d.Columns {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	return out
}
