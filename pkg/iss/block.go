package iss

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Block is one named section of an ISS response.
type Block struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

// Document is a decoded ISS response keyed by section name.
type Document map[string]json.RawMessage

// Decode parses an ISS response body. Numbers are kept as json.Number so that
// large integers and prices survive without float rounding.
func Decode(body []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed("decode: %v", err)
	}
	if doc == nil {
		return nil, malformed("empty document")
	}
	return doc, nil
}

// Has reports whether the section is present.
func (d Document) Has(section string) bool {
	_, ok := d[section]
	return ok
}

// Page extracts one section as a Page.
// A missing section or a section without a column list is malformed.
func (d Document) Page(section string) (*Page, error) {
	raw, ok := d[section]
	if !ok {
		return nil, malformed("section %q missing", section)
	}

	var block Block
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&block); err != nil {
		return nil, malformed("section %q: %v", section, err)
	}
	if block.Columns == nil {
		return nil, malformed("section %q has no columns", section)
	}

	for i, row := range block.Data {
		if len(row) != len(block.Columns) {
			return nil, malformed("section %q row %d has %d cells, want %d",
				section, i, len(row), len(block.Columns))
		}
	}

	return &Page{Section: section, Columns: block.Columns, Rows: block.Data}, nil
}

// Page is one section of one response: a column list and aligned rows.
type Page struct {
	Section string
	Columns []string
	Rows    [][]any
}

// Empty reports whether the page carries no rows. An empty page terminates
// pagination.
func (p *Page) Empty() bool {
	return p == nil || len(p.Rows) == 0
}

// Index returns the position of a column by name.
func (p *Page) Index(name string) (int, error) {
	return ColumnIndex(p.Columns, name)
}

// Extract returns the values of one column across all rows.
func (p *Page) Extract(name string) ([]any, error) {
	idx, err := p.Index(name)
	if err != nil {
		return nil, fmt.Errorf("section %s: %w", p.Section, err)
	}
	out := make([]any, len(p.Rows))
	for i, row := range p.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Strings returns the non-empty string values of one column.
func (p *Page) Strings(name string) ([]string, error) {
	values, err := p.Extract(name)
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

// Value returns one cell by row number and column name.
func (p *Page) Value(row int, name string) (any, error) {
	if row < 0 || row >= len(p.Rows) {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, len(p.Rows))
	}
	idx, err := p.Index(name)
	if err != nil {
		return nil, err
	}
	return p.Rows[row][idx], nil
}
