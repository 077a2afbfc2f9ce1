package iss

import (
	"slices"
	"strings"
)

// ColumnIndex returns the position of name in columns.
// An exact match wins; otherwise the first case-insensitive match is used
// (ISS spells the same field "SECID" or "secid" depending on the endpoint).
func ColumnIndex(columns []string, name string) (int, error) {
	if idx := slices.Index(columns, name); idx >= 0 {
		return idx, nil
	}
	for i, c := range columns {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return -1, &FieldNotFoundError{Field: name, Available: slices.Clone(columns)}
}

// SameColumnSet reports whether a and b contain the same names, in any order.
func SameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

// Realign reorders the cells of rows (laid out by from) into the order of to.
// Both lists must contain the same set of names.
func Realign(rows [][]any, from, to []string) ([][]any, error) {
	perm := make([]int, len(to))
	for i, name := range to {
		idx := slices.Index(from, name)
		if idx < 0 {
			return nil, &FieldNotFoundError{Field: name, Available: slices.Clone(from)}
		}
		perm[i] = idx
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		aligned := make([]any, len(perm))
		for i, src := range perm {
			aligned[i] = row[src]
		}
		out[r] = aligned
	}
	return out, nil
}
