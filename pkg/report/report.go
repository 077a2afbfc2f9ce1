// Package report renders datasets and sweep summaries as text, CSV and XLSX.
//
// Formatting options are passed per call; the package keeps no global
// display state.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Sternrassler/moex-iss-client/pkg/bonds"
	"github.com/Sternrassler/moex-iss-client/pkg/iss"
	"github.com/xuri/excelize/v2"
)

// Options control text rendering.
type Options struct {
	// MaxColumns limits the columns shown; 0 shows all.
	MaxColumns int

	// Width truncates each output line to this many characters; 0 disables.
	Width int

	// Precision is the number of decimals for fractional numbers.
	Precision int
}

// DefaultOptions shows every column in lines up to 200 characters with two
// decimals.
func DefaultOptions() Options {
	return Options{MaxColumns: 0, Width: 200, Precision: 2}
}

// FormatValue renders one cell. Integers keep their digits and null renders
// empty. Fractional numbers use precision decimals; a negative precision
// keeps every digit.
func FormatValue(v any, precision int) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		if _, err := x.Int64(); err == nil || precision < 0 {
			return x.String()
		}
		return formatFixed(x, x.String(), precision)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		if precision < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'f', precision, 64)
		}
		return formatFixed(x, strconv.FormatFloat(x, 'f', -1, 64), precision)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// formatFixed rounds half away from zero on the published digits, so 2.675
// renders as 2.68 rather than the binary float's 2.67.
func formatFixed(v any, fallback string, precision int) string {
	d, ok := iss.AsDecimal(v)
	if !ok {
		return fallback
	}
	return d.StringFixed(int32(precision))
}

func visibleColumns(ds *iss.Dataset, opts Options) (int, bool) {
	n := len(ds.Columns)
	if opts.MaxColumns > 0 && opts.MaxColumns < n {
		return opts.MaxColumns, true
	}
	return n, false
}

// WriteTable writes ds as an aligned text table with a header row.
func WriteTable(w io.Writer, ds *iss.Dataset, opts Options) error {
	var buf strings.Builder
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	n, more := visibleColumns(ds, opts)
	header := ds.Columns[:n]
	if more {
		header = append(header[:n:n], "...")
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, row := range ds.Rows {
		cells := make([]string, 0, n+1)
		for _, v := range row[:n] {
			cells = append(cells, FormatValue(v, opts.Precision))
		}
		if more {
			cells = append(cells, "...")
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, line := range strings.SplitAfter(buf.String(), "\n") {
		if line == "" {
			continue
		}
		if _, err := io.WriteString(w, truncate(line, opts.Width)); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "[%d rows x %d columns]\n", ds.Len(), len(ds.Columns))
	return nil
}

// truncate shortens line to width runes, keeping the trailing newline.
func truncate(line string, width int) string {
	body := strings.TrimRight(line, " \n")
	if width > 0 {
		if r := []rune(body); len(r) > width {
			body = string(r[:width])
		}
	}
	return body + "\n"
}

// WriteSummary writes one line per rating group.
func WriteSummary(w io.Writer, stats []bonds.GroupStat, opts Options) error {
	for _, g := range stats {
		line := fmt.Sprintf("%-20s: %.*f%%  (%d bonds)\n", g.Rating, opts.Precision, g.Mean, g.Count)
		if _, err := io.WriteString(w, truncate(line, opts.Width)); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes ds with a header row. Numbers keep full precision.
func WriteCSV(w io.Writer, ds *iss.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return err
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, v := range row {
			record[i] = FormatValue(v, -1)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes ds as a single-sheet workbook. Numeric cells are stored
// as numbers.
func WriteXLSX(w io.Writer, sheet string, ds *iss.Dataset) error {
	if sheet == "" {
		sheet = ds.Section
	}
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for r, row := range ds.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = xlsxValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func xlsxValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		if f, ok := iss.AsFloat(x); ok {
			return f
		}
		return x.String()
	default:
		return x
	}
}

// WriteSummaryXLSX writes sweep statistics as a workbook with columns
// rating, mean and count.
func WriteSummaryXLSX(w io.Writer, stats []bonds.GroupStat) error {
	ds := &iss.Dataset{Section: "ratings", Columns: []string{"rating", "mean", "count"}}
	for _, g := range stats {
		ds.Rows = append(ds.Rows, []any{g.Rating, g.Mean, float64(g.Count)})
	}
	return WriteXLSX(w, "ratings", ds)
}
