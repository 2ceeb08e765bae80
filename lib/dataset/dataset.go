// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset implements the air quality preprocessing transform
// natively: CSV cleaning, IQR outlier clipping, calendar feature
// expansion from a Date column, label encoding of categorical columns,
// and standardization of numeric columns.
//
// A Table holds every cell as a string; steps parse what they need and
// write formatted values back. That keeps pass-through cells
// byte-identical and makes "missing" a property of the cell text
// rather than a sentinel value.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// missingMarkers are the cell values treated as missing, matching the
// common NA spellings found in exported spreadsheets. Matching is
// exact: surrounding whitespace makes a cell non-missing.
var missingMarkers = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// IsMissing reports whether a cell value counts as missing.
func IsMissing(cell string) bool {
	return missingMarkers[cell]
}

// Table is a rectangular block of string cells with a header row.
// Rows all have len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadCSV parses CSV data into a Table. The first record is the
// header. A zero separator defaults to ';', the separator of the raw
// air quality export.
func ReadCSV(r io.Reader, separator rune) (*Table, error) {
	if separator == 0 {
		separator = ';'
	}

	reader := csv.NewReader(r)
	reader.Comma = separator

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv input is empty")
	}

	return &Table{
		Header: records[0],
		Rows:   records[1:],
	}, nil
}

// WriteCSV writes the table as comma-separated CSV, header first.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, header := range t.Header {
		if header == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells, or nil when the
// column does not exist.
func (t *Table) Column(name string) []string {
	index := t.ColumnIndex(name)
	if index < 0 {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[index]
	}
	return values
}

// setColumn assigns values to the named column, appending a new column
// when the name is not present. values must have one cell per row.
func (t *Table) setColumn(name string, values []string) {
	index := t.ColumnIndex(name)
	if index < 0 {
		t.Header = append(t.Header, name)
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], values[i])
		}
		return
	}
	for i := range t.Rows {
		t.Rows[i][index] = values[i]
	}
}

// dropColumns removes the columns at the given indices (which must be
// sorted ascending).
func (t *Table) dropColumns(indices []int) {
	if len(indices) == 0 {
		return
	}
	drop := make(map[int]bool, len(indices))
	for _, index := range indices {
		drop[index] = true
	}

	t.Header = filterCells(t.Header, drop)
	for i, row := range t.Rows {
		t.Rows[i] = filterCells(row, drop)
	}
}

// filterCells returns cells with the dropped positions removed.
func filterCells(cells []string, drop map[int]bool) []string {
	kept := make([]string, 0, len(cells)-len(drop))
	for i, cell := range cells {
		if !drop[i] {
			kept = append(kept, cell)
		}
	}
	return kept
}

// rowKey builds a collision-free identity for a row, used by duplicate
// detection. Cells are length-prefixed so adjacent cells cannot blur
// together.
func rowKey(row []string) string {
	var b strings.Builder
	for _, cell := range row {
		fmt.Fprintf(&b, "%d:%s;", len(cell), cell)
	}
	return b.String()
}
