// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import "io"

// Summary records what each preprocessing step did to a table.
type Summary struct {
	InputRows           int
	InputColumns        int
	EmptyColumnsDropped []string
	MissingRowsDropped  int
	DuplicatesDropped   int
	CellsClipped        int
	DateExpanded        bool
	EncodedColumns      []string
	ScaledColumns       []string
	OutputRows          int
	OutputColumns       int
}

// Preprocess runs the full cleaning pipeline on the table, in order:
// drop all-missing columns, drop rows with missing cells, drop
// duplicate rows, clip numeric outliers to the interquartile fence,
// expand the Date column into calendar features, encode categorical
// columns as integers and standardize every numeric column.
func Preprocess(table *Table) *Summary {
	summary := &Summary{
		InputRows:    len(table.Rows),
		InputColumns: len(table.Header),
	}
	summary.EmptyColumnsDropped = table.DropEmptyColumns()
	summary.MissingRowsDropped = table.DropMissingRows()
	summary.DuplicatesDropped = table.DropDuplicateRows()
	summary.CellsClipped = table.ClipOutliers()
	summary.DateExpanded = table.ExpandDate()
	summary.EncodedColumns = table.EncodeCategorical()
	summary.ScaledColumns = table.Standardize()
	summary.OutputRows = len(table.Rows)
	summary.OutputColumns = len(table.Header)
	return summary
}

// Transform reads CSV from r, preprocesses it and writes the result
// to w as comma-separated CSV. A zero separator reads the input with
// ';'.
func Transform(r io.Reader, w io.Writer, separator rune) (*Summary, error) {
	table, err := ReadCSV(r, separator)
	if err != nil {
		return nil, err
	}
	summary := Preprocess(table)
	if err := table.WriteCSV(w); err != nil {
		return nil, err
	}
	return summary, nil
}
