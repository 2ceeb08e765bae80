// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"sort"
	"strconv"
)

// EncodeCategorical replaces every categorical column with integer
// codes: the distinct values are sorted ascending and numbered from
// zero. A column is categorical when it has at least one non-empty
// cell that does not parse as a number. Returns the names of the
// encoded columns.
func (t *Table) EncodeCategorical() []string {
	var names []string
	for index, name := range t.Header {
		if t.isNumericColumn(index) || !t.columnHasValues(index) {
			continue
		}
		names = append(names, name)

		distinct := make(map[string]bool)
		for _, row := range t.Rows {
			distinct[row[index]] = true
		}
		values := make([]string, 0, len(distinct))
		for value := range distinct {
			values = append(values, value)
		}
		sort.Strings(values)

		codes := make(map[string]int, len(values))
		for code, value := range values {
			codes[value] = code
		}
		for _, row := range t.Rows {
			row[index] = strconv.Itoa(codes[row[index]])
		}
	}
	return names
}

// columnHasValues reports whether the column at index has at least one
// non-empty cell.
func (t *Table) columnHasValues(index int) bool {
	for _, row := range t.Rows {
		if row[index] != "" {
			return true
		}
	}
	return false
}
