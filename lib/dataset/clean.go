// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

// DropEmptyColumns removes columns whose every cell is missing and
// returns the names of the removed columns. Spreadsheet exports with a
// trailing separator produce such columns, with empty header names.
func (t *Table) DropEmptyColumns() []string {
	var indices []int
	var names []string
	for i := range t.Header {
		empty := true
		for _, row := range t.Rows {
			if !IsMissing(row[i]) {
				empty = false
				break
			}
		}
		if empty {
			indices = append(indices, i)
			names = append(names, t.Header[i])
		}
	}
	t.dropColumns(indices)
	return names
}

// DropMissingRows removes rows containing at least one missing cell
// and returns the number of rows removed.
func (t *Table) DropMissingRows() int {
	kept := t.Rows[:0]
	dropped := 0
	for _, row := range t.Rows {
		if rowHasMissing(row) {
			dropped++
			continue
		}
		kept = append(kept, row)
	}
	t.Rows = kept
	return dropped
}

func rowHasMissing(row []string) bool {
	for _, cell := range row {
		if IsMissing(cell) {
			return true
		}
	}
	return false
}

// DropDuplicateRows removes rows identical to an earlier row, keeping
// the first occurrence, and returns the number of rows removed.
func (t *Table) DropDuplicateRows() int {
	seen := make(map[string]bool, len(t.Rows))
	kept := t.Rows[:0]
	dropped := 0
	for _, row := range t.Rows {
		key := rowKey(row)
		if seen[key] {
			dropped++
			continue
		}
		seen[key] = true
		kept = append(kept, row)
	}
	t.Rows = kept
	return dropped
}
