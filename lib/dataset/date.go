// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"strconv"
	"time"
)

// dateColumn is the column expanded into calendar features.
const dateColumn = "Date"

// dateLayouts are the accepted date spellings, day before month. The
// unpadded layouts also match zero-padded values.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
}

// parseDate parses a day-first date cell.
func parseDate(cell string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, cell); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// ExpandDate replaces the Date column with five calendar feature
// columns: year, month, day, dayofweek (Monday is 0) and is_weekend
// (1 for Saturday and Sunday). Cells that do not parse as a date
// produce empty feature cells and an is_weekend of 0. Reports whether
// a Date column was present.
func (t *Table) ExpandDate() bool {
	index := t.ColumnIndex(dateColumn)
	if index < 0 {
		return false
	}

	rows := len(t.Rows)
	years := make([]string, rows)
	months := make([]string, rows)
	days := make([]string, rows)
	weekdays := make([]string, rows)
	weekends := make([]string, rows)

	for i, row := range t.Rows {
		parsed, ok := parseDate(row[index])
		if !ok {
			weekends[i] = "0"
			continue
		}
		// Go counts weekdays from Sunday; shift so Monday is 0.
		weekday := (int(parsed.Weekday()) + 6) % 7

		years[i] = strconv.Itoa(parsed.Year())
		months[i] = strconv.Itoa(int(parsed.Month()))
		days[i] = strconv.Itoa(parsed.Day())
		weekdays[i] = strconv.Itoa(weekday)
		if weekday >= 5 {
			weekends[i] = "1"
		} else {
			weekends[i] = "0"
		}
	}

	t.setColumn("year", years)
	t.setColumn("month", months)
	t.setColumn("day", days)
	t.setColumn("dayofweek", weekdays)
	t.setColumn("is_weekend", weekends)
	t.dropColumns([]int{t.ColumnIndex(dateColumn)})
	return true
}
