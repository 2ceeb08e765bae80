// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// parseNumber parses a cell as a float, tolerating surrounding
// whitespace the way spreadsheet exports produce it.
func parseNumber(cell string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// formatNumber renders a float with the shortest representation that
// round-trips.
func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}

// isNumericColumn reports whether every non-empty cell of the column
// at index parses as a number. Columns with no non-empty cells are not
// numeric.
func (t *Table) isNumericColumn(index int) bool {
	seen := false
	for _, row := range t.Rows {
		cell := row[index]
		if cell == "" {
			continue
		}
		if _, ok := parseNumber(cell); !ok {
			return false
		}
		seen = true
	}
	return seen
}

// NumericColumns returns the names of all numeric columns in header
// order.
func (t *Table) NumericColumns() []string {
	var names []string
	for i, name := range t.Header {
		if t.isNumericColumn(i) {
			names = append(names, name)
		}
	}
	return names
}

// quantileSorted computes the q-quantile of ascending values by linear
// interpolation between the two nearest ranks.
func quantileSorted(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	position := q * float64(len(values)-1)
	lower := int(math.Floor(position))
	upper := int(math.Ceil(position))
	if lower == upper {
		return values[lower]
	}
	fraction := position - float64(lower)
	return values[lower] + fraction*(values[upper]-values[lower])
}

// ClipOutliers limits every numeric column to the interquartile fence
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR] and returns the number of cells
// changed. Empty cells are left alone and excluded from the quartiles.
func (t *Table) ClipOutliers() int {
	clipped := 0
	for index := range t.Header {
		if !t.isNumericColumn(index) {
			continue
		}

		var values []float64
		for _, row := range t.Rows {
			if row[index] == "" {
				continue
			}
			value, _ := parseNumber(row[index])
			values = append(values, value)
		}
		sort.Float64s(values)

		q1 := quantileSorted(values, 0.25)
		q3 := quantileSorted(values, 0.75)
		fence := 1.5 * (q3 - q1)
		low, high := q1-fence, q3+fence

		for _, row := range t.Rows {
			if row[index] == "" {
				continue
			}
			value, _ := parseNumber(row[index])
			switch {
			case value < low:
				row[index] = formatNumber(low)
				clipped++
			case value > high:
				row[index] = formatNumber(high)
				clipped++
			}
		}
	}
	return clipped
}

// Standardize rescales every numeric column to zero mean and unit
// variance using the population standard deviation. A constant column
// keeps its values centred at zero rather than dividing by zero. Empty
// cells stay empty and do not contribute to the statistics. Returns
// the names of the columns rescaled.
func (t *Table) Standardize() []string {
	var names []string
	for index, name := range t.Header {
		if !t.isNumericColumn(index) {
			continue
		}
		names = append(names, name)

		var sum float64
		count := 0
		for _, row := range t.Rows {
			if row[index] == "" {
				continue
			}
			value, _ := parseNumber(row[index])
			sum += value
			count++
		}
		mean := sum / float64(count)

		var variance float64
		for _, row := range t.Rows {
			if row[index] == "" {
				continue
			}
			value, _ := parseNumber(row[index])
			variance += (value - mean) * (value - mean)
		}
		deviation := math.Sqrt(variance / float64(count))
		if deviation == 0 {
			deviation = 1
		}

		for _, row := range t.Rows {
			if row[index] == "" {
				continue
			}
			value, _ := parseNumber(row[index])
			row[index] = formatNumber((value - mean) / deviation)
		}
	}
	return names
}
