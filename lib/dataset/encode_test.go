// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"reflect"
	"testing"
)

func TestEncodeCategorical(t *testing.T) {
	table := &Table{
		Header: []string{"Station", "PM10", "Flag"},
		Rows: [][]string{
			{"banana", "20", "12x"},
			{"apple", "30", "12x"},
			{"cherry", "40", "7"},
			{"apple", "50", "7"},
		},
	}
	want := []string{"Station", "Flag"}
	if got := table.EncodeCategorical(); !reflect.DeepEqual(got, want) {
		t.Errorf("encoded = %v, want %v", got, want)
	}
	// Codes follow the sorted distinct values: apple=0, banana=1,
	// cherry=2.
	if got := table.Column("Station"); !reflect.DeepEqual(got, []string{"1", "0", "2", "0"}) {
		t.Errorf("Station = %v, want [1 0 2 0]", got)
	}
	if got := table.Column("Flag"); !reflect.DeepEqual(got, []string{"0", "0", "1", "1"}) {
		t.Errorf("Flag = %v, want [0 0 1 1]", got)
	}
	if got := table.Column("PM10"); !reflect.DeepEqual(got, []string{"20", "30", "40", "50"}) {
		t.Errorf("PM10 = %v, want unchanged", got)
	}
}

func TestEncodeCategoricalSkipsEmptyColumn(t *testing.T) {
	table := &Table{
		Header: []string{"Blank"},
		Rows:   [][]string{{""}, {""}},
	}
	if got := table.EncodeCategorical(); len(got) != 0 {
		t.Errorf("encoded = %v, want none", got)
	}
	if got := table.Rows[0][0]; got != "" {
		t.Errorf("cell = %q, want empty", got)
	}
}
