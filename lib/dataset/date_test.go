// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"reflect"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		cell string
		want time.Time
		ok   bool
	}{
		{"01/07/2021", time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC), true},
		{"1/7/2021", time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC), true},
		{"15-03-2022", time.Date(2022, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"2021-07-01", time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC), true},
		{"31/02/2021", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, test := range tests {
		got, ok := parseDate(test.cell)
		if ok != test.ok {
			t.Errorf("parseDate(%q) ok = %v, want %v", test.cell, ok, test.ok)
			continue
		}
		if ok && !got.Equal(test.want) {
			t.Errorf("parseDate(%q) = %v, want %v", test.cell, got, test.want)
		}
	}
}

func TestExpandDate(t *testing.T) {
	table := &Table{
		Header: []string{"Date", "PM10"},
		Rows: [][]string{
			{"05/06/2021", "20"}, // Saturday
			{"07/06/2021", "30"}, // Monday
			{"broken", "40"},
		},
	}
	if !table.ExpandDate() {
		t.Fatal("ExpandDate = false, want true")
	}
	wantHeader := []string{"PM10", "year", "month", "day", "dayofweek", "is_weekend"}
	if !reflect.DeepEqual(table.Header, wantHeader) {
		t.Fatalf("header = %v, want %v", table.Header, wantHeader)
	}
	wantRows := [][]string{
		{"20", "2021", "6", "5", "5", "1"},
		{"30", "2021", "6", "7", "0", "0"},
		{"40", "", "", "", "", "0"},
	}
	if !reflect.DeepEqual(table.Rows, wantRows) {
		t.Errorf("rows = %v, want %v", table.Rows, wantRows)
	}
}

func TestExpandDateAbsent(t *testing.T) {
	table := &Table{
		Header: []string{"PM10"},
		Rows:   [][]string{{"20"}},
	}
	if table.ExpandDate() {
		t.Fatal("ExpandDate = true, want false")
	}
	if want := []string{"PM10"}; !reflect.DeepEqual(table.Header, want) {
		t.Errorf("header = %v, want %v", table.Header, want)
	}
}
