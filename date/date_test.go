package date

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2024-01-31", want: New(2024, time.January, 31)},
		{in: "2024-7-1", want: New(2024, time.July, 1)},
		{in: "2024-02-30", wantErr: true}, // out-of-range day, unlike time.Date no normalization
		{in: "31-01-2024", wantErr: true},
		{in: "not a date", wantErr: true},
	}
	for _, tc := range testCases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDate_Add(t *testing.T) {
	d := MustParse("2024-12-30")
	if got := d.Add(2); got != MustParse("2025-01-01") {
		t.Errorf("Add(2) = %v, want 2025-01-01", got)
	}
	if got := d.Add(-30); got != MustParse("2024-11-30") {
		t.Errorf("Add(-30) = %v, want 2024-11-30", got)
	}
}

func TestDate_Digits(t *testing.T) {
	if got := MustParse("2024-03-05").Digits(); got != "20240305" {
		t.Errorf("Digits() = %q, want 20240305", got)
	}
}

func TestRange_Validate(t *testing.T) {
	if err := NewRange(MustParse("2024-02-01"), MustParse("2024-01-01")).Validate(); err == nil {
		t.Error("inverted range should not validate")
	}
	if err := NewRange(MustParse("2024-01-01"), MustParse("2024-01-01")).Validate(); err != nil {
		t.Errorf("single-day range should validate, got %v", err)
	}
	if err := (Range{}).Validate(); err == nil {
		t.Error("zero range should not validate")
	}
}

func TestRange_ContainsTime(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	r := NewRange(MustParse("2024-01-10"), MustParse("2024-01-11"))

	testCases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"start of first day", time.Date(2024, 1, 10, 0, 0, 0, 0, kst), true},
		{"end of last day", time.Date(2024, 1, 11, 23, 59, 59, 0, kst), true},
		{"just before", time.Date(2024, 1, 9, 23, 59, 59, 0, kst), false},
		{"midnight after", time.Date(2024, 1, 12, 0, 0, 0, 0, kst), false},
		// 2024-01-09 15:30 UTC is 2024-01-10 00:30 KST.
		{"utc instant inside in kst", time.Date(2024, 1, 9, 15, 30, 0, 0, time.UTC), true},
	}
	for _, tc := range testCases {
		if got := r.ContainsTime(tc.t, kst); got != tc.want {
			t.Errorf("%s: ContainsTime(%v) = %v, want %v", tc.name, tc.t, got, tc.want)
		}
	}
}

func TestRange_Days(t *testing.T) {
	if got := NewRange(MustParse("2024-01-01"), MustParse("2024-01-01")).Days(); got != 1 {
		t.Errorf("Days() = %d, want 1", got)
	}
	if got := NewRange(MustParse("2024-01-01"), MustParse("2024-01-08")).Days(); got != 8 {
		t.Errorf("Days() = %d, want 8", got)
	}
}
