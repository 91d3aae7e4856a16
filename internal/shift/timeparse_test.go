package shift

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q) returned an error: %v", name, err)
	}
	return loc
}

func TestParseDate(t *testing.T) {
	date, err := ParseDate("Wed 06/05/24")
	if err != nil {
		t.Fatalf("ParseDate() returned an error: %v", err)
	}

	expected := Date{Year: 2024, Month: time.June, Day: 5}
	if date != expected {
		t.Errorf("Expected %v, got %v", expected, date)
	}
}

func TestParseDate_TwoDigitYearIn2000s(t *testing.T) {
	for yy := 0; yy < 100; yy++ {
		text := fmt.Sprintf("Mon 01/15/%02d", yy)
		date, err := ParseDate(text)
		if err != nil {
			t.Fatalf("ParseDate(%q) returned an error: %v", text, err)
		}
		if date.Year != 2000+yy {
			t.Errorf("ParseDate(%q): expected year %d, got %d", text, 2000+yy, date.Year)
		}
	}
}

func TestParseDate_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"06/05/24",
		"Wed 6/5/24",
		"Wed 06/05/2024",
		"Wednesday",
		"Wed 13/05/24",
		"Thu 02/30/24",
	}

	for _, input := range inputs {
		_, err := ParseDate(input)
		var formatErr *FormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("ParseDate(%q): expected *FormatError, got %v", input, err)
			continue
		}
		if formatErr.Field != "date" {
			t.Errorf("ParseDate(%q): expected field 'date', got '%s'", input, formatErr.Field)
		}
	}
}

func TestCombineDateTime_24Hour(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	date := Date{Year: 2024, Month: time.June, Day: 5}

	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 1, 15, 30, 59} {
			text := fmt.Sprintf("%02d:%02d", hour, minute)
			got, err := CombineDateTime(date, text, loc)
			if err != nil {
				t.Fatalf("CombineDateTime(%q) returned an error: %v", text, err)
			}
			if got.Hour() != hour || got.Minute() != minute {
				t.Errorf("CombineDateTime(%q): expected %02d:%02d, got %02d:%02d", text, hour, minute, got.Hour(), got.Minute())
			}
			if got.Location() != loc {
				t.Errorf("CombineDateTime(%q): expected location %v, got %v", text, loc, got.Location())
			}
		}
	}
}

func TestCombineDateTime_12Hour(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	date := Date{Year: 2024, Month: time.June, Day: 5}

	tests := []struct {
		input  string
		hour   int
		minute int
	}{
		{"12:00 AM", 0, 0},
		{"12:00 PM", 12, 0},
		{"12 AM", 0, 0},
		{"12:45 PM", 12, 45},
		{"9:30PM", 21, 30},
		{"2:30 pm", 14, 30},
	}
	for h := 1; h <= 11; h++ {
		tests = append(tests,
			struct {
				input  string
				hour   int
				minute int
			}{fmt.Sprintf("%d:07 AM", h), h, 7},
			struct {
				input  string
				hour   int
				minute int
			}{fmt.Sprintf("%d:07 PM", h), h + 12, 7},
		)
	}

	for _, tt := range tests {
		got, err := CombineDateTime(date, tt.input, loc)
		if err != nil {
			t.Errorf("CombineDateTime(%q) returned an error: %v", tt.input, err)
			continue
		}
		if got.Hour() != tt.hour || got.Minute() != tt.minute {
			t.Errorf("CombineDateTime(%q): expected %02d:%02d, got %02d:%02d", tt.input, tt.hour, tt.minute, got.Hour(), got.Minute())
		}
	}
}

// Minutes must come from the string being parsed, never from a previous call.
func TestCombineDateTime_MinutesBoundPerCall(t *testing.T) {
	loc := mustLoad(t, "UTC")
	date := Date{Year: 2024, Month: time.January, Day: 1}

	first, err := CombineDateTime(date, "9:45 AM", loc)
	if err != nil {
		t.Fatalf("CombineDateTime() returned an error: %v", err)
	}
	second, err := CombineDateTime(date, "5:00 PM", loc)
	if err != nil {
		t.Fatalf("CombineDateTime() returned an error: %v", err)
	}

	if first.Minute() != 45 {
		t.Errorf("Expected first minute 45, got %d", first.Minute())
	}
	if second.Minute() != 0 {
		t.Errorf("Expected second minute 0, got %d", second.Minute())
	}
}

func TestCombineDateTime_Invalid(t *testing.T) {
	loc := mustLoad(t, "UTC")
	date := Date{Year: 2024, Month: time.January, Day: 1}

	inputs := []string{"", "noon", "25:00", "12:60", "13:00 PM", "0:30 AM", "9.30 AM", "9:5"}
	for _, input := range inputs {
		_, err := CombineDateTime(date, input, loc)
		var formatErr *FormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("CombineDateTime(%q): expected *FormatError, got %v", input, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	rec := Record{Date: "Wed 06/05/24", Start: "9:00 AM", End: "5:00 PM"}

	interval, err := Normalize(rec, loc)
	if err != nil {
		t.Fatalf("Normalize() returned an error: %v", err)
	}

	expectedStart := time.Date(2024, time.June, 5, 9, 0, 0, 0, loc)
	expectedEnd := time.Date(2024, time.June, 5, 17, 0, 0, 0, loc)
	if !interval.Start.Equal(expectedStart) {
		t.Errorf("Expected start %v, got %v", expectedStart, interval.Start)
	}
	if !interval.End.Equal(expectedEnd) {
		t.Errorf("Expected end %v, got %v", expectedEnd, interval.End)
	}
}

func TestNormalize_Overnight(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	rec := Record{Date: "Fri 06/07/24", Start: "10:00 PM", End: "6:00 AM"}

	interval, err := Normalize(rec, loc)
	if err != nil {
		t.Fatalf("Normalize() returned an error: %v", err)
	}

	expectedEnd := time.Date(2024, time.June, 8, 6, 0, 0, 0, loc)
	if !interval.End.Equal(expectedEnd) {
		t.Errorf("Expected overnight end %v, got %v", expectedEnd, interval.End)
	}
}

func TestNormalize_BadTime(t *testing.T) {
	loc := mustLoad(t, "UTC")
	rec := Record{Date: "Wed 06/05/24", Start: "9:00 AM", End: "later"}

	_, err := Normalize(rec, loc)
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected *FormatError, got %v", err)
	}
	if formatErr.Input != "later" {
		t.Errorf("Expected input 'later', got '%s'", formatErr.Input)
	}
}

func TestLoadLocation_Empty(t *testing.T) {
	if _, err := LoadLocation(""); err == nil {
		t.Error("LoadLocation(\"\") should have returned an error")
	}
}
