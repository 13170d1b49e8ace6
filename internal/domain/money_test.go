package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParsePounds(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Pence
		wantErr bool
	}{
		{"whole pounds", "45", 4500, false},
		{"two decimals", "45.00", 4500, false},
		{"one decimal", "1.5", 150, false},
		{"symbol and separator", "£1,234.50", 123450, false},
		{"padded", "  12.34 ", 1234, false},
		{"leading dot", ".5", 50, false},
		{"three decimals", "1.234", 0, true},
		{"negative", "-1.00", 0, true},
		{"empty", "", 0, true},
		{"letters", "abc", 0, true},
		{"trailing dot", "3.", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePounds(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("Expected ErrInvalidAmount for %q, got %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestPence_Render(t *testing.T) {
	tests := []struct {
		p      Pence
		pounds string
		str    string
	}{
		{123450, "1234.50", "£1234.50"},
		{5, "0.05", "£0.05"},
		{0, "0.00", "£0.00"},
		{-305, "-3.05", "-£3.05"},
	}
	for _, tt := range tests {
		if got := tt.p.Pounds(); got != tt.pounds {
			t.Errorf("Expected Pounds() %q, got %q", tt.pounds, got)
		}
		if got := tt.p.String(); got != tt.str {
			t.Errorf("Expected String() %q, got %q", tt.str, got)
		}
	}
}

func TestPounds_ConvertsTotalOnce(t *testing.T) {
	var total Pence
	for _, p := range []Pence{1, 2, 3, 333, 999, 10001} {
		total += p
	}
	if total != 11339 {
		t.Fatalf("Expected 11339, got %d", total)
	}
	if total.Pounds() != "113.39" {
		t.Errorf("Expected 113.39, got %s", total.Pounds())
	}
}

func TestTaxYearFor(t *testing.T) {
	tests := []struct {
		name      string
		at        time.Time
		wantStart time.Time
		wantEnd   time.Time
		label     string
	}{
		{
			name:      "last day of tax year",
			at:        time.Date(2025, 4, 5, 12, 0, 0, 0, time.UTC),
			wantStart: Date(2024, time.April, 6),
			wantEnd:   Date(2025, time.April, 5),
			label:     "2024-25",
		},
		{
			name:      "first day of tax year",
			at:        time.Date(2025, 4, 6, 9, 0, 0, 0, time.UTC),
			wantStart: Date(2025, time.April, 6),
			wantEnd:   Date(2026, time.April, 5),
			label:     "2025-26",
		},
		{
			name:      "late UTC evening is already the 6th in London",
			at:        time.Date(2025, 4, 5, 23, 30, 0, 0, time.UTC),
			wantStart: Date(2025, time.April, 6),
			wantEnd:   Date(2026, time.April, 5),
			label:     "2025-26",
		},
		{
			name:      "january belongs to previous start year",
			at:        time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
			wantStart: Date(2025, time.April, 6),
			wantEnd:   Date(2026, time.April, 5),
			label:     "2025-26",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TaxYearFor(tt.at)
			if !got.Start.Equal(tt.wantStart) || !got.End.Equal(tt.wantEnd) {
				t.Errorf("Expected %v..%v, got %v..%v", tt.wantStart, tt.wantEnd, got.Start, got.End)
			}
			if got.TaxYearLabel() != tt.label {
				t.Errorf("Expected label %s, got %s", tt.label, got.TaxYearLabel())
			}
		})
	}
}

func TestTaxYearLabel_CenturyWrap(t *testing.T) {
	if got := TaxYearStarting(1999).TaxYearLabel(); got != "1999-00" {
		t.Errorf("Expected 1999-00, got %s", got)
	}
}

func TestNewDateRange(t *testing.T) {
	_, err := NewDateRange(Date(2025, 5, 2), Date(2025, 5, 1))
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("Expected ErrInvalidDateRange, got %v", err)
	}

	r, err := NewDateRange(Date(2025, 5, 1), Date(2025, 5, 1))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !r.Contains(time.Date(2025, 5, 1, 23, 59, 0, 0, time.UTC)) {
		t.Error("Expected single-day range to contain its own day")
	}
	if r.Contains(Date(2025, 5, 2)) {
		t.Error("Expected range to exclude the following day")
	}
	if !r.EndExclusive().Equal(Date(2025, 5, 2)) {
		t.Errorf("Expected exclusive end 2025-05-02, got %v", r.EndExclusive())
	}
}

func TestClockTime(t *testing.T) {
	c, err := ParseClockTime("19:30:00")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.String() != "19:30" {
		t.Errorf("Expected 19:30, got %s", c)
	}

	if _, err := ParseClockTime("7pm"); err == nil {
		t.Error("Expected error for 7pm")
	}

	summer := c.On(Date(2025, time.July, 1))
	if summer.UTC().Hour() != 18 {
		t.Errorf("Expected 18:30 UTC during BST, got %v", summer.UTC())
	}
}
