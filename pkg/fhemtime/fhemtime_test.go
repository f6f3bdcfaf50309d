package fhemtime

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "plain timestamp",
			input:    "2023-01-15 12:30:45",
			expected: time.Date(2023, 1, 15, 12, 30, 45, 0, time.Local),
		},
		{
			name:     "fractional seconds",
			input:    "2023-01-15 12:30:45.123",
			expected: time.Date(2023, 1, 15, 12, 30, 45, 123000000, time.Local),
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "date only",
			input:   "2023-01-15",
			wantErr: true,
		},
		{
			name:    "iso 8601",
			input:   "2023-01-15T12:30:45Z",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse(%q) expected error, got %v", tt.input, result)
				}
				if !result.IsZero() {
					t.Errorf("Parse(%q) should return zero time on error, got %v", tt.input, result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if !result.Equal(tt.expected) {
				t.Errorf("Parse(%q) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{
			name:     "normal time",
			input:    time.Date(2023, 1, 15, 12, 30, 45, 0, time.Local),
			expected: "2023-01-15 12:30:45",
		},
		{
			name:     "zero time",
			input:    time.Time{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Format(tt.input)
			if result != tt.expected {
				t.Errorf("Format(%v) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	in := "2023-01-15 12:30:45"
	parsed, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse(%q) unexpected error: %v", in, err)
	}
	if out := Format(parsed); out != in {
		t.Errorf("round trip = %q, expected %q", out, in)
	}
}

func TestIsTimestamp(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"2023-01-15 12:30:45", true},
		{"2023-01-15 12:30:45.123", true},
		{"2023-01-15", false},
		{"12:30:45", false},
		{"21.5", false},
		{"on", false},
		{"", false},
		{"2023-01-15 12:30:45 extra", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsTimestamp(tt.input); got != tt.expected {
				t.Errorf("IsTimestamp(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMustParse(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustParse should panic on malformed input")
		}
	}()
	MustParse("not a timestamp")
}
