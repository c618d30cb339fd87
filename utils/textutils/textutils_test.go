// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package textutils

import "testing"

func TestNormalizePostcode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SW1A 1AA", "SW1A 1AA"},
		{"  sw1a   1aa ", "SW1A 1AA"},
		{"sw1a1aa", "SW1A 1AA"},
		{"M11AE", "M1 1AE"},
		{"ＳＷ１Ａ　１ＡＡ", "SW1A 1AA"}, // full-width input
		{"", ""},
		{"   ", ""},
		{"75001", "75001"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePostcode(tt.in); got != tt.want {
				t.Errorf("NormalizePostcode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompactPostcode(t *testing.T) {
	if got := CompactPostcode(" sw1a 1aa"); got != "SW1A1AA" {
		t.Errorf("CompactPostcode() = %q, want %q", got, "SW1A1AA")
	}
}

func TestIsBlank(t *testing.T) {
	for _, s := range []string{"", "  ", "nan", "NaN", "NULL"} {
		if !IsBlank(s) {
			t.Errorf("IsBlank(%q) = false, want true", s)
		}
	}

	if IsBlank("SW1A 1AA") {
		t.Error("IsBlank(\"SW1A 1AA\") = true, want false")
	}
}

func TestFormatInt(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{-1234567, "-1,234,567"},
	}

	for _, tt := range tests {
		if got := FormatInt(tt.in); got != tt.want {
			t.Errorf("FormatInt(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
