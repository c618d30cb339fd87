// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils holds string helpers for postcodes and report output.
package textutils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UpperASCIIFolding folds compatibility forms (full-width digits and letters
// pasted from spreadsheets), removes accents, uppercases and trims spaces.
func UpperASCIIFolding(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFKD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		s,
	)

	return strings.TrimSpace(strings.ToUpper(s))
}

// NormalizePostcode returns the canonical spelling of a postcode: folded,
// uppercase, with internal whitespace collapsed to a single space. UK
// postcodes typed without the separator ("SW1A1AA") get it reinserted
// before the three character inward code.
func NormalizePostcode(postcode string) string {
	fields := strings.Fields(UpperASCIIFolding(postcode))
	if len(fields) == 0 {
		return ""
	}

	if len(fields) == 1 {
		compact := fields[0]
		if n := len(compact); n >= 5 && n <= 7 && isInwardCode(compact[n-3:]) {
			return compact[:n-3] + " " + compact[n-3:]
		}

		return compact
	}

	return strings.Join(fields, " ")
}

// CompactPostcode strips every space, the form used in lookup URLs.
func CompactPostcode(postcode string) string {
	return strings.ReplaceAll(NormalizePostcode(postcode), " ", "")
}

// isInwardCode matches the digit-letter-letter tail of a UK postcode.
func isInwardCode(s string) bool {
	return len(s) == 3 &&
		s[0] >= '0' && s[0] <= '9' &&
		s[1] >= 'A' && s[1] <= 'Z' &&
		s[2] >= 'A' && s[2] <= 'Z'
}

// IsBlank reports whether a raw cell value should be treated as a missing
// postcode.
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)

	return s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null")
}

// FormatInt formats an integer with commas for human readability.
func FormatInt(n int64) string {
	in := strconv.FormatInt(n, 10)

	numOfDigits := len(in)
	if n < 0 {
		numOfDigits-- // First character is the - sign (not a digit)
	}

	numOfCommas := (numOfDigits - 1) / 3

	out := make([]byte, len(in)+numOfCommas)
	if n < 0 {
		in, out[0] = in[1:], '-'
	}

	for i, j, k := len(in)-1, len(out)-1, 0; ; i, j = i-1, j-1 {
		out[j] = in[i]
		if i == 0 {
			return string(out)
		}

		if k++; k == 3 {
			j, k = j-1, 0
			out[j] = ','
		}
	}
}
