// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"log"

	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/jcodagnone/postcodes/utils/textutils"
)

// Summary counts the outcome of a batch run.
type Summary struct {
	Total      int
	Geocoded   int
	Skipped    int
	Failed     int
	CacheHits  int
	OutOfRange int

	ProviderSuccesses map[geocoding.Provider]int
}

// SuccessRate is the percentage of rows that were geocoded.
func (s *Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}

	return float64(s.Geocoded) / float64(s.Total) * 100
}

// Log prints the end of run report.
func (s *Summary) Log() {
	log.Printf("SUMMARY:")
	log.Printf("Total rows processed: %s", textutils.FormatInt(int64(s.Total)))
	log.Printf("Successfully geocoded: %s", textutils.FormatInt(int64(s.Geocoded)))
	log.Printf("Failed: %s", textutils.FormatInt(int64(s.Failed)))
	log.Printf("Skipped (empty postcode): %s", textutils.FormatInt(int64(s.Skipped)))

	if s.CacheHits > 0 {
		log.Printf("Served from cache: %s", textutils.FormatInt(int64(s.CacheHits)))
	}

	if s.OutOfRange > 0 {
		log.Printf("⚠️  Out of range coordinates: %s", textutils.FormatInt(int64(s.OutOfRange)))
	}

	log.Printf("Success rate: %.1f%%", s.SuccessRate())

	log.Printf("API Usage:")

	for _, p := range geocoding.Providers() {
		log.Printf("%s: %s requests", p.DisplayName(), textutils.FormatInt(int64(s.ProviderSuccesses[p])))
	}
}
