// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocoding resolves postcodes to coordinates by alternating between
// two providers, falling back from one to the other on failure and taking a
// provider out of rotation after repeated consecutive failures.
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jcodagnone/postcodes/spatial"
)

// DefaultFailureThreshold is the number of consecutive failures after which
// a provider is disabled.
const DefaultFailureThreshold = 5

var errNoBackend = errors.New("provider not configured")

// Health is the bookkeeping kept for each provider.
type Health struct {
	ConsecutiveFailures int  `json:"consecutive_failures"`
	Disabled            bool `json:"disabled"`
	Successes           int  `json:"successes"`
}

// Result is a resolved postcode.
type Result struct {
	Point    spatial.Point
	Provider Provider
}

// Config configures a Geocoder.
type Config struct {
	PostcodesIO Backend
	Nominatim   Backend

	// Preferred is the provider tried first on the first call.
	Preferred Provider

	// FailureThreshold overrides DefaultFailureThreshold when positive.
	FailureThreshold int

	// Metrics is optional.
	Metrics *Metrics

	// Verbose logs every attempt, not only failures.
	Verbose bool

	// Sleep replaces the context aware timer used for pacing.
	Sleep func(ctx context.Context, d time.Duration)
}

// Geocoder is the alternating fallback geocoder. It is not safe for
// concurrent use; callers that share one must serialize Resolve.
type Geocoder struct {
	backends  [providerCount]Backend
	health    [providerCount]Health
	preferred Provider
	threshold int
	metrics   *Metrics
	verbose   bool
	sleep     func(ctx context.Context, d time.Duration)
}

// NewGeocoder creates a geocoder with both providers healthy.
func NewGeocoder(cfg Config) *Geocoder {
	g := &Geocoder{
		preferred: cfg.Preferred,
		threshold: cfg.FailureThreshold,
		metrics:   cfg.Metrics,
		verbose:   cfg.Verbose,
		sleep:     cfg.Sleep,
	}

	g.backends[PostcodesIO] = cfg.PostcodesIO
	g.backends[Nominatim] = cfg.Nominatim

	if !g.preferred.valid() {
		g.preferred = PostcodesIO
	}

	if g.threshold <= 0 {
		g.threshold = DefaultFailureThreshold
	}

	if g.sleep == nil {
		g.sleep = sleepContext
	}

	for _, p := range Providers() {
		g.metrics.setDisabled(p, false)
	}

	return g
}

// Resolve returns the coordinates of postcode, or false when every available
// provider failed. Provider errors are absorbed into health bookkeeping.
func (g *Geocoder) Resolve(ctx context.Context, postcode string) (Result, bool) {
	if g.health[PostcodesIO].Disabled && g.health[Nominatim].Disabled {
		log.Printf("⚠️  Both providers disabled - re-enabling and resetting failure counts")
		g.metrics.recordRecovery()
		g.Reset()
	}

	primary, fallback := g.preferred, g.preferred.Other()
	if g.health[primary].Disabled {
		primary, fallback = fallback, primary
	}

	if !g.health[primary].Disabled {
		if g.verbose {
			log.Printf("Trying %s for %s", primary.DisplayName(), postcode)
		}

		if point, ok := g.attempt(ctx, primary, postcode); ok {
			g.succeed(ctx, primary, g.backends[primary].Delays.AfterSuccess)

			return Result{Point: point, Provider: primary}, true
		}
	}

	if !g.health[fallback].Disabled {
		log.Printf("Primary provider failed, trying %s for %s", fallback.DisplayName(), postcode)

		g.sleep(ctx, g.backends[fallback].Delays.BeforeFallback)

		if point, ok := g.attempt(ctx, fallback, postcode); ok {
			g.succeed(ctx, fallback, g.backends[fallback].Delays.AfterFallbackSuccess)

			return Result{Point: point, Provider: fallback}, true
		}
	}

	g.preferred = g.preferred.Other()

	log.Printf("All available providers failed for postcode: %s", postcode)

	return Result{}, false
}

// attempt issues one request through p and updates its failure bookkeeping.
func (g *Geocoder) attempt(ctx context.Context, p Provider, postcode string) (spatial.Point, bool) {
	start := time.Now()

	point, err := g.call(ctx, p, postcode)
	g.metrics.observe(p, err, time.Since(start))

	if err != nil {
		g.recordFailure(p, postcode, err)

		return spatial.Point{}, false
	}

	g.health[p].ConsecutiveFailures = 0

	return point, true
}

// call invokes the backend, turning a panic into an ordinary failure.
func (g *Geocoder) call(ctx context.Context, p Provider, postcode string) (point spatial.Point, err error) {
	request := g.backends[p].Request
	if request == nil {
		return spatial.Point{}, errNoBackend
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()

	return request(ctx, postcode)
}

func (g *Geocoder) recordFailure(p Provider, postcode string, err error) {
	h := &g.health[p]
	h.ConsecutiveFailures++

	switch {
	case IsRateLimitError(err):
		log.Printf("⚠️  %s is rate limiting requests (%s): %v", p.DisplayName(), postcode, err)
	case ErrorTypeOf(err) == ErrorTypeNotFound:
		log.Printf("%s has no result for %s", p.DisplayName(), postcode)
	default:
		log.Printf("⚠️  %s failed for %s: %v", p.DisplayName(), postcode, err)
	}

	if h.ConsecutiveFailures >= g.threshold && !h.Disabled {
		log.Printf("⚠️  %s has failed %d times consecutively - temporarily disabling", p.DisplayName(), h.ConsecutiveFailures)

		h.Disabled = true
		g.metrics.setDisabled(p, true)
	}
}

// succeed records a success on p, rotates the preferred provider away from
// it and applies the post-success pause.
func (g *Geocoder) succeed(ctx context.Context, p Provider, pause time.Duration) {
	g.health[p].Successes++
	g.preferred = p.Other()

	if g.verbose {
		log.Printf("✓ %s success", p.DisplayName())
	}

	g.sleep(ctx, pause)
}

// Reset re-enables both providers and clears their failure counts. Success
// counts are kept.
func (g *Geocoder) Reset() {
	for _, p := range Providers() {
		g.health[p].Disabled = false
		g.health[p].ConsecutiveFailures = 0
		g.metrics.setDisabled(p, false)
	}
}

// Successes returns the cumulative number of successful requests served by p.
func (g *Geocoder) Successes(p Provider) int {
	if !p.valid() {
		return 0
	}

	return g.health[p].Successes
}

// Health returns a copy of the bookkeeping for p.
func (g *Geocoder) Health(p Provider) Health {
	if !p.valid() {
		return Health{}
	}

	return g.health[p]
}

// Preferred returns the provider that will be tried first on the next call.
func (g *Geocoder) Preferred() Provider {
	return g.preferred
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
