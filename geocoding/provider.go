// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"time"

	"github.com/jcodagnone/postcodes/spatial"
)

// Provider identifies one of the two interchangeable geocoding services.
type Provider int

const (
	// PostcodesIO is the national postcode lookup: generous daily quota,
	// almost no spacing required between requests.
	PostcodesIO Provider = iota
	// Nominatim is the generic OpenStreetMap search, limited to roughly one
	// request per second.
	Nominatim

	providerCount = 2
)

// Providers returns every provider in index order.
func Providers() []Provider {
	return []Provider{PostcodesIO, Nominatim}
}

func (p Provider) String() string {
	switch p {
	case PostcodesIO:
		return "postcodes_io"
	case Nominatim:
		return "nominatim"
	default:
		return fmt.Sprintf("Provider(%d)", int(p))
	}
}

// DisplayName is the human readable provider name used in reports.
func (p Provider) DisplayName() string {
	switch p {
	case PostcodesIO:
		return "Postcodes.io"
	case Nominatim:
		return "Nominatim"
	default:
		return p.String()
	}
}

// Other returns the provider that is not p.
func (p Provider) Other() Provider {
	if p == PostcodesIO {
		return Nominatim
	}

	return PostcodesIO
}

func (p Provider) valid() bool {
	return p == PostcodesIO || p == Nominatim
}

// ParseProvider is the inverse of Provider.String.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers() {
		if p.String() == s {
			return p, nil
		}
	}

	return 0, fmt.Errorf("unknown provider %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Provider) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, fmt.Errorf("invalid provider %d", int(p))
	}

	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provider) UnmarshalText(text []byte) error {
	v, err := ParseProvider(string(text))
	if err != nil {
		return err
	}

	*p = v

	return nil
}

// RequestFunc performs exactly one lookup against a provider. Any non-nil
// error counts as a failure for health bookkeeping; a point is only returned
// when the provider explicitly reported a match.
type RequestFunc func(ctx context.Context, postcode string) (spatial.Point, error)

// Delays are the fixed pauses applied around calls to a provider.
type Delays struct {
	// BeforeFallback is slept before the provider is called as the fallback
	// within a single Resolve.
	BeforeFallback time.Duration
	// AfterSuccess is slept after a successful primary attempt.
	AfterSuccess time.Duration
	// AfterFallbackSuccess is slept after a successful fallback attempt.
	AfterFallbackSuccess time.Duration
}

// Backend binds a provider to its request function and pacing.
type Backend struct {
	Request RequestFunc
	Delays  Delays
}

// Default pacing for each provider.
var (
	DefaultPostcodesIODelays = Delays{
		AfterSuccess:         100 * time.Millisecond,
		AfterFallbackSuccess: 100 * time.Millisecond,
	}
	DefaultNominatimDelays = Delays{
		BeforeFallback:       700 * time.Millisecond,
		AfterSuccess:         700 * time.Millisecond,
		AfterFallbackSuccess: 400 * time.Millisecond,
	}
)

// NominatimMinInterval is the minimum spacing between two Nominatim requests.
const NominatimMinInterval = time.Second
