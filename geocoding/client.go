// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jcodagnone/postcodes/utils/httputils"
	"golang.org/x/time/rate"
)

// Default provider endpoints.
const (
	DefaultPostcodesIOURL = "https://api.postcodes.io"
	DefaultNominatimURL   = "https://nominatim.openstreetmap.org"
	DefaultCountryCodes   = "gb"
	DefaultTimeout        = 10 * time.Second
	DefaultUserAgent      = "PostcodeGeocoder/1.0"
)

// Options configures the provider clients.
type Options struct {
	// UserAgent is the User-Agent header to use in HTTP requests
	UserAgent string

	// PostcodesIOURL is the base URL of the postcodes.io API
	PostcodesIOURL string

	// NominatimURL is the base URL of the Nominatim API
	NominatimURL string

	// CountryCodes restricts Nominatim searches (comma separated ISO codes)
	CountryCodes string

	// Timeout applies to each individual provider request
	Timeout time.Duration

	// Enables light tracing of HTTP requests and responses
	EnableHTTPTrace bool

	// Enables full HTTP body tracing
	EnableHTTPBodyTrace bool

	// Verbose logs every provider attempt
	Verbose bool
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}

	if out.UserAgent == "" {
		out.UserAgent = DefaultUserAgent
	}

	if out.PostcodesIOURL == "" {
		out.PostcodesIOURL = DefaultPostcodesIOURL
	}

	if out.NominatimURL == "" {
		out.NominatimURL = DefaultNominatimURL
	}

	if out.CountryCodes == "" {
		out.CountryCodes = DefaultCountryCodes
	}

	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}

	return out
}

// NewHTTPClient builds the client shared by a provider: request tracing,
// a fixed User-Agent and, when limiter is not nil, minimum request spacing.
func NewHTTPClient(options *Options, limiter *rate.Limiter) *http.Client {
	opts := options.withDefaults()

	var httpLogWriter io.Writer
	if opts.EnableHTTPTrace {
		httpLogWriter = os.Stderr
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	}

	var rt http.RoundTripper = &httputils.LoggingRoundTripper{
		Writer:    httpLogWriter,
		DumpBody:  opts.EnableHTTPBodyTrace,
		Transport: transport,
	}

	if limiter != nil {
		rt = &httputils.RateLimitRoundTripper{
			Limiter:   limiter,
			Transport: rt,
		}
	}

	rt = &httputils.AppendRequestHeadersRoundTripper{
		Headers: map[string]string{
			"User-Agent": opts.UserAgent,
			"Accept":     "application/json",
		},
		Transport: rt,
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}

// NewDefaultGeocoder wires both HTTP providers into a Geocoder with the
// default pacing.
func NewDefaultGeocoder(options *Options, metrics *Metrics) *Geocoder {
	opts := options.withDefaults()

	postcodesIO := NewPostcodesIOClient(&opts)
	nominatim := NewNominatimClient(&opts)

	return NewGeocoder(Config{
		PostcodesIO: Backend{Request: postcodesIO.Lookup, Delays: DefaultPostcodesIODelays},
		Nominatim:   Backend{Request: nominatim.Search, Delays: DefaultNominatimDelays},
		Preferred:   PostcodesIO,
		Metrics:     metrics,
		Verbose:     opts.Verbose,
	})
}
