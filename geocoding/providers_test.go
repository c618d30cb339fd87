// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jcodagnone/postcodes/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostcodesIOServer(t *testing.T, status int, body string) (*PostcodesIOClient, *[]*http.Request) {
	t.Helper()

	var requests []*http.Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return NewPostcodesIOClient(&Options{PostcodesIOURL: srv.URL, UserAgent: "test-agent/1.0"}), &requests
}

func TestPostcodesIOLookup(t *testing.T) {
	client, requests := newPostcodesIOServer(t, http.StatusOK,
		`{"status":200,"result":{"postcode":"SW1A 1AA","latitude":51.501009,"longitude":-0.141588}}`)

	point, err := client.Lookup(context.Background(), "sw1a 1aa")
	require.NoError(t, err)
	assert.Equal(t, spatial.Point{Lat: 51.501009, Lng: -0.141588}, point)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "/postcodes/SW1A1AA", req.URL.Path)
	assert.Equal(t, "test-agent/1.0", req.Header.Get("User-Agent"))
}

func TestPostcodesIOLookupFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
	}{
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     `{"status":404,"error":"Postcode not found"}`,
			wantType: ErrorTypeNotFound,
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{}`,
			wantType: ErrorTypeRateLimit,
		},
		{
			name:     "server error",
			status:   http.StatusBadGateway,
			body:     `bad gateway`,
			wantType: ErrorTypeNetworkError,
		},
		{
			name:     "malformed body",
			status:   http.StatusOK,
			body:     `{"status":`,
			wantType: ErrorTypeDecode,
		},
		{
			name:     "status field not ok",
			status:   http.StatusOK,
			body:     `{"status":404,"error":"Invalid postcode"}`,
			wantType: ErrorTypeNotFound,
		},
		{
			name:     "terminated postcode without coordinates",
			status:   http.StatusOK,
			body:     `{"status":200,"result":{"postcode":"AB1 0AA","latitude":null,"longitude":null}}`,
			wantType: ErrorTypeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newPostcodesIOServer(t, tt.status, tt.body)

			_, err := client.Lookup(context.Background(), "SW1A 1AA")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, ErrorTypeOf(err))
		})
	}
}

func TestPostcodesIOLookupEmptyPostcode(t *testing.T) {
	client, requests := newPostcodesIOServer(t, http.StatusOK, `{}`)

	_, err := client.Lookup(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeInvalidRequest, ErrorTypeOf(err))
	assert.Empty(t, *requests)
}

func TestPostcodesIOLookupTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewPostcodesIOClient(&Options{PostcodesIOURL: srv.URL})

	_, err := client.Lookup(context.Background(), "SW1A 1AA")
	require.Error(t, err)

	var geoErr *GeocodingError
	require.True(t, errors.As(err, &geoErr))
	assert.Equal(t, PostcodesIO, geoErr.Provider)
}

func TestPostcodesIOLookupTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := NewPostcodesIOClient(&Options{PostcodesIOURL: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := client.Lookup(context.Background(), "SW1A 1AA")
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err), "got %v", err)
}

func TestNominatimSearch(t *testing.T) {
	var got *http.Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`[{"lat":"51.5010","lon":"-0.1419","display_name":"Buckingham Palace"}]`))
	}))
	t.Cleanup(srv.Close)

	client := NewNominatimClient(&Options{NominatimURL: srv.URL + "/"})

	point, err := client.Search(context.Background(), "sw1a1aa")
	require.NoError(t, err)
	assert.Equal(t, spatial.Point{Lat: 51.5010, Lng: -0.1419}, point)

	require.NotNil(t, got)
	assert.Equal(t, "/search", got.URL.Path)

	q := got.URL.Query()
	assert.Equal(t, "SW1A 1AA", q.Get("q"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "1", q.Get("limit"))
	assert.Equal(t, "gb", q.Get("countrycodes"))
	assert.Equal(t, DefaultUserAgent, got.Header.Get("User-Agent"))
}

func TestNominatimSearchFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
	}{
		{"empty result", http.StatusOK, `[]`, ErrorTypeNotFound},
		{"bad latitude", http.StatusOK, `[{"lat":"north","lon":"1"}]`, ErrorTypeDecode},
		{"not an array", http.StatusOK, `{"error":"nope"}`, ErrorTypeDecode},
		{"forbidden", http.StatusForbidden, ``, ErrorTypeQuotaExceeded},
		{"throttled", http.StatusTooManyRequests, ``, ErrorTypeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			client := NewNominatimClient(&Options{NominatimURL: srv.URL})

			_, err := client.Search(context.Background(), "SW1A 1AA")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, ErrorTypeOf(err))
		})
	}
}

func TestNominatimSearchSpacing(t *testing.T) {
	var times []time.Time

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		times = append(times, time.Now())
		_, _ = w.Write([]byte(`[{"lat":"1","lon":"2"}]`))
	}))
	t.Cleanup(srv.Close)

	client := NewNominatimClient(&Options{NominatimURL: srv.URL})

	for range 2 {
		_, err := client.Search(context.Background(), "SW1A 1AA")
		require.NoError(t, err)
	}

	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 900*time.Millisecond)
}

func TestDefaultGeocoderEndToEnd(t *testing.T) {
	postcodesIO := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(postcodesIO.Close)

	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"51.5","lon":"-0.14"}]`))
	}))
	t.Cleanup(nominatim.Close)

	g := NewDefaultGeocoder(&Options{
		PostcodesIOURL: postcodesIO.URL,
		NominatimURL:   nominatim.URL,
	}, nil)
	g.sleep = func(context.Context, time.Duration) {}

	res, found := g.Resolve(context.Background(), "SW1A 1AA")
	require.True(t, found)
	assert.Equal(t, Nominatim, res.Provider)
	assert.Equal(t, spatial.Point{Lat: 51.5, Lng: -0.14}, res.Point)
	assert.Equal(t, 1, g.Health(PostcodesIO).ConsecutiveFailures)
	assert.Equal(t, PostcodesIO, g.Preferred())
}
