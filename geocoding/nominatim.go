// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jcodagnone/postcodes/spatial"
	"github.com/jcodagnone/postcodes/utils/httputils"
	"github.com/jcodagnone/postcodes/utils/textutils"
)

// NominatimClient queries the OpenStreetMap Nominatim search endpoint. Its
// HTTP client never issues two requests closer than NominatimMinInterval.
type NominatimClient struct {
	baseURL      string
	countryCodes string
	httpClient   *http.Client
}

// NewNominatimClient creates a Nominatim client.
func NewNominatimClient(options *Options) *NominatimClient {
	opts := options.withDefaults()

	return &NominatimClient{
		baseURL:      strings.TrimRight(opts.NominatimURL, "/"),
		countryCodes: opts.CountryCodes,
		httpClient:   NewHTTPClient(&opts, httputils.NewMinIntervalLimiter(NominatimMinInterval)),
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search resolves a single postcode. It implements RequestFunc.
func (c *NominatimClient) Search(ctx context.Context, postcode string) (spatial.Point, error) {
	query := textutils.NormalizePostcode(postcode)
	if query == "" {
		return spatial.Point{}, &GeocodingError{
			Type:     ErrorTypeInvalidRequest,
			Provider: Nominatim,
			Message:  "empty postcode",
		}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	reqURL := c.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return spatial.Point{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return spatial.Point{}, &GeocodingError{
			Type:     ErrorTypeOf(err),
			Provider: Nominatim,
			Message:  "request failed",
			Err:      err,
		}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return spatial.Point{}, ClassifyHTTPError(Nominatim, resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return spatial.Point{}, &GeocodingError{
			Type:     ErrorTypeDecode,
			Provider: Nominatim,
			Message:  "decoding response",
			Err:      err,
		}
	}

	if len(places) == 0 {
		return spatial.Point{}, fmt.Errorf("%s: %s: %w", Nominatim, query, ErrNoResult)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return spatial.Point{}, &GeocodingError{Type: ErrorTypeDecode, Provider: Nominatim, Message: "parsing lat", Err: err}
	}

	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return spatial.Point{}, &GeocodingError{Type: ErrorTypeDecode, Provider: Nominatim, Message: "parsing lon", Err: err}
	}

	return spatial.Point{Lat: lat, Lng: lng}, nil
}
