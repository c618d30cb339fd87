// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jcodagnone/postcodes/spatial"
	"github.com/jcodagnone/postcodes/utils/textutils"
)

// PostcodesIOClient queries the postcodes.io lookup endpoint.
type PostcodesIOClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPostcodesIOClient creates a postcodes.io client.
func NewPostcodesIOClient(options *Options) *PostcodesIOClient {
	opts := options.withDefaults()

	return &PostcodesIOClient{
		baseURL:    strings.TrimRight(opts.PostcodesIOURL, "/"),
		httpClient: NewHTTPClient(&opts, nil),
	}
}

type postcodesIOResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Result *struct {
		Postcode  string   `json:"postcode"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"result"`
}

// Lookup resolves a single postcode. It implements RequestFunc.
func (c *PostcodesIOClient) Lookup(ctx context.Context, postcode string) (spatial.Point, error) {
	compact := textutils.CompactPostcode(postcode)
	if compact == "" {
		return spatial.Point{}, &GeocodingError{
			Type:     ErrorTypeInvalidRequest,
			Provider: PostcodesIO,
			Message:  "empty postcode",
		}
	}

	reqURL := c.baseURL + "/postcodes/" + url.PathEscape(compact)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return spatial.Point{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return spatial.Point{}, &GeocodingError{
			Type:     ErrorTypeOf(err),
			Provider: PostcodesIO,
			Message:  "request failed",
			Err:      err,
		}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return spatial.Point{}, ClassifyHTTPError(PostcodesIO, resp.StatusCode)
	}

	var body postcodesIOResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return spatial.Point{}, &GeocodingError{
			Type:     ErrorTypeDecode,
			Provider: PostcodesIO,
			Message:  "decoding response",
			Err:      err,
		}
	}

	if body.Status != http.StatusOK {
		return spatial.Point{}, ClassifyHTTPError(PostcodesIO, body.Status)
	}

	// Terminated or non-geographic postcodes come back without coordinates.
	if body.Result == nil || body.Result.Latitude == nil || body.Result.Longitude == nil {
		return spatial.Point{}, fmt.Errorf("%s: %s: %w", PostcodesIO, compact, ErrNoResult)
	}

	return spatial.Point{Lat: *body.Result.Latitude, Lng: *body.Result.Longitude}, nil
}
