// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrNoResult is returned by a provider that answered but had no match.
var ErrNoResult = errors.New("no result")

// GeocodingError describes why a provider request failed.
type GeocodingError struct {
	Type     ErrorType
	Provider Provider
	Message  string
	Err      error
}

// ErrorType classifies provider failures.
type ErrorType int

const (
	// ErrorTypeUnknown unclassified failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit the provider throttled us.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded the provider refused further requests.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout the request did not complete in time.
	ErrorTypeTimeout
	// ErrorTypeNotFound the provider has no match for the postcode.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest the provider rejected the request.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError transport failure or upstream unavailable.
	ErrorTypeNetworkError
	// ErrorTypeDecode the response body could not be interpreted.
	ErrorTypeDecode
)

var errorTypeNames = map[ErrorType]string{
	ErrorTypeUnknown:        "unknown",
	ErrorTypeRateLimit:      "rate_limit",
	ErrorTypeQuotaExceeded:  "quota_exceeded",
	ErrorTypeTimeout:        "timeout",
	ErrorTypeNotFound:       "not_found",
	ErrorTypeInvalidRequest: "invalid_request",
	ErrorTypeNetworkError:   "network",
	ErrorTypeDecode:         "decode",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("ErrorType(%d)", int(t))
}

func (e *GeocodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// ErrorTypeOf returns the classification of err, inspecting wrapped
// GeocodingErrors first and falling back to transport level checks.
func ErrorTypeOf(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var geoErr *GeocodingError
	if errors.As(err, &geoErr) && geoErr.Type != ErrorTypeUnknown {
		return geoErr.Type
	}

	if errors.Is(err, ErrNoResult) {
		return ErrorTypeNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}

		return ErrorTypeNetworkError
	}

	return ErrorTypeUnknown
}

// IsRateLimitError reports whether err was caused by provider throttling.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	if ErrorTypeOf(err) == ErrorTypeRateLimit {
		return true
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaExceededError reports whether err was caused by an exhausted quota.
func IsQuotaExceededError(err error) bool {
	if err == nil {
		return false
	}

	if ErrorTypeOf(err) == ErrorTypeQuotaExceeded {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "quota exceeded")
}

// IsTimeoutError reports whether err was caused by a timeout.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if ErrorTypeOf(err) == ErrorTypeTimeout {
		return true
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// ClassifyHTTPError maps a non-success HTTP status to a GeocodingError.
func ClassifyHTTPError(provider Provider, statusCode int) *GeocodingError {
	e := &GeocodingError{Provider: provider}

	switch statusCode {
	case http.StatusTooManyRequests:
		e.Type, e.Message = ErrorTypeRateLimit, "rate limit reached"
	case http.StatusForbidden:
		e.Type, e.Message = ErrorTypeQuotaExceeded, "quota exceeded or access denied"
	case http.StatusBadRequest:
		e.Type, e.Message = ErrorTypeInvalidRequest, "invalid request"
	case http.StatusNotFound:
		e.Type, e.Message = ErrorTypeNotFound, "postcode not found"
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		e.Type, e.Message = ErrorTypeNetworkError, fmt.Sprintf("service unavailable (status %d)", statusCode)
	default:
		e.Type, e.Message = ErrorTypeUnknown, fmt.Sprintf("HTTP error %d", statusCode)
	}

	return e
}
