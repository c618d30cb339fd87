// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the geocoder and its cache over HTTP.
package server

import (
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/postcodes/cache"
	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/jcodagnone/postcodes/spatial"
	"github.com/jcodagnone/postcodes/utils/textutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server answers postcode lookups over HTTP.
type Server struct {
	// mu serializes every use of geocoder, which keeps per call state
	mu       sync.Mutex
	geocoder *geocoding.Geocoder
	repo     cache.Repository
	gatherer prometheus.Gatherer
}

// NewServer creates a server. repo may be nil to disable the cache and
// gatherer may be nil to disable /metrics.
func NewServer(geocoder *geocoding.Geocoder, repo cache.Repository, gatherer prometheus.Gatherer) *Server {
	return &Server{
		geocoder: geocoder,
		repo:     repo,
		gatherer: gatherer,
	}
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/api/geocode/:postcode", s.geocode)
	r.GET("/api/providers", s.listProviders)
	r.POST("/api/providers/reset", s.resetProviders)
	r.GET("/api/cache/stats", s.cacheStats)

	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	log.Printf("📍 Listening on %s", addr)

	return s.Router().Run(addr)
}

// GeocodeResponse is the body of a successful /api/geocode call.
type GeocodeResponse struct {
	Postcode  string             `json:"postcode"`
	Latitude  float64            `json:"latitude"`
	Longitude float64            `json:"longitude"`
	Provider  geocoding.Provider `json:"provider"`
	Cached    bool               `json:"cached"`
}

func (s *Server) geocode(ctx *gin.Context) {
	raw := ctx.Param("postcode")
	if textutils.IsBlank(raw) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "postcode is required"})

		return
	}

	postcode := textutils.NormalizePostcode(raw)

	if s.repo != nil {
		entry, err := s.repo.Get(postcode)
		switch {
		case err == nil:
			ctx.JSON(http.StatusOK, newGeocodeResponse(postcode, entry.Point, entry.Provider, true))

			return
		case !errors.Is(err, cache.ErrNotCached):
			log.Printf("⚠️  Reading cache for %s: %v", postcode, err)
		}
	}

	s.mu.Lock()
	res, found := s.geocoder.Resolve(ctx.Request.Context(), postcode)
	s.mu.Unlock()

	if !found {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "postcode not found", "postcode": postcode})

		return
	}

	if s.repo != nil {
		if err := s.repo.Save(&cache.Entry{Postcode: postcode, Point: res.Point, Provider: res.Provider}); err != nil {
			log.Printf("⚠️  Caching %s: %v", postcode, err)
		}
	}

	ctx.JSON(http.StatusOK, newGeocodeResponse(postcode, res.Point, res.Provider, false))
}

func newGeocodeResponse(postcode string, point spatial.Point, p geocoding.Provider, cached bool) GeocodeResponse {
	return GeocodeResponse{
		Postcode:  postcode,
		Latitude:  point.Lat,
		Longitude: point.Lng,
		Provider:  p,
		Cached:    cached,
	}
}

// ProviderStatus is the health of one provider as reported by /api/providers.
type ProviderStatus struct {
	Provider    geocoding.Provider `json:"provider"`
	DisplayName string             `json:"display_name"`
	Preferred   bool               `json:"preferred"`
	geocoding.Health
}

func (s *Server) providerStatuses() []ProviderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	preferred := s.geocoder.Preferred()
	statuses := make([]ProviderStatus, 0, len(geocoding.Providers()))

	for _, p := range geocoding.Providers() {
		statuses = append(statuses, ProviderStatus{
			Provider:    p,
			DisplayName: p.DisplayName(),
			Preferred:   p == preferred,
			Health:      s.geocoder.Health(p),
		})
	}

	return statuses
}

func (s *Server) listProviders(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.providerStatuses())
}

func (s *Server) resetProviders(ctx *gin.Context) {
	s.mu.Lock()
	s.geocoder.Reset()
	s.mu.Unlock()

	log.Println("Providers re-enabled on request")

	ctx.JSON(http.StatusOK, s.providerStatuses())
}

func (s *Server) cacheStats(ctx *gin.Context) {
	if s.repo == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "cache disabled"})

		return
	}

	stats, err := s.repo.Stats()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read cache stats"})

		return
	}

	ctx.JSON(http.StatusOK, stats)
}
