// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports provider activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Requests   *prometheus.CounterVec
	Durations  *prometheus.HistogramVec
	Disabled   *prometheus.GaugeVec
	Recoveries prometheus.Counter
}

// NewMetrics registers the geocoder collectors against reg, defaulting to
// the global registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postcodes_provider_requests_total",
		Help: "Provider requests labeled by provider and outcome (ok or the failure type).",
	}, []string{"provider", "outcome"}))
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postcodes_provider_request_duration_seconds",
		Help:    "Provider request latency in seconds.",
		Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider"}))
	if err != nil {
		return nil, err
	}

	disabled, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "postcodes_provider_disabled",
		Help: "1 while the provider is out of rotation after consecutive failures.",
	}, []string{"provider"}))
	if err != nil {
		return nil, err
	}

	recoveries, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postcodes_provider_recoveries_total",
		Help: "Times both providers were found disabled and re-enabled together.",
	}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Requests:   requests,
		Durations:  durations,
		Disabled:   disabled,
		Recoveries: recoveries,
	}, nil
}

// register adds c to reg, reusing an identical collector already present.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}

			return c, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}

		return c, err
	}

	return c, nil
}

func (m *Metrics) observe(p Provider, err error, elapsed time.Duration) {
	if m == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = ErrorTypeOf(err).String()
	}

	m.Requests.WithLabelValues(p.String(), outcome).Inc()
	m.Durations.WithLabelValues(p.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) setDisabled(p Provider, disabled bool) {
	if m == nil {
		return
	}

	v := 0.0
	if disabled {
		v = 1
	}

	m.Disabled.WithLabelValues(p.String()).Set(v)
}

func (m *Metrics) recordRecovery() {
	if m == nil {
		return
	}

	m.Recoveries.Inc()
}
