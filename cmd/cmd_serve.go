// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/jcodagnone/postcodes/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve postcode lookups over HTTP",
	Long: `Starts an HTTP server with the following endpoints:

  GET  /api/geocode/:postcode   resolve a postcode, answering from the cache when possible
  GET  /api/providers           provider health and the next preferred provider
  POST /api/providers/reset     re-enable both providers
  GET  /api/cache/stats         cache summary
  GET  /metrics                 Prometheus metrics
`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		db, repo, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		reg := prometheus.NewRegistry()

		metrics, err := geocoding.NewMetrics(reg)
		if err != nil {
			return err
		}

		geocoder := geocoding.NewDefaultGeocoder(geocodingOptions, metrics)

		return server.NewServer(geocoder, repo, reg).Run(serveAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Address to listen on")
}
