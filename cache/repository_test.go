// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/jcodagnone/postcodes/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/h3-go/v4"
)

func setupTestDB(t *testing.T) (*sql.DB, Repository) {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	require.NoError(t, repo.CreateSchema())

	return db, repo
}

func TestCreateSchemaIdempotent(t *testing.T) {
	db, repo := setupTestDB(t)
	require.NoError(t, repo.CreateSchema())

	var tableName string

	err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = 'postcodes'").Scan(&tableName)
	require.NoError(t, err)
	assert.Equal(t, "postcodes", tableName)
}

func TestSaveAndGet(t *testing.T) {
	_, repo := setupTestDB(t)

	resolvedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{
		Postcode:   "SW1A 1AA",
		Point:      spatial.Point{Lat: 51.5010, Lng: -0.1419},
		Provider:   geocoding.PostcodesIO,
		ResolvedAt: resolvedAt,
	}
	require.NoError(t, repo.Save(entry))

	want, err := h3.LatLngToCell(h3.NewLatLng(51.5010, -0.1419), H3Resolution)
	require.NoError(t, err)
	assert.Equal(t, int64(want), entry.H3Cell)

	got, err := repo.Get("SW1A 1AA")
	require.NoError(t, err)
	assert.Equal(t, "SW1A 1AA", got.Postcode)
	assert.InDelta(t, 51.5010, got.Point.Lat, 1e-9)
	assert.InDelta(t, -0.1419, got.Point.Lng, 1e-9)
	assert.Equal(t, geocoding.PostcodesIO, got.Provider)
	assert.True(t, resolvedAt.Equal(got.ResolvedAt.UTC()), "resolved_at = %v", got.ResolvedAt)
	assert.Equal(t, entry.H3Cell, got.H3Cell)
}

func TestSaveReplaces(t *testing.T) {
	_, repo := setupTestDB(t)

	require.NoError(t, repo.Save(&Entry{Postcode: "M1 1AE", Point: spatial.Point{Lat: 53.4, Lng: -2.2}, Provider: geocoding.Nominatim}))
	require.NoError(t, repo.Save(&Entry{Postcode: "M1 1AE", Point: spatial.Point{Lat: 53.48, Lng: -2.23}, Provider: geocoding.PostcodesIO}))

	got, err := repo.Get("M1 1AE")
	require.NoError(t, err)
	assert.Equal(t, geocoding.PostcodesIO, got.Provider)
	assert.InDelta(t, 53.48, got.Point.Lat, 1e-9)
	assert.False(t, got.ResolvedAt.IsZero())

	entries, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetMissing(t *testing.T) {
	_, repo := setupTestDB(t)

	_, err := repo.Get("ZZ1 1ZZ")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestSaveRejectsEmptyPostcode(t *testing.T) {
	_, repo := setupTestDB(t)

	assert.Error(t, repo.Save(&Entry{}))
}

func TestDelete(t *testing.T) {
	_, repo := setupTestDB(t)
	require.NoError(t, repo.Save(&Entry{Postcode: "EH1 1YZ", Point: spatial.Point{Lat: 55.95, Lng: -3.19}}))

	deleted, err := repo.Delete("EH1 1YZ")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete("EH1 1YZ")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListAndStats(t *testing.T) {
	_, repo := setupTestDB(t)

	entries := []*Entry{
		{Postcode: "SW1A 2AA", Point: spatial.Point{Lat: 51.5034, Lng: -0.1276}, Provider: geocoding.PostcodesIO},
		{Postcode: "SW1A 1AA", Point: spatial.Point{Lat: 51.5010, Lng: -0.1419}, Provider: geocoding.Nominatim},
		{Postcode: "EH1 1YZ", Point: spatial.Point{Lat: 55.9520, Lng: -3.1900}, Provider: geocoding.PostcodesIO},
	}
	for _, e := range entries {
		require.NoError(t, repo.Save(e))
	}

	list, err := repo.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "EH1 1YZ", list[0].Postcode)
	assert.Equal(t, "SW1A 1AA", list[1].Postcode)
	assert.Equal(t, "SW1A 2AA", list[2].Postcode)

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[geocoding.Provider]int{geocoding.PostcodesIO: 2, geocoding.Nominatim: 1}, stats.ByProvider)
	assert.GreaterOrEqual(t, stats.DistinctCells, 2)
	assert.LessOrEqual(t, stats.DistinctCells, 3)
}
