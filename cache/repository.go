// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache persists resolved postcodes so later runs can skip the
// providers entirely.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/jcodagnone/postcodes/spatial"
	"github.com/uber/h3-go/v4"
)

// H3Resolution is the H3 resolution stored for each cached postcode
// (hexagons of roughly 5km², close to a postcode sector).
const H3Resolution = 7

// ErrNotCached is returned by Get when the postcode has no entry.
var ErrNotCached = errors.New("postcode not cached")

// Entry is a resolved postcode.
type Entry struct {
	Postcode   string             `json:"postcode"`
	Point      spatial.Point      `json:"point"`
	Provider   geocoding.Provider `json:"provider"`
	ResolvedAt time.Time          `json:"resolved_at"`
	H3Cell     int64              `json:"-"`
}

func (e *Entry) computeH3() error {
	cell, err := h3.LatLngToCell(h3.NewLatLng(e.Point.Lat, e.Point.Lng), H3Resolution)
	if err != nil {
		return fmt.Errorf("error converting to h3 cell at res %d: %w", H3Resolution, err)
	}

	e.H3Cell = int64(cell)

	return nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Total         int                        `json:"total"`
	ByProvider    map[geocoding.Provider]int `json:"by_provider"`
	DistinctCells int                        `json:"distinct_cells"`
}

// Repository handles persistence of resolved postcodes.
type Repository interface {
	// CreateSchema creates the postcodes table
	CreateSchema() error

	// Get returns the entry for a normalized postcode or ErrNotCached
	Get(postcode string) (*Entry, error)

	// Save inserts or replaces an entry
	Save(entry *Entry) error

	// Delete removes an entry, reporting whether it existed
	Delete(postcode string) (bool, error)

	// List returns every entry sorted by postcode
	List() ([]*Entry, error)

	// Stats summarizes the cache
	Stats() (*Stats, error)

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a new cache repository.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS postcodes (
			postcode VARCHAR PRIMARY KEY,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			provider VARCHAR NOT NULL,
			resolved_at TIMESTAMP NOT NULL,
			h3_res7 BIGINT
		);
	`)
	if err != nil {
		return fmt.Errorf("creating postcodes table: %w", err)
	}

	return nil
}

func (r *sqlRepository) Get(postcode string) (*Entry, error) {
	row := r.db.QueryRow(`
		SELECT postcode, latitude, longitude, provider, resolved_at, h3_res7
		FROM postcodes
		WHERE postcode = ?
	`, postcode)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}

	return entry, err
}

func (r *sqlRepository) Save(entry *Entry) error {
	if entry.Postcode == "" {
		return errors.New("postcode can't be empty")
	}

	if err := entry.computeH3(); err != nil {
		return err
	}

	if entry.ResolvedAt.IsZero() {
		entry.ResolvedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO postcodes (postcode, latitude, longitude, provider, resolved_at, h3_res7)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.Postcode,
		entry.Point.Lat,
		entry.Point.Lng,
		entry.Provider.String(),
		entry.ResolvedAt,
		entry.H3Cell,
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", entry.Postcode, err)
	}

	return nil
}

func (r *sqlRepository) Delete(postcode string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM postcodes WHERE postcode = ?`, postcode)
	if err != nil {
		return false, fmt.Errorf("deleting %s: %w", postcode, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *sqlRepository) List() ([]*Entry, error) {
	rows, err := r.db.Query(`
		SELECT postcode, latitude, longitude, provider, resolved_at, h3_res7
		FROM postcodes
		ORDER BY postcode
	`)
	if err != nil {
		return nil, fmt.Errorf("listing postcodes: %w", err)
	}
	defer rows.Close()

	var entries []*Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *sqlRepository) Stats() (*Stats, error) {
	stats := &Stats{ByProvider: make(map[geocoding.Provider]int)}

	if err := r.db.QueryRow(`
		SELECT count(*), count(DISTINCT h3_res7) FROM postcodes
	`).Scan(&stats.Total, &stats.DistinctCells); err != nil {
		return nil, fmt.Errorf("counting postcodes: %w", err)
	}

	rows, err := r.db.Query(`SELECT provider, count(*) FROM postcodes GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("counting by provider: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			count int
		)

		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}

		p, err := geocoding.ParseProvider(name)
		if err != nil {
			return nil, err
		}

		stats.ByProvider[p] = count
	}

	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		entry    Entry
		provider string
		cell     sql.NullInt64
	)

	if err := s.Scan(
		&entry.Postcode,
		&entry.Point.Lat,
		&entry.Point.Lng,
		&provider,
		&entry.ResolvedAt,
		&cell,
	); err != nil {
		return nil, err
	}

	p, err := geocoding.ParseProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", entry.Postcode, err)
	}

	entry.Provider = p
	entry.H3Cell = cell.Int64

	return &entry, nil
}
