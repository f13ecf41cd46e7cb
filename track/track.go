// track/track.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package track defines the flight track that is enriched and the ground
// altitude computed for it.
package track

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	ErrMismatchedLengths = errors.New("track arrays have mismatched lengths")
	ErrUnsorted          = errors.New("track fixes are not in time order")
	ErrInvalidPosition   = errors.New("track fix has an invalid position")
)

// Track is a flight track stored as parallel arrays: fix i is at
// (Lat[i], Lon[i]) in degrees, Alt[i] meters, at Unix time TimeSec[i].
// Tracks are owned by the caller and never modified here.
type Track struct {
	Lat     []float64 `json:"lat"`
	Lon     []float64 `json:"lon"`
	Alt     []int     `json:"alt"`
	TimeSec []int64   `json:"time"`
}

func (t Track) Len() int {
	return len(t.Lat)
}

// Validate checks the preconditions the enrichment pipeline relies on.
func (t Track) Validate() error {
	n := len(t.Lat)
	if len(t.Lon) != n || len(t.Alt) != n || len(t.TimeSec) != n {
		return fmt.Errorf("lat %d, lon %d, alt %d, time %d: %w", n, len(t.Lon), len(t.Alt),
			len(t.TimeSec), ErrMismatchedLengths)
	}

	for i := range n {
		if math.IsNaN(t.Lat[i]) || math.IsNaN(t.Lon[i]) || math.IsInf(t.Lat[i], 0) || math.IsInf(t.Lon[i], 0) ||
			t.Lat[i] < -90 || t.Lat[i] > 90 || t.Lon[i] < -180 || t.Lon[i] > 180 {
			return fmt.Errorf("fix %d (%g, %g): %w", i, t.Lat[i], t.Lon[i], ErrInvalidPosition)
		}
		if i > 0 && t.TimeSec[i] < t.TimeSec[i-1] {
			return fmt.Errorf("fix %d: %d after %d: %w", i, t.TimeSec[i], t.TimeSec[i-1], ErrUnsorted)
		}
	}
	return nil
}

// MaxAlt returns the highest altitude in the track, or 0 for an empty
// track.
func (t Track) MaxAlt() int {
	if len(t.Alt) == 0 {
		return 0
	}
	return slices.Max(t.Alt)
}

// GroundAltitude holds the ground elevation in meters under each fix of a
// track.
type GroundAltitude struct {
	Altitudes []int `json:"altitudes"`
	// HasErrors is set if a terrain tile that was needed could not be
	// fetched; the corresponding altitudes are 0.
	HasErrors bool `json:"has_errors"`
	// Truncated is set if the limit on the number of terrain tiles was
	// reached before all fixes were covered.
	Truncated bool `json:"truncated"`
}

// At returns the ground altitude under fix i, treating a missing
// GroundAltitude as sea level.
func (g GroundAltitude) At(i int) int {
	if i < len(g.Altitudes) {
		return g.Altitudes[i]
	}
	return 0
}
