// track/track_test.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package track

import (
	"errors"
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	good := Track{
		Lat:     []float64{45.1, 45.2, 45.3},
		Lon:     []float64{6.1, 6.2, 6.3},
		Alt:     []int{1000, 1100, 1200},
		TimeSec: []int64{100, 100, 101},
	}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Track{}).Validate(); err != nil {
		t.Errorf("empty track: unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		track Track
		err   error
	}{
		{
			name:  "short alt",
			track: Track{Lat: good.Lat, Lon: good.Lon, Alt: good.Alt[:2], TimeSec: good.TimeSec},
			err:   ErrMismatchedLengths,
		},
		{
			name:  "missing time",
			track: Track{Lat: good.Lat, Lon: good.Lon, Alt: good.Alt},
			err:   ErrMismatchedLengths,
		},
		{
			name:  "unsorted",
			track: Track{Lat: good.Lat, Lon: good.Lon, Alt: good.Alt, TimeSec: []int64{100, 99, 101}},
			err:   ErrUnsorted,
		},
		{
			name:  "NaN latitude",
			track: Track{Lat: []float64{math.NaN()}, Lon: []float64{0}, Alt: []int{0}, TimeSec: []int64{0}},
			err:   ErrInvalidPosition,
		},
		{
			name:  "longitude out of range",
			track: Track{Lat: []float64{0}, Lon: []float64{181}, Alt: []int{0}, TimeSec: []int64{0}},
			err:   ErrInvalidPosition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.track.Validate(); !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestMaxAlt(t *testing.T) {
	if m := (Track{Alt: []int{10, 2500, -3}}).MaxAlt(); m != 2500 {
		t.Errorf("got %d, expected 2500", m)
	}
	if m := (Track{}).MaxAlt(); m != 0 {
		t.Errorf("got %d, expected 0", m)
	}
}

func TestGroundAltitudeAt(t *testing.T) {
	g := GroundAltitude{Altitudes: []int{12, 34}}
	if g.At(1) != 34 || g.At(5) != 0 {
		t.Errorf("unexpected altitudes %d, %d", g.At(1), g.At(5))
	}
}
