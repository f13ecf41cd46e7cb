// tiles/coords.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package tiles provides the Web Mercator tile math, tile URL templates
// and the shared tile cache used by the terrain and airspace pipelines.
package tiles

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxLatitude is (just inside) the latitude at which the Web Mercator
// projection of the world becomes square; latitudes beyond it are clamped.
const MaxLatitude = 85.0511

// Pixel is an integer pixel offset inside a tile, with y increasing to the
// south.
type Pixel struct {
	X, Y int
}

type Coordinates struct {
	Tile maptile.Tile
	Px   Pixel
}

// PixelCoordinates projects the given position into the tile that
// contains it at the given zoom level and returns the pixel offset inside
// that tile for tiles that are tileSize pixels on a side.
func PixelCoordinates(lat, lon float64, zoom maptile.Zoom, tileSize int) Coordinates {
	lat = max(-MaxLatitude, min(MaxLatitude, lat))

	f := maptile.Fraction(orb.Point{lon, lat}, zoom)
	worldPx := (int64(1) << zoom) * int64(tileSize)

	clampPx := func(v float64) int64 {
		p := int64(math.Floor(v * float64(tileSize)))
		return max(0, min(worldPx-1, p))
	}
	gx, gy := clampPx(f[0]), clampPx(f[1])

	ts := int64(tileSize)
	return Coordinates{
		Tile: maptile.New(uint32(gx/ts), uint32(gy/ts), zoom),
		Px:   Pixel{X: int(gx % ts), Y: int(gy % ts)},
	}
}
