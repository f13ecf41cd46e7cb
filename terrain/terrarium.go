// terrain/terrarium.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package terrain

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/mmp/trackenrich/tiles"
)

var ErrTileSize = errors.New("unexpected terrain tile size")

// Tile is a decoded Terrarium elevation tile: Size x Size pixels stored
// row-major as RGBA bytes.
type Tile struct {
	Size int
	Pix  []uint8
}

// DecodeTile decodes a Terrarium PNG, which must be size x size pixels.
func DecodeTile(b []byte, size int) (*Tile, error) {
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	r := img.Bounds()
	if r.Dx() != size || r.Dy() != size {
		return nil, fmt.Errorf("%dx%d, expected %dx%d: %w", r.Dx(), r.Dy(), size, size, ErrTileSize)
	}

	// Fast paths for the common non-paletted encodings; alpha is ignored
	// so NRGBA and RGBA are equivalent for opaque tiles.
	switch im := img.(type) {
	case *image.RGBA:
		if im.Stride == 4*size && r.Min == (image.Point{}) {
			return &Tile{Size: size, Pix: im.Pix[:4*size*size]}, nil
		}
	case *image.NRGBA:
		if im.Stride == 4*size && r.Min == (image.Point{}) {
			return &Tile{Size: size, Pix: im.Pix[:4*size*size]}, nil
		}
	}

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), img, r.Min, draw.Src)
	return &Tile{Size: size, Pix: rgba.Pix}, nil
}

// Elevation returns the elevation in meters at the given pixel, or 0 if
// the pixel is outside the tile.
func (t *Tile) Elevation(p tiles.Pixel) float64 {
	if p.X < 0 || p.Y < 0 || p.X >= t.Size || p.Y >= t.Size {
		return 0
	}
	o := 4 * (p.Y*t.Size + p.X)
	return TerrariumElevation(t.Pix[o], t.Pix[o+1], t.Pix[o+2])
}

// TerrariumElevation decodes the elevation encoded in a Terrarium pixel.
func TerrariumElevation(r, g, b uint8) float64 {
	return float64(r)*256 + float64(g) + float64(b)/256 - 32768
}
