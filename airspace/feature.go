// airspace/feature.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package airspace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/mmp/trackenrich/log"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

var (
	ErrMissingProperty = errors.New("missing feature property")
	ErrPropertyType    = errors.New("unexpected feature property type")
	ErrGeometry        = errors.New("unsupported feature geometry")
)

// Flags is the bit field carried by each airspace feature. Bits other
// than the ones named here are preserved but not interpreted.
type Flags uint32

const (
	// FlagFloorAGL indicates that the floor is relative to the ground.
	FlagFloorAGL Flags = 1 << iota
	// FlagCeilingAGL indicates that the ceiling is relative to the ground.
	FlagCeilingAGL
)

func (f Flags) FloorAGL() bool   { return f&FlagFloorAGL != 0 }
func (f Flags) CeilingAGL() bool { return f&FlagCeilingAGL != 0 }

func (f Flags) String() string {
	floor, ceiling := "MSL", "MSL"
	if f.FloorAGL() {
		floor = "AGL"
	}
	if f.CeilingAGL() {
		ceiling = "AGL"
	}
	return fmt.Sprintf("floor %s, ceiling %s (0x%x)", floor, ceiling, uint32(f))
}

// Feature is an airspace polygon decoded from a vector tile. Its geometry
// is in tile pixel coordinates.
type Feature struct {
	Name     string
	Category string
	// Bottom and Top are in meters; each is relative to the ground if
	// the corresponding flag is set and otherwise relative to MSL.
	Bottom, Top int
	Flags       Flags
	Geometry    orb.Geometry // orb.Polygon or orb.MultiPolygon
	Bound       orb.Bound
}

// Floor returns the absolute altitude of the bottom of the airspace above
// ground at the given elevation.
func (f *Feature) Floor(ground int) int {
	if f.Flags.FloorAGL() {
		return f.Bottom + ground
	}
	return f.Bottom
}

func (f *Feature) Ceiling(ground int) int {
	if f.Flags.CeilingAGL() {
		return f.Top + ground
	}
	return f.Top
}

func (f *Feature) Contains(p orb.Point) bool {
	if !f.Bound.Contains(p) {
		return false
	}
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	default:
		return false
	}
}

// DecodeFeature converts a decoded vector tile feature into a Feature,
// checking the type of each property.
func DecodeFeature(gf *geojson.Feature) (Feature, error) {
	var f Feature
	var err error
	if f.Name, err = stringProperty(gf.Properties, "name", true); err != nil {
		return Feature{}, err
	}
	if f.Category, err = stringProperty(gf.Properties, "category", false); err != nil {
		return Feature{}, err
	}
	if f.Bottom, err = intProperty(gf.Properties, "bottom"); err != nil {
		return Feature{}, err
	}
	if f.Top, err = intProperty(gf.Properties, "top"); err != nil {
		return Feature{}, err
	}

	flags, err := intProperty(gf.Properties, "flags")
	if errors.Is(err, ErrMissingProperty) {
		flags = 0
	} else if err != nil {
		return Feature{}, err
	} else if flags < 0 || int64(flags) > math.MaxUint32 {
		return Feature{}, fmt.Errorf("flags %d: %w", flags, ErrPropertyType)
	}
	f.Flags = Flags(flags)

	switch g := gf.Geometry.(type) {
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) < 3 {
			return Feature{}, fmt.Errorf("%s: empty polygon: %w", f.Name, ErrGeometry)
		}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return Feature{}, fmt.Errorf("%s: empty multipolygon: %w", f.Name, ErrGeometry)
		}
	case nil:
		return Feature{}, fmt.Errorf("%s: no geometry: %w", f.Name, ErrGeometry)
	default:
		return Feature{}, fmt.Errorf("%s: %s: %w", f.Name, g.GeoJSONType(), ErrGeometry)
	}
	f.Geometry = gf.Geometry
	f.Bound = gf.Geometry.Bound()

	return f, nil
}

func stringProperty(props geojson.Properties, key string, required bool) (string, error) {
	switch v := props[key].(type) {
	case string:
		return v, nil
	case nil:
		if required {
			return "", fmt.Errorf("%q: %w", key, ErrMissingProperty)
		}
		return "", nil
	default:
		// Some producers encode categories numerically.
		if n, ok := toFloat(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		}
		return "", fmt.Errorf("%q: %T: %w", key, v, ErrPropertyType)
	}
}

func intProperty(props geojson.Properties, key string) (int, error) {
	v, ok := props[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%q: %w", key, ErrMissingProperty)
	}
	n, ok := toFloat(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%q: %T: %w", key, v, ErrPropertyType)
	}
	return int(math.Round(n)), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func isGzipped(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

// DecodeTile decodes the named layer of a (possibly gzip-compressed)
// vector tile. Feature geometry is rescaled from the layer's extent to
// tileSize pixels. Features that can't be decoded are logged and skipped;
// a tile without the layer has no features.
func DecodeTile(b []byte, layer string, tileSize int, lg *log.Logger) ([]Feature, error) {
	if isGzipped(b) {
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		if b, err = io.ReadAll(zr); err != nil {
			return nil, err
		}
	}

	layers, err := mvt.Unmarshal(b)
	if err != nil {
		return nil, err
	}

	var features []Feature
	for _, l := range layers {
		if l.Name != layer {
			continue
		}

		extent := l.Extent
		if extent == 0 {
			extent = mvt.DefaultExtent
		}
		var scale orb.Projection
		if int(extent) != tileSize {
			s := float64(tileSize) / float64(extent)
			scale = func(p orb.Point) orb.Point { return orb.Point{p[0] * s, p[1] * s} }
		}

		for i, gf := range l.Features {
			if scale != nil && gf.Geometry != nil {
				gf.Geometry = project.Geometry(gf.Geometry, scale)
			}
			f, err := DecodeFeature(gf)
			if err != nil {
				lg.Warnf("layer %s: feature %d: %v", layer, i, err)
				continue
			}
			features = append(features, f)
		}
	}
	return features, nil
}
