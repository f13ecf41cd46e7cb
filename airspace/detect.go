// airspace/detect.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package airspace finds the airspaces that a track passes through using
// airspace polygons from vector tiles.
package airspace

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/mmp/trackenrich/fetch"
	"github.com/mmp/trackenrich/log"
	"github.com/mmp/trackenrich/tiles"
	"github.com/mmp/trackenrich/track"
	"github.com/mmp/trackenrich/util"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLayer          = "asp"
	DefaultZoom           = 12
	DefaultTileSize       = 4096
	DefaultMaxTiles       = 500
	DefaultCacheEntries   = 2000
	DefaultAltitudeMargin = 200
)

var ErrNoURL = errors.New("no airspace tile URL configured")

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	URL         tiles.URLBuilder
	Layer       string
	Zoom        maptile.Zoom
	TileSize    int
	MaxTiles    int
	Concurrency int
	// Airspaces with a floor more than AltitudeMargin meters above the
	// highest fix are not considered.
	AltitudeMargin int
}

func DefaultOptions() Options {
	return Options{
		Layer:          DefaultLayer,
		Zoom:           DefaultZoom,
		TileSize:       DefaultTileSize,
		MaxTiles:       DefaultMaxTiles,
		Concurrency:    5,
		AltitudeMargin: DefaultAltitudeMargin,
	}
}

// Crossing is a maximal run of consecutive fixes that are laterally
// inside an airspace.
type Crossing struct {
	StartSec   int64  `json:"start"`
	EndSec     int64  `json:"end"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Bottom     int    `json:"bottom"`
	Top        int    `json:"top"`
	Flags      Flags  `json:"flags"`
	// Into is set if the altitude of at least one fix in the run is
	// between the airspace's floor and ceiling.
	Into bool `json:"into"`
}

type Airspaces struct {
	Crossings []Crossing `json:"crossings"`
	// HasErrors is set if an airspace tile could not be fetched.
	HasErrors bool `json:"has_errors"`
	// Truncated is set if the tile limit was reached before all fixes
	// were considered.
	Truncated bool `json:"truncated"`
	Tiles     int  `json:"tiles"`
	Samples   int  `json:"samples"`
}

type Detector struct {
	fetcher Fetcher
	cache   *tiles.Cache[[]Feature]
	opts    Options
	lg      *log.Logger
}

func NewDetector(f Fetcher, cache *tiles.Cache[[]Feature], opts Options, lg *log.Logger) *Detector {
	opts.Concurrency = max(1, opts.Concurrency)
	if opts.Layer == "" {
		opts.Layer = DefaultLayer
	}
	return &Detector{
		fetcher: f,
		cache:   cache,
		opts:    opts,
		lg:      lg,
	}
}

// sample is a distinct pixel within a tile and the fixes that fall on it.
type sample struct {
	px    tiles.Pixel
	fixes []int
}

type tileBucket struct {
	url     string
	samples []sample
	index   map[tiles.Pixel]int
}

// key identifies a logical airspace; features from different tiles (or
// distinct geometries) with the same name and bounds are merged.
type key struct {
	name        string
	bottom, top int
}

type hits struct {
	feature *Feature // first feature seen for the key
	fixes   []int
}

// Detect returns the airspaces crossed by tr. ground gives the ground
// elevation under each fix, which is used for ground-referenced floors and
// ceilings. The only errors returned are for an invalid track or a
// Detector without a URL.
func (d *Detector) Detect(ctx context.Context, tr track.Track, ground track.GroundAltitude) (Airspaces, error) {
	if err := tr.Validate(); err != nil {
		return Airspaces{}, err
	}
	if d.opts.URL == nil {
		return Airspaces{}, ErrNoURL
	}
	start := time.Now()

	var as Airspaces
	buckets := d.bucket(tr, &as)

	features := make([][]Feature, len(buckets))
	failed := make([]bool, len(buckets))
	var eg errgroup.Group
	eg.SetLimit(d.opts.Concurrency)
	for i, b := range buckets {
		eg.Go(func() error {
			e, err := d.cache.Load(ctx, b.url, func(ctx context.Context) (tiles.Entry[[]Feature], error) {
				return d.load(ctx, b.url)
			})
			if err != nil {
				d.lg.Warnf("%s: %v", b.url, err)
				failed[i] = true
			} else if !e.Absent {
				features[i] = e.Value
			}
			return nil
		})
	}
	eg.Wait()

	for _, f := range failed {
		as.HasErrors = as.HasErrors || f
	}

	maxAltitude := tr.MaxAlt() + d.opts.AltitudeMargin

	var order []key
	byKey := make(map[key]*hits)
	for bi, b := range buckets {
		for fi := range features[bi] {
			f := &features[bi][fi]
			for _, s := range b.samples {
				p := orb.Point{float64(s.px.X), float64(s.px.Y)}
				tested, inside := false, false
				for _, fix := range s.fixes {
					if f.Floor(ground.At(fix)) > maxAltitude {
						continue
					}
					if !tested {
						inside, tested = f.Contains(p), true
					}
					if !inside {
						break
					}

					k := key{name: f.Name, bottom: f.Bottom, top: f.Top}
					h, ok := byKey[k]
					if !ok {
						h = &hits{feature: f}
						byKey[k] = h
						order = append(order, k)
					}
					h.fixes = append(h.fixes, fix)
				}
			}
		}
	}

	for _, k := range order {
		h := byKey[k]
		for _, r := range util.ContiguousRanges(h.fixes) {
			as.Crossings = append(as.Crossings, d.crossing(tr, ground, h.feature, r))
		}
	}
	slices.SortStableFunc(as.Crossings, func(a, b Crossing) int {
		return cmp.Compare(a.StartSec, b.StartSec)
	})

	d.lg.Debug("airspace: detected crossings", "fixes", tr.Len(), "tiles", as.Tiles, "samples", as.Samples,
		"crossings", len(as.Crossings), "has_errors", as.HasErrors, "elapsed", time.Since(start))
	return as, nil
}

// bucket groups the track's fixes by tile and then by pixel. Once
// MaxTiles tiles have been collected, bucketing stops at the first fix
// that would need another one.
func (d *Detector) bucket(tr track.Track, as *Airspaces) []*tileBucket {
	var buckets []*tileBucket
	byURL := make(map[string]*tileBucket)
	for i := range tr.Len() {
		c := tiles.PixelCoordinates(tr.Lat[i], tr.Lon[i], d.opts.Zoom, d.opts.TileSize)
		u := d.opts.URL(c.Tile)
		b, ok := byURL[u]
		if !ok {
			if len(buckets) == d.opts.MaxTiles {
				as.Truncated = true
				d.lg.Warnf("airspace: %d tile limit reached; %d of %d fixes covered", d.opts.MaxTiles, i, tr.Len())
				break
			}
			b = &tileBucket{url: u, index: make(map[tiles.Pixel]int)}
			byURL[u] = b
			buckets = append(buckets, b)
		}

		si, ok := b.index[c.Px]
		if !ok {
			si = len(b.samples)
			b.index[c.Px] = si
			b.samples = append(b.samples, sample{px: c.Px})
		}
		b.samples[si].fixes = append(b.samples[si].fixes, i)
	}

	as.Tiles = len(buckets)
	for _, b := range buckets {
		as.Samples += len(b.samples)
	}
	return buckets
}

func (d *Detector) crossing(tr track.Track, ground track.GroundAltitude, f *Feature, r [2]int) Crossing {
	c := Crossing{
		StartSec:   tr.TimeSec[r[0]],
		EndSec:     tr.TimeSec[r[1]],
		StartIndex: r[0],
		EndIndex:   r[1],
		Name:       f.Name,
		Category:   f.Category,
		Bottom:     f.Bottom,
		Top:        f.Top,
		Flags:      f.Flags,
	}
	for i := r[0]; i <= r[1]; i++ {
		g := ground.At(i)
		if alt := tr.Alt[i]; alt >= f.Floor(g) && alt <= f.Ceiling(g) {
			c.Into = true
			break
		}
	}
	return c
}

func (d *Detector) load(ctx context.Context, url string) (tiles.Entry[[]Feature], error) {
	b, err := d.fetcher.Fetch(ctx, url)
	if errors.Is(err, fetch.ErrNotFound) {
		return tiles.AbsentEntry[[]Feature](), nil
	} else if err != nil {
		return tiles.Entry[[]Feature]{}, err
	}

	features, err := DecodeTile(b, d.opts.Layer, d.opts.TileSize, d.lg)
	if err != nil {
		d.lg.Warnf("%s: unable to decode airspace tile: %v", url, err)
		return tiles.AbsentEntry[[]Feature](), nil
	}
	return tiles.ValueEntry(features), nil
}
