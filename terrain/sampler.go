// terrain/sampler.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package terrain computes the ground elevation under each fix of a track
// from Terrarium-encoded elevation tiles.
package terrain

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mmp/trackenrich/fetch"
	"github.com/mmp/trackenrich/log"
	"github.com/mmp/trackenrich/tiles"
	"github.com/mmp/trackenrich/track"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultURLTemplate = "https://elevation-tiles-prod.s3.amazonaws.com/terrarium/{z}/{x}/{y}.png"
	DefaultZoom        = 10
	DefaultTileSize    = 256
	DefaultMaxURLs     = 150
	// DefaultCacheBudget is the number of bytes of decoded tiles to keep
	// in memory.
	DefaultCacheBudget = 160 << 20
)

// TileBytes returns the in-memory size of a decoded tile.
func TileBytes(tileSize int) int64 {
	return int64(tileSize) * int64(tileSize) * 4
}

// Fetcher is implemented by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	URL         tiles.URLBuilder
	Zoom        maptile.Zoom
	TileSize    int
	MaxURLs     int
	Concurrency int
}

func DefaultOptions() Options {
	return Options{
		URL:         tiles.URLTemplate(DefaultURLTemplate),
		Zoom:        DefaultZoom,
		TileSize:    DefaultTileSize,
		MaxURLs:     DefaultMaxURLs,
		Concurrency: 5,
	}
}

// Sampler looks up ground elevations. It is safe for concurrent use; the
// tile cache may be shared with other Samplers.
type Sampler struct {
	fetcher Fetcher
	cache   *tiles.Cache[*Tile]
	opts    Options
	lg      *log.Logger
}

func NewSampler(f Fetcher, cache *tiles.Cache[*Tile], opts Options, lg *log.Logger) *Sampler {
	opts.Concurrency = max(1, opts.Concurrency)
	return &Sampler{
		fetcher: f,
		cache:   cache,
		opts:    opts,
		lg:      lg,
	}
}

// Sample returns the ground elevation under each fix of tr. Fixes whose
// tile is missing, could not be fetched, or was beyond the tile limit get
// an elevation of 0. The only error returned is for an invalid track.
func (s *Sampler) Sample(ctx context.Context, tr track.Track) (track.GroundAltitude, error) {
	if err := tr.Validate(); err != nil {
		return track.GroundAltitude{}, err
	}
	start := time.Now()

	n := tr.Len()
	ga := track.GroundAltitude{Altitudes: make([]int, n)}

	// Assign each fix to a tile; covered holds the number of leading
	// fixes whose tile made it under the limit.
	pixels := make([]tiles.Pixel, n)
	fixURL := make([]int, n)
	urlIndex := make(map[string]int)
	var urls []string
	covered := n
	for i := range n {
		c := tiles.PixelCoordinates(tr.Lat[i], tr.Lon[i], s.opts.Zoom, s.opts.TileSize)
		u := s.opts.URL(c.Tile)
		idx, ok := urlIndex[u]
		if !ok {
			if len(urls) == s.opts.MaxURLs {
				ga.Truncated = true
				covered = i
				break
			}
			idx = len(urls)
			urlIndex[u] = idx
			urls = append(urls, u)
		}
		pixels[i], fixURL[i] = c.Px, idx
	}
	if ga.Truncated {
		s.lg.Warnf("terrain: %d tile limit reached; %d of %d fixes covered", s.opts.MaxURLs, covered, n)
	}

	// Each worker writes only its own slot.
	decoded := make([]*Tile, len(urls))
	failed := make([]bool, len(urls))
	var eg errgroup.Group
	eg.SetLimit(s.opts.Concurrency)
	for i, u := range urls {
		eg.Go(func() error {
			e, err := s.cache.Load(ctx, u, func(ctx context.Context) (tiles.Entry[*Tile], error) {
				return s.load(ctx, u)
			})
			if err != nil {
				s.lg.Warnf("%s: %v", u, err)
				failed[i] = true
			} else if !e.Absent {
				decoded[i] = e.Value
			}
			return nil
		})
	}
	eg.Wait()

	for _, f := range failed {
		ga.HasErrors = ga.HasErrors || f
	}
	for i := range covered {
		if t := decoded[fixURL[i]]; t != nil {
			ga.Altitudes[i] = int(math.Round(t.Elevation(pixels[i])))
		}
	}

	s.lg.Debug("terrain: sampled track", "fixes", n, "tiles", len(urls), "has_errors", ga.HasErrors,
		"elapsed", time.Since(start))
	return ga, nil
}

// load fetches and decodes a single tile. Missing and undecodable tiles
// are returned as absent entries so that they are cached; only transport
// failures are returned as errors.
func (s *Sampler) load(ctx context.Context, url string) (tiles.Entry[*Tile], error) {
	b, err := s.fetcher.Fetch(ctx, url)
	if errors.Is(err, fetch.ErrNotFound) {
		return tiles.AbsentEntry[*Tile](), nil
	} else if err != nil {
		return tiles.Entry[*Tile]{}, err
	}

	t, err := DecodeTile(b, s.opts.TileSize)
	if err != nil {
		s.lg.Warnf("%s: unable to decode terrain tile: %v", url, err)
		return tiles.AbsentEntry[*Tile](), nil
	}
	return tiles.ValueEntry(t), nil
}
