// enrich/enrich.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package enrich ties together terrain sampling and airspace detection. An
// Enricher is created once per process; its tile caches are shared by all
// of the tracks it enriches.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mmp/trackenrich/airspace"
	"github.com/mmp/trackenrich/config"
	"github.com/mmp/trackenrich/fetch"
	"github.com/mmp/trackenrich/log"
	"github.com/mmp/trackenrich/terrain"
	"github.com/mmp/trackenrich/tiles"
	"github.com/mmp/trackenrich/track"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Result struct {
	Ground    track.GroundAltitude `json:"ground"`
	Airspaces airspace.Airspaces   `json:"airspaces"`
}

type Stats struct {
	Terrain  tiles.CacheStats `json:"terrain"`
	Airspace tiles.CacheStats `json:"airspace"`
	Fetch    fetch.Stats      `json:"fetch"`
	Tracks   int64            `json:"tracks"`
}

type Enricher struct {
	fetcher       Fetcher
	terrainCache  *tiles.Cache[*terrain.Tile]
	airspaceCache *tiles.Cache[[]airspace.Feature]
	sampler       *terrain.Sampler
	detector      *airspace.Detector // nil if airspaces aren't configured

	diskCaches   []*fetch.DiskCache
	diskMaxBytes int64
	closers      []io.Closer

	tracks atomic.Int64
	lg     *log.Logger
}

// New returns an Enricher that fetches tiles using the backends needed by
// the configured tile URLs.
func New(ctx context.Context, c config.Config, lg *log.Logger) (*Enricher, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	f := fetch.New(c.FetchOptions(), lg)
	var closers []io.Closer
	for _, scheme := range schemes(c) {
		switch scheme {
		case "s3":
			g, err := fetch.NewS3Getter(ctx, c.S3Config())
			if err != nil {
				return nil, err
			}
			f.Register("s3", g)
		case "gs":
			g, err := fetch.NewGCSGetter(ctx, c.GCS.CredentialsFile)
			if err != nil {
				return nil, err
			}
			f.Register("gs", g)
			closers = append(closers, g)
		}
	}

	var disk []*fetch.DiskCache
	if c.Fetch.DiskCacheDir != "" {
		for _, scheme := range f.Schemes() {
			g, _ := f.Getter(scheme)
			d := fetch.NewDiskCache(g, c.Fetch.DiskCacheDir, lg)
			d.MaxAge = time.Duration(c.Fetch.DiskCacheMaxAge)
			f.Register(scheme, d)
			disk = append(disk, d)
		}
		lg.Infof("caching tiles on disk in %s", c.Fetch.DiskCacheDir)
	}

	e, err := NewWithFetcher(c, f, lg)
	if err != nil {
		return nil, err
	}
	e.diskCaches = disk
	e.diskMaxBytes = int64(c.Fetch.DiskCacheMB) << 20
	e.closers = closers
	return e, nil
}

// NewWithFetcher returns an Enricher that uses the given Fetcher for all
// tiles.
func NewWithFetcher(c config.Config, f Fetcher, lg *log.Logger) (*Enricher, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	tc, err := tiles.NewCache[*terrain.Tile](tiles.CapacityForBudget(int64(c.Terrain.CacheMB)<<20,
		terrain.TileBytes(c.Terrain.TileSize)))
	if err != nil {
		return nil, fmt.Errorf("terrain cache: %w", err)
	}
	ac, err := tiles.NewCache[[]airspace.Feature](c.Airspace.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("airspace cache: %w", err)
	}

	e := &Enricher{
		fetcher:       f,
		terrainCache:  tc,
		airspaceCache: ac,
		sampler:       terrain.NewSampler(f, tc, c.TerrainOptions(), lg.With("component", "terrain")),
		lg:            lg,
	}
	if c.Airspace.URL != "" {
		e.detector = airspace.NewDetector(f, ac, c.AirspaceOptions(), lg.With("component", "airspace"))
	} else {
		lg.Info("no airspace tile URL configured; airspace crossings will not be computed")
	}
	return e, nil
}

// Enrich samples the ground elevation under tr and then finds the
// airspaces it crosses. Tile failures are reported through the HasErrors
// fields of the result; the error return is only for an invalid track.
func (e *Enricher) Enrich(ctx context.Context, tr track.Track) (Result, error) {
	if err := tr.Validate(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	var r Result
	var err error
	if r.Ground, err = e.sampler.Sample(ctx, tr); err != nil {
		return Result{}, err
	}
	if e.detector != nil {
		if r.Airspaces, err = e.detector.Detect(ctx, tr, r.Ground); err != nil {
			return Result{}, err
		}
	}
	e.tracks.Add(1)

	if r.Ground.HasErrors || r.Airspaces.HasErrors {
		e.lg.Warn("some tiles could not be fetched", "terrain", r.Ground.HasErrors,
			"airspace", r.Airspaces.HasErrors)
	}
	e.lg.Info("enriched track", "fixes", tr.Len(), "crossings", len(r.Airspaces.Crossings),
		"elapsed", time.Since(start))
	return r, nil
}

func (e *Enricher) Stats() Stats {
	s := Stats{
		Terrain:  e.terrainCache.Stats(),
		Airspace: e.airspaceCache.Stats(),
		Tracks:   e.tracks.Load(),
	}
	if f, ok := e.fetcher.(*fetch.Fetcher); ok {
		s.Fetch = f.Stats()
	}
	return s
}

// Close trims the disk tile caches to their size limit and releases the
// storage clients.
func (e *Enricher) Close() error {
	var errs []error
	if len(e.diskCaches) > 0 {
		// All of the disk caches share a directory.
		if err := e.diskCaches[0].Cull(e.diskMaxBytes); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// schemes returns the URL schemes of the configured tile templates.
func schemes(c config.Config) []string {
	var s []string
	for _, u := range []string{c.Terrain.URL, c.Airspace.URL} {
		if scheme, _, ok := strings.Cut(u, "://"); ok && !slices.Contains(s, scheme) {
			s = append(s, scheme)
		}
	}
	return s
}
