// config/config.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package config holds the settings for track enrichment, which are read
// from a JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmp/trackenrich/airspace"
	"github.com/mmp/trackenrich/fetch"
	"github.com/mmp/trackenrich/terrain"
	"github.com/mmp/trackenrich/tiles"
	"github.com/mmp/trackenrich/util"

	"github.com/paulmach/orb/maptile"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Terrain  Terrain  `json:"terrain"`
	Airspace Airspace `json:"airspace"`
	Fetch    Fetch    `json:"fetch"`
	S3       S3       `json:"s3"`
	GCS      GCS      `json:"gcs"`
	Log      Log      `json:"log"`
}

type Terrain struct {
	URL      string `json:"url"`
	Zoom     int    `json:"zoom"`
	TileSize int    `json:"tile_size"`
	MaxURLs  int    `json:"max_urls"`
	CacheMB  int    `json:"cache_mb"`
}

type Airspace struct {
	// If URL is empty, airspace crossings are not computed.
	URL            string `json:"url"`
	Layer          string `json:"layer"`
	Zoom           int    `json:"zoom"`
	TileSize       int    `json:"tile_size"`
	MaxTiles       int    `json:"max_tiles"`
	CacheEntries   int    `json:"cache_entries"`
	AltitudeMargin int    `json:"altitude_margin"`
}

type Fetch struct {
	Concurrency       int      `json:"concurrency"`
	Retries           int      `json:"retries"`
	Timeout           Duration `json:"timeout"`
	RetryOnTimeout    bool     `json:"retry_on_timeout"`
	RetryDelay        Duration `json:"retry_delay"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	UserAgent         string   `json:"user_agent"`
	// If DiskCacheDir is set, raw tiles are also cached on disk there.
	DiskCacheDir    string   `json:"disk_cache_dir"`
	DiskCacheMB     int      `json:"disk_cache_mb"`
	DiskCacheMaxAge Duration `json:"disk_cache_max_age"`
}

type S3 struct {
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Endpoint        string `json:"endpoint"`
}

type GCS struct {
	CredentialsFile string `json:"credentials_file"`
}

type Log struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Duration is a time.Duration that is represented in JSON as a string
// like "5s" or "150ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func Default() Config {
	fo := fetch.DefaultOptions()
	return Config{
		Terrain: Terrain{
			URL:      terrain.DefaultURLTemplate,
			Zoom:     terrain.DefaultZoom,
			TileSize: terrain.DefaultTileSize,
			MaxURLs:  terrain.DefaultMaxURLs,
			CacheMB:  terrain.DefaultCacheBudget >> 20,
		},
		Airspace: Airspace{
			Layer:          airspace.DefaultLayer,
			Zoom:           airspace.DefaultZoom,
			TileSize:       airspace.DefaultTileSize,
			MaxTiles:       airspace.DefaultMaxTiles,
			CacheEntries:   airspace.DefaultCacheEntries,
			AltitudeMargin: airspace.DefaultAltitudeMargin,
		},
		Fetch: Fetch{
			Concurrency:    5,
			Retries:        fo.Retries,
			Timeout:        Duration(fo.Timeout),
			RetryOnTimeout: fo.RetryOnTimeout,
			RetryDelay:     Duration(fo.RetryDelay),
			UserAgent:      fo.UserAgent,
			DiskCacheMB:    512,
		},
		S3: S3{
			Region: "us-east-1",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path; settings it doesn't specify
// keep their default values.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	c := Default()
	if err := util.UnmarshalJSONBytes(b, &c); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Terrain.URL != "", "terrain.url: must be set")
	if c.Terrain.URL != "" {
		if err := tiles.ValidateTemplate(c.Terrain.URL); err != nil {
			errs = append(errs, fmt.Errorf("terrain.url: %w", err))
		}
	}
	check(c.Terrain.Zoom >= 0 && c.Terrain.Zoom <= 22, "terrain.zoom: %d out of range [0,22]", c.Terrain.Zoom)
	check(c.Terrain.TileSize > 0, "terrain.tile_size: %d must be positive", c.Terrain.TileSize)
	check(c.Terrain.MaxURLs > 0, "terrain.max_urls: %d must be positive", c.Terrain.MaxURLs)
	check(c.Terrain.CacheMB > 0, "terrain.cache_mb: %d must be positive", c.Terrain.CacheMB)

	if c.Airspace.URL != "" {
		if err := tiles.ValidateTemplate(c.Airspace.URL); err != nil {
			errs = append(errs, fmt.Errorf("airspace.url: %w", err))
		}
	}
	check(c.Airspace.Layer != "", "airspace.layer: must be set")
	check(c.Airspace.Zoom >= 0 && c.Airspace.Zoom <= 22, "airspace.zoom: %d out of range [0,22]", c.Airspace.Zoom)
	check(c.Airspace.TileSize > 0, "airspace.tile_size: %d must be positive", c.Airspace.TileSize)
	check(c.Airspace.MaxTiles > 0, "airspace.max_tiles: %d must be positive", c.Airspace.MaxTiles)
	check(c.Airspace.CacheEntries > 0, "airspace.cache_entries: %d must be positive", c.Airspace.CacheEntries)
	check(c.Airspace.AltitudeMargin >= 0, "airspace.altitude_margin: %d must not be negative", c.Airspace.AltitudeMargin)

	check(c.Fetch.Concurrency > 0, "fetch.concurrency: %d must be positive", c.Fetch.Concurrency)
	check(c.Fetch.Retries >= 0, "fetch.retries: %d must not be negative", c.Fetch.Retries)
	check(c.Fetch.Timeout >= 0, "fetch.timeout: %s must not be negative", time.Duration(c.Fetch.Timeout))
	check(c.Fetch.RetryDelay >= 0, "fetch.retry_delay: %s must not be negative", time.Duration(c.Fetch.RetryDelay))
	check(c.Fetch.RequestsPerSecond >= 0, "fetch.requests_per_second: %g must not be negative", c.Fetch.RequestsPerSecond)
	check(c.Fetch.DiskCacheMB >= 0, "fetch.disk_cache_mb: %d must not be negative", c.Fetch.DiskCacheMB)

	check((c.S3.AccessKeyID == "") == (c.S3.SecretAccessKey == ""),
		"s3: access_key_id and secret_access_key must be given together")

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: %q: expected debug, info, warn, or error", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// FetchOptions returns the options for a fetch.Fetcher.
func (c Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Retries:           c.Fetch.Retries,
		Timeout:           time.Duration(c.Fetch.Timeout),
		RetryOnTimeout:    c.Fetch.RetryOnTimeout,
		RetryDelay:        time.Duration(c.Fetch.RetryDelay),
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		UserAgent:         c.Fetch.UserAgent,
	}
}

func (c Config) TerrainOptions() terrain.Options {
	return terrain.Options{
		URL:         tiles.URLTemplate(c.Terrain.URL),
		Zoom:        maptile.Zoom(c.Terrain.Zoom),
		TileSize:    c.Terrain.TileSize,
		MaxURLs:     c.Terrain.MaxURLs,
		Concurrency: c.Fetch.Concurrency,
	}
}

func (c Config) AirspaceOptions() airspace.Options {
	opts := airspace.Options{
		Layer:          c.Airspace.Layer,
		Zoom:           maptile.Zoom(c.Airspace.Zoom),
		TileSize:       c.Airspace.TileSize,
		MaxTiles:       c.Airspace.MaxTiles,
		Concurrency:    c.Fetch.Concurrency,
		AltitudeMargin: c.Airspace.AltitudeMargin,
	}
	if c.Airspace.URL != "" {
		opts.URL = tiles.URLTemplate(c.Airspace.URL)
	}
	return opts
}

func (c Config) S3Config() fetch.S3Config {
	return fetch.S3Config{
		Region:          c.S3.Region,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		Endpoint:        c.S3.Endpoint,
	}
}
