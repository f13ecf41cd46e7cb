// config/config_test.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmp/trackenrich/util"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`{
  "airspace": { "url": "https://tiles.example.com/asp/{z}/{x}/{y}.pbf", "max_tiles": 20 },
  "fetch": { "timeout": "2s", "retry_delay": "250ms", "requests_per_second": 10 },
  "log": { "level": "debug" }
}`))
	if err != nil {
		t.Fatal(err)
	}

	d := Default()
	if c.Airspace.MaxTiles != 20 || c.Airspace.Layer != d.Airspace.Layer {
		t.Errorf("unexpected airspace config %+v", c.Airspace)
	}
	if c.Terrain != d.Terrain {
		t.Errorf("terrain config should be the default: %+v", c.Terrain)
	}
	fo := c.FetchOptions()
	if fo.Timeout != 2*time.Second || fo.RetryDelay != 250*time.Millisecond || fo.RequestsPerSecond != 10 ||
		fo.Retries != 3 || !fo.RetryOnTimeout {
		t.Errorf("unexpected fetch options %+v", fo)
	}
	if ao := c.AirspaceOptions(); ao.URL == nil || ao.MaxTiles != 20 || ao.Zoom != 12 {
		t.Errorf("unexpected airspace options %+v", ao)
	}
	if to := c.TerrainOptions(); to.Zoom != 10 || to.TileSize != 256 || to.MaxURLs != 150 || to.Concurrency != 5 {
		t.Errorf("unexpected terrain options %+v", to)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name, json string
		is         error
		contains   string
	}{
		{"UnknownField", `{"terrain": {"urll": "x"}}`, nil, "urll"},
		{"Duplicate", `{"log": {"level": "info", "level": "debug"}}`, util.ErrDuplicateJSONKey, ""},
		{"Duration", `{"fetch": {"timeout": "soon"}}`, nil, "soon"},
		{"DurationType", `{"fetch": {"timeout": 5}}`, nil, "duration must be a string"},
		{"BadTemplate", `{"terrain": {"url": "https://example.com/{z}/{x}.png"}}`, ErrInvalid, "missing {y}"},
		{"BadScheme", `{"airspace": {"url": "ftp://example.com/{z}/{x}/{y}"}}`, ErrInvalid, "unsupported scheme"},
		{"Zoom", `{"terrain": {"zoom": 30}}`, ErrInvalid, "terrain.zoom"},
		{"Concurrency", `{"fetch": {"concurrency": 0}}`, ErrInvalid, "fetch.concurrency"},
		{"Credentials", `{"s3": {"access_key_id": "AKIA"}}`, ErrInvalid, "given together"},
		{"LogLevel", `{"log": {"level": "loud"}}`, ErrInvalid, "log.level"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.json))
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Errorf("expected %v, got %v", tc.is, err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("expected %q in %q", tc.contains, err.Error())
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"terrain": {"max_urls": 12}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Terrain.MaxURLs != 12 {
		t.Errorf("max_urls %d", c.Terrain.MaxURLs)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestDurationJSON(t *testing.T) {
	b, err := Duration(1500 * time.Millisecond).MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1.5s"` {
		t.Errorf("got %s", b)
	}
	var d Duration
	if err := d.UnmarshalJSON(b); err != nil || time.Duration(d) != 1500*time.Millisecond {
		t.Errorf("got %s, %v", time.Duration(d), err)
	}
}
