// cmd/trackenrich/geojson.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"slices"
	"time"

	"github.com/mmp/trackenrich/enrich"
	"github.com/mmp/trackenrich/track"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// crossingsGeoJSON returns a feature for the track followed by one feature
// for each airspace crossing, covering the fixes inside the airspace.
func crossingsGeoJSON(tr track.Track, r enrich.Result) *geojson.FeatureCollection {
	line := make(orb.LineString, tr.Len())
	for i := range tr.Len() {
		line[i] = orb.Point{tr.Lon[i], tr.Lat[i]}
	}

	fc := geojson.NewFeatureCollection()
	tf := geojson.NewFeature(line)
	tf.Properties["kind"] = "track"
	tf.Properties["ground"] = r.Ground.Altitudes
	tf.Properties["ground_has_errors"] = r.Ground.HasErrors
	tf.Properties["airspace_has_errors"] = r.Airspaces.HasErrors
	fc.Append(tf)

	for _, c := range r.Airspaces.Crossings {
		var g orb.Geometry
		if c.StartIndex == c.EndIndex {
			g = line[c.StartIndex]
		} else {
			g = slices.Clone(line[c.StartIndex : c.EndIndex+1])
		}

		f := geojson.NewFeature(g)
		f.Properties["kind"] = "crossing"
		f.Properties["name"] = c.Name
		f.Properties["category"] = c.Category
		f.Properties["bottom"] = c.Bottom
		f.Properties["top"] = c.Top
		f.Properties["flags"] = uint32(c.Flags)
		f.Properties["floor_agl"] = c.Flags.FloorAGL()
		f.Properties["ceiling_agl"] = c.Flags.CeilingAGL()
		f.Properties["into"] = c.Into
		f.Properties["start"] = time.Unix(c.StartSec, 0).UTC().Format(time.RFC3339)
		f.Properties["end"] = time.Unix(c.EndSec, 0).UTC().Format(time.RFC3339)
		fc.Append(f)
	}
	return fc
}
