// enrich/record.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package enrich

import (
	"errors"
	"fmt"
	"io"

	"github.com/mmp/trackenrich/airspace"
	"github.com/mmp/trackenrich/track"
	"github.com/mmp/trackenrich/util"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const RecordVersion = 1

var ErrRecordVersion = errors.New("unsupported record version")

// Record is the stored form of an enrichment result. The per-fix arrays
// are delta and varint encoded, which makes them much smaller than the
// raw values since consecutive fixes are close in time and elevation.
type Record struct {
	Version  int    `msgpack:"v"`
	NumFixes int    `msgpack:"n"`
	TimeSec  []byte `msgpack:"t"`
	Ground   []byte `msgpack:"g"`

	GroundHasErrors   bool `msgpack:"ge,omitempty"`
	GroundTruncated   bool `msgpack:"gt,omitempty"`
	AirspaceHasErrors bool `msgpack:"ae,omitempty"`
	AirspaceTruncated bool `msgpack:"at,omitempty"`

	Crossings []airspace.Crossing `msgpack:"c"`
}

func NewRecord(tr track.Track, r Result) Record {
	return Record{
		Version:           RecordVersion,
		NumFixes:          tr.Len(),
		TimeSec:           util.EncodeCompact(tr.TimeSec),
		Ground:            util.EncodeCompact(r.Ground.Altitudes),
		GroundHasErrors:   r.Ground.HasErrors,
		GroundTruncated:   r.Ground.Truncated,
		AirspaceHasErrors: r.Airspaces.HasErrors,
		AirspaceTruncated: r.Airspaces.Truncated,
		Crossings:         r.Airspaces.Crossings,
	}
}

// Decode returns the fix times and the enrichment result stored in the
// record.
func (rec Record) Decode() ([]int64, Result, error) {
	if rec.Version != RecordVersion {
		return nil, Result{}, fmt.Errorf("%d: %w", rec.Version, ErrRecordVersion)
	}

	times, err := util.DecodeCompact[int64](rec.TimeSec)
	if err != nil {
		return nil, Result{}, fmt.Errorf("times: %w", err)
	}
	ground, err := util.DecodeCompact[int](rec.Ground)
	if err != nil {
		return nil, Result{}, fmt.Errorf("ground: %w", err)
	}
	if len(times) != rec.NumFixes || len(ground) != rec.NumFixes {
		return nil, Result{}, fmt.Errorf("%d times and %d altitudes for %d fixes: %w", len(times), len(ground),
			rec.NumFixes, track.ErrMismatchedLengths)
	}

	r := Result{
		Ground: track.GroundAltitude{
			Altitudes: ground,
			HasErrors: rec.GroundHasErrors,
			Truncated: rec.GroundTruncated,
		},
		Airspaces: airspace.Airspaces{
			Crossings: rec.Crossings,
			HasErrors: rec.AirspaceHasErrors,
			Truncated: rec.AirspaceTruncated,
		},
	}
	return times, r, nil
}

// WriteRecord writes the record as zstd-compressed msgpack.
func WriteRecord(w io.Writer, rec Record) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(rec); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func ReadRecord(r io.Reader) (Record, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return Record{}, err
	}
	defer zr.Close()

	var rec Record
	err = msgpack.NewDecoder(zr).Decode(&rec)
	return rec, err
}
