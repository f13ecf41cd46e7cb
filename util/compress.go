// util/compress.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

var ErrCompactOverflow = errors.New("compact value overflows target type")

func DeltaEncode[T constraints.Integer](d []T) []T {
	if len(d) == 0 {
		return nil
	}
	r := make([]T, len(d))

	var prev T
	for i, v := range d {
		r[i] = v - prev
		prev = v
	}
	return r
}

func DeltaDecode[T constraints.Integer](d []T) []T {
	if len(d) == 0 {
		return nil
	}
	r := make([]T, len(d))

	var prev T
	for i, delta := range d {
		r[i] = prev + delta
		prev = r[i]
	}
	return r
}

// ZigZagEncode maps signed values to unsigned ones so that values with a
// small magnitude have a small encoding: 0, -1, 1, -2, 2 -> 0, 1, 2, 3, 4.
func ZigZagEncode[T constraints.Signed](v T) uint64 {
	x := int64(v)
	return uint64((x << 1) ^ (x >> 63))
}

func ZigZagDecode[T constraints.Signed](u uint64) T {
	return T(int64(u>>1) ^ -int64(u&1))
}

// EncodeCompact delta-encodes the values, zigzags the deltas and writes
// them as unsigned varints. Slowly-varying sequences like timestamps and
// altitudes end up with one or two bytes per value.
func EncodeCompact[T constraints.Signed](values []T) []byte {
	if len(values) == 0 {
		return nil
	}

	// Widen first so that deltas of narrow types don't wrap.
	wide := make([]int64, len(values))
	for i, v := range values {
		wide[i] = int64(v)
	}

	b := binary.AppendUvarint(make([]byte, 0, 2*len(values)+binary.MaxVarintLen64), uint64(len(values)))
	for _, d := range DeltaEncode(wide) {
		b = binary.AppendUvarint(b, ZigZagEncode(d))
	}
	return b
}

// DecodeCompact is the inverse of EncodeCompact.
func DecodeCompact[T constraints.Signed](b []byte) ([]T, error) {
	if len(b) == 0 {
		return nil, nil
	}

	n, sz := binary.Uvarint(b)
	if sz <= 0 {
		return nil, fmt.Errorf("compact: invalid length prefix")
	}
	b = b[sz:]
	if n > uint64(len(b)) { // every value takes at least one byte
		return nil, fmt.Errorf("compact: length %d exceeds %d remaining bytes", n, len(b))
	}

	deltas := make([]int64, n)
	for i := range deltas {
		u, sz := binary.Uvarint(b)
		if sz <= 0 {
			return nil, fmt.Errorf("compact: truncated value %d of %d", i, n)
		}
		b = b[sz:]
		deltas[i] = ZigZagDecode[int64](u)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("compact: %d trailing bytes", len(b))
	}

	r := make([]T, n)
	for i, v := range DeltaDecode(deltas) {
		if int64(T(v)) != v {
			return nil, fmt.Errorf("compact: value %d: %w", v, ErrCompactOverflow)
		}
		r[i] = T(v)
	}
	return r, nil
}
