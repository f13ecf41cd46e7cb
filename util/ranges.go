// util/ranges.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import "slices"

// ContiguousRanges returns the maximal runs of consecutive integers in
// indices as inclusive [start, end] pairs, sorted by start. indices may be
// unsorted and may contain duplicates; it is not modified.
func ContiguousRanges(indices []int) [][2]int {
	if len(indices) == 0 {
		return nil
	}

	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var r [][2]int
	start := sorted[0]
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			r = append(r, [2]int{start, sorted[i-1]})
			start = sorted[i]
		}
	}
	return append(r, [2]int{start, sorted[len(sorted)-1]})
}
