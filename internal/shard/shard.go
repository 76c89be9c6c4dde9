// Package shard implements the re-sharding predicate from spec §3/§4.5:
// when a logical zoom table exceeds the split threshold, partition it
// along the axis ChooseAxis picks into tiles_{z}_part_{i} physical tables.
package shard

import "sort"

// DefaultThreshold is the row-count split threshold (spec §3: "default
// 5,000 rows").
const DefaultThreshold = 5000

// ChooseAxis decides which coordinate to partition by, following the
// Python original's reshape_table literally: split by X when the sorted
// X values span more than shardCount*2, otherwise always split by Y (see
// DESIGN.md's open-question decision — the source's else-branch has no
// further fallback, so this repo follows it as-is).
func ChooseAxis(xs, ys []int, shardCount int) string {
	if shardCount <= 0 {
		return "x"
	}
	xSpan := span(xs)
	if xSpan > shardCount*2 {
		return "x"
	}
	return "y"
}

func span(vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]int(nil), vals...)
	sort.Ints(sorted)
	return sorted[len(sorted)-1] - sorted[0]
}

// Partition splits n rows (already sorted by the chosen axis) into
// n/threshold+1 (integer division) roughly-equal slabs, or a single slab
// when n < threshold, and returns the row-index boundaries [start, end)
// for each physical shard.
func Partition(n, threshold int) [][2]int {
	if n == 0 {
		return nil
	}
	shardCount := n / threshold
	if shardCount == 0 {
		return [][2]int{{0, n}}
	}
	total := shardCount + 1
	size := (n + total - 1) / total
	var bounds [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
