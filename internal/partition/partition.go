// Package partition splits a file list into per-worker sublists so that
// parallel scan wall time stays close to the slowest worker's fair share.
// Balancing uses the elapsed scan durations recorded during previous cycles;
// files never seen before are dealt round-robin on top.
package partition

import (
	"sort"
	"time"
)

// ByElapsed partitions files into at most k non-empty sublists.
//
// Files with a recorded duration are placed with a longest-processing-time
// heuristic: sorted by descending cost, each goes to the currently lightest
// bin. A file whose own cost exceeds the per-bin average gets a bin to
// itself. Files without history are then dealt round-robin across the bins.
// When there is no history at all, the list is chunked naively.
func ByElapsed(files []string, k int, history map[string]time.Duration) [][]string {
	if len(files) == 0 || k <= 0 {
		return nil
	}
	if k > len(files) {
		k = len(files)
	}
	if k == 1 {
		return [][]string{append([]string(nil), files...)}
	}

	var known, unknown []string
	var total time.Duration
	for _, f := range files {
		if d, ok := history[f]; ok && d > 0 {
			known = append(known, f)
			total += d
		} else {
			unknown = append(unknown, f)
		}
	}
	if len(known) == 0 {
		return chunk(files, k)
	}

	// Descending by cost; ties broken by path for determinism.
	sort.Slice(known, func(i, j int) bool {
		di, dj := history[known[i]], history[known[j]]
		if di != dj {
			return di > dj
		}
		return known[i] < known[j]
	})

	bins := make([][]string, k)
	loads := make([]time.Duration, k)
	budget := total / time.Duration(k)
	dedicated := 0

	for _, f := range known {
		d := history[f]
		if d > budget && dedicated < k-1 {
			// Oversize files dominate whatever bin they land in; giving
			// them one alone lets the remainder balance across the rest.
			bins[dedicated] = append(bins[dedicated], f)
			loads[dedicated] += d
			dedicated++
			continue
		}
		i := lightest(loads, dedicated)
		bins[i] = append(bins[i], f)
		loads[i] += d
	}

	next := dedicated
	for _, f := range unknown {
		if next >= k {
			next = dedicated
		}
		bins[next] = append(bins[next], f)
		next++
	}

	// Drop bins that ended up empty (possible when most cost sits in a few
	// oversize files and there are few others).
	out := bins[:0]
	for _, b := range bins {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// lightest returns the index of the least loaded bin at or after from.
func lightest(loads []time.Duration, from int) int {
	best := from
	for i := from; i < len(loads); i++ {
		if loads[i] < loads[best] {
			best = i
		}
	}
	return best
}

// chunk splits files into k contiguous runs of near-equal length.
func chunk(files []string, k int) [][]string {
	out := make([][]string, 0, k)
	n := len(files)
	for i := 0; i < k; i++ {
		lo := i * n / k
		hi := (i + 1) * n / k
		if lo == hi {
			continue
		}
		out = append(out, append([]string(nil), files[lo:hi]...))
	}
	return out
}
