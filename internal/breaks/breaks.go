// Package breaks finds discontinuities in a house-number sequence ordered
// along a street: cliffs, where numbering restarts, and peaks or valleys,
// where numbering reverses direction.
//
// All functions are pure; they return indices into the input sequence.
package breaks

import (
	"sort"
)

// cliffThreshold is the fraction of the number range seen since the last
// break below which a direction change counts as a restart.
const cliffThreshold = 0.25

// maxWindow caps the moving-average window used for peak detection.
const maxWindow = 10

// Deltas returns the direction of each step: sign(numbers[i+1]-numbers[i]).
func Deltas(numbers []int) []int {
	if len(numbers) < 2 {
		return nil
	}
	out := make([]int, len(numbers)-1)
	for i := range out {
		out[i] = sign(numbers[i+1] - numbers[i])
	}
	return out
}

// Window returns the moving-average window for a sequence of n numbers:
// min(ceil(n/10), 10), at least 1.
func Window(n int) int {
	w := (n + 9) / 10
	if w > maxWindow {
		return maxWindow
	}
	if w < 1 {
		return 1
	}
	return w
}

// MovingAverage returns the running-sum average of deltas over window
// entries. The window narrows at the start: entry i averages the i+1 values
// seen so far until the full width is reached.
func MovingAverage(deltas []int, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(deltas))
	var sum float64
	for i, d := range deltas {
		sum += float64(d)
		if i >= window {
			sum -= float64(deltas[i-window])
		}
		width := window
		if i < window {
			width = i + 1
		}
		out[i] = sum / float64(width)
	}
	return out
}

// Cliffs returns the indices where the sequence restarts. A break is
// recorded when the step direction changes and the current number sits in
// the bottom quarter of the range observed since the previous break; the
// observed range then resets.
func Cliffs(numbers []int) []int {
	deltas := Deltas(numbers)
	if len(deltas) < 2 {
		return nil
	}

	var out []int
	lo, hi := numbers[0], numbers[0]
	prev := 0
	for i, d := range deltas {
		n := numbers[i]
		lo, hi = min(lo, n), max(hi, n)
		if d == 0 {
			continue
		}
		if prev != 0 && d != prev && float64(n-lo) < cliffThreshold*float64(hi-lo) {
			out = append(out, i)
			lo, hi = n, n
		}
		prev = d
	}
	return out
}

// Peaks returns the indices where the smoothed step direction reverses. Each
// reversal of the moving average is traced back to the raw step where the
// direction actually flips, searching ceil(window/2) entries backward and
// then forward.
func Peaks(numbers []int) []int {
	deltas := Deltas(numbers)
	if len(deltas) < 2 {
		return nil
	}

	w := Window(len(numbers))
	reach := (w + 1) / 2
	avg := MovingAverage(deltas, w)

	var out []int
	tracked := 0
	for i, a := range avg {
		s := signf(a)
		if s == 0 || s == tracked {
			continue
		}
		if tracked == 0 {
			tracked = s
			continue
		}
		idx := rawCrossing(deltas, i, reach, s)
		if len(out) == 0 || out[len(out)-1] != idx {
			out = append(out, idx)
		}
		tracked = s
	}
	return out
}

// rawCrossing finds the delta index near i where the raw direction first
// becomes s.
func rawCrossing(deltas []int, i, reach, s int) int {
	flips := func(j int) bool {
		return j >= 1 && j < len(deltas) && deltas[j] == s && deltas[j-1] != s
	}
	for k := 0; k <= reach; k++ {
		if flips(i - k) {
			return i - k
		}
	}
	for k := 1; k <= reach; k++ {
		if flips(i + k) {
			return i + k
		}
	}
	return i
}

// Detect merges cliffs and peaks into sorted split-after indices: the
// sequence should be cut between index k and k+1 for every returned k.
//
// A cliff index marks the low point of a restart. It is moved back by one
// when the jump into it is larger than the jump out of it, so the cut falls
// on the discontinuity. Peaks within one position of a cliff describe the
// same event and are dropped.
func Detect(numbers []int) []int {
	n := len(numbers)
	cliffs := Cliffs(numbers)

	seen := make(map[int]bool)
	var out []int
	add := func(k int) {
		if k < 0 || k >= n-1 || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
	}

	var cuts []int
	for _, c := range cliffs {
		k := c
		if c >= 1 && c+1 < n && abs(numbers[c]-numbers[c-1]) > abs(numbers[c+1]-numbers[c]) {
			k = c - 1
		}
		cuts = append(cuts, k)
		add(k)
	}

	for _, p := range Peaks(numbers) {
		near := false
		for _, k := range cuts {
			if abs(p-k) <= 1 || abs(p-(k+1)) <= 1 {
				near = true
				break
			}
		}
		if !near {
			add(p)
		}
	}

	sort.Ints(out)
	return out
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func signf(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
