package breaks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeltas(t *testing.T) {
	assert.Equal(t, []int{1, 1, -1, 0, 1}, Deltas([]int{1, 3, 5, 2, 2, 9}))
	assert.Nil(t, Deltas([]int{4}))
	assert.Nil(t, Deltas(nil))
}

func TestWindow(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 1},
		{1, 1},
		{10, 1},
		{11, 2},
		{21, 3},
		{95, 10},
		{250, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Window(tt.n), "n=%d", tt.n)
	}
}

func TestMovingAverage(t *testing.T) {
	avg := MovingAverage([]int{1, 1, -1, -1, -1}, 2)
	assert.InDeltaSlice(t, []float64{1, 1, 0, -1, -1}, avg, 1e-9)

	avg = MovingAverage([]int{1, -1, 1}, 5)
	assert.InDeltaSlice(t, []float64{1, 0, 1.0 / 3}, avg, 1e-9)

	assert.Empty(t, MovingAverage(nil, 3))
}

func TestCliffs(t *testing.T) {
	tests := []struct {
		name    string
		numbers []int
		want    []int
	}{
		{
			name:    "ascending restart",
			numbers: []int{1, 2, 3, 4, 1, 2, 3, 4},
			want:    []int{4},
		},
		{
			name:    "repeated descending runs",
			numbers: []int{8, 7, 6, 5, 4, 3, 2, 1, 8, 7, 6, 5, 4, 3, 2, 1, 8, 7, 6, 5, 4},
			want:    []int{7, 15},
		},
		{
			name:    "monotonic",
			numbers: []int{1, 3, 5, 7, 9, 11},
			want:    nil,
		},
		{
			name:    "single point",
			numbers: []int{12},
			want:    nil,
		},
		{
			name:    "repeated numbers",
			numbers: []int{5, 5, 5, 5},
			want:    nil,
		},
		{
			name:    "reversal near the top is not a cliff",
			numbers: []int{1, 2, 3, 4, 5, 4, 3},
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cliffs(tt.numbers))
		})
	}
}

func TestPeaks(t *testing.T) {
	tests := []struct {
		name    string
		numbers []int
		want    []int
	}{
		{
			name:    "single peak, unsmoothed",
			numbers: []int{1, 2, 3, 4, 5, 4, 3, 2, 1},
			want:    []int{4},
		},
		{
			name:    "smoothed peak traced to raw flip",
			numbers: []int{2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24, 26, 28, 30, 28, 26, 24, 22, 20},
			want:    []int{14},
		},
		{
			name:    "single inversion is smoothed away",
			numbers: []int{2, 4, 6, 10, 8, 12, 14, 16, 18, 20, 22, 24, 26, 28, 30, 32, 34, 36, 38, 40},
			want:    nil,
		},
		{
			name:    "monotonic",
			numbers: []int{10, 20, 30},
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Peaks(tt.numbers))
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		numbers []int
		want    []int
	}{
		{
			name:    "ascending restart cut before the restart",
			numbers: []int{1, 2, 3, 4, 1, 2, 3, 4},
			want:    []int{3},
		},
		{
			name:    "descending restarts cut after each run",
			numbers: []int{8, 7, 6, 5, 4, 3, 2, 1, 8, 7, 6, 5, 4, 3, 2, 1, 8, 7, 6, 5, 4},
			want:    []int{7, 15},
		},
		{
			name:    "peak",
			numbers: []int{1, 2, 3, 4, 5, 4, 3, 2, 1},
			want:    []int{4},
		},
		{
			name:    "no discontinuity",
			numbers: []int{1, 3, 5, 7},
			want:    nil,
		},
		{
			name:    "empty",
			numbers: nil,
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.numbers))
		})
	}
}

func TestDetect_Idempotent(t *testing.T) {
	seqs := [][]int{
		{1, 2, 3, 4, 1, 2, 3, 4},
		{8, 7, 6, 5, 4, 3, 2, 1, 8, 7, 6, 5, 4, 3, 2, 1, 8, 7, 6, 5, 4},
		{3, 9, 1, 7, 7, 2, 12, 5, 5, 30, 1, 2},
	}
	for _, s := range seqs {
		input := append([]int(nil), s...)
		first := Detect(input)
		second := Detect(input)
		assert.Equal(t, first, second)
		assert.Equal(t, s, input, "input must not be modified")
	}
}
