package utils

import "math"

// RollingStats is a fixed-capacity circular buffer of samples that maintains the window's mean
// and sample variance incrementally. It is not safe for concurrent use.
type RollingStats struct {
	data    []float64
	pos     int
	written bool
	filled  bool

	mean     float64
	variance float64
}

// NewRollingStats returns a window holding `numSamples` samples. Windows smaller than two
// samples are grown to two so the sample variance is defined.
func NewRollingStats(numSamples int) *RollingStats {
	if numSamples < 2 {
		numSamples = 2
	}
	return &RollingStats{data: make([]float64, numSamples)}
}

// NumSamples returns the capacity of the window.
func (rs *RollingStats) NumSamples() int {
	return len(rs.data)
}

// Add writes a sample over the oldest one.
func (rs *RollingStats) Add(x float64) {
	old := rs.data[rs.pos]
	rs.data[rs.pos] = x
	rs.pos++
	if rs.pos >= len(rs.data) {
		rs.pos = 0
	}
	rs.written = true

	if !rs.filled {
		if rs.pos == 0 {
			rs.filled = true
			rs.recompute()
		}
		return
	}

	n := float64(len(rs.data))
	oldMean := rs.mean
	rs.mean += (x - old) / n
	rs.variance += (x - old) * (x - rs.mean + old - oldMean) / (n - 1)
	if rs.variance < 0 {
		rs.variance = 0
	}
}

func (rs *RollingStats) recompute() {
	n := float64(len(rs.data))
	sum := 0.0
	for _, d := range rs.data {
		sum += d
	}
	rs.mean = sum / n

	sq := 0.0
	for _, d := range rs.data {
		sq += (d - rs.mean) * (d - rs.mean)
	}
	rs.variance = sq / (n - 1)
}

// Latest returns the most recently written sample, whether or not the window is full.
func (rs *RollingStats) Latest() (float64, bool) {
	if !rs.written {
		return 0, false
	}
	idx := rs.pos - 1
	if idx < 0 {
		idx = len(rs.data) - 1
	}
	return rs.data[idx], true
}

// Filled returns whether every slot of the window has been written at least once.
func (rs *RollingStats) Filled() bool {
	return rs.filled
}

// Mean returns the window mean. Only meaningful once Filled.
func (rs *RollingStats) Mean() float64 {
	return rs.mean
}

// Variance returns the window sample variance. Only meaningful once Filled.
func (rs *RollingStats) Variance() float64 {
	return rs.variance
}

// StdDev returns the window sample standard deviation. Only meaningful once Filled.
func (rs *RollingStats) StdDev() float64 {
	return math.Sqrt(rs.variance)
}

// Samples returns a copy of the window, oldest first.
func (rs *RollingStats) Samples() []float64 {
	out := make([]float64, 0, len(rs.data))
	out = append(out, rs.data[rs.pos:]...)
	return append(out, rs.data[:rs.pos]...)
}
