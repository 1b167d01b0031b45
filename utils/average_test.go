package utils

import (
	"math/rand"
	"testing"

	"github.com/montanaflynn/stats"
	"go.viam.com/test"
)

func TestRollingStatsFill(t *testing.T) {
	rs := NewRollingStats(4)
	_, ok := rs.Latest()
	test.That(t, ok, test.ShouldBeFalse)

	for _, v := range []float64{1, 2, 3} {
		rs.Add(v)
		latest, ok := rs.Latest()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, latest, test.ShouldEqual, v)
		test.That(t, rs.Filled(), test.ShouldBeFalse)
	}

	rs.Add(4)
	test.That(t, rs.Filled(), test.ShouldBeTrue)
	test.That(t, rs.Mean(), test.ShouldAlmostEqual, 2.5, 1e-12)
	test.That(t, rs.Samples(), test.ShouldResemble, []float64{1, 2, 3, 4})

	rs.Add(10)
	latest, _ := rs.Latest()
	test.That(t, latest, test.ShouldEqual, 10.0)
	test.That(t, rs.Samples(), test.ShouldResemble, []float64{2, 3, 4, 10})
}

func TestRollingStatsMatchesBatch(t *testing.T) {
	//nolint:gosec
	r := rand.New(rand.NewSource(7))
	rs := NewRollingStats(20)
	for i := 0; i < 500; i++ {
		rs.Add(r.Float64() * 255)
		if !rs.Filled() {
			continue
		}
		window := rs.Samples()
		mean, err := stats.Mean(window)
		test.That(t, err, test.ShouldBeNil)
		variance, err := stats.SampleVariance(window)
		test.That(t, err, test.ShouldBeNil)
		stddev, err := stats.StandardDeviationSample(window)
		test.That(t, err, test.ShouldBeNil)

		test.That(t, rs.Mean(), test.ShouldAlmostEqual, mean, 1e-6)
		test.That(t, rs.Variance(), test.ShouldAlmostEqual, variance, 1e-6)
		test.That(t, rs.StdDev(), test.ShouldAlmostEqual, stddev, 1e-6)
	}
}

func TestRollingStatsMinimumSize(t *testing.T) {
	rs := NewRollingStats(0)
	test.That(t, rs.NumSamples(), test.ShouldEqual, 2)
	rs.Add(1)
	rs.Add(3)
	test.That(t, rs.Filled(), test.ShouldBeTrue)
	test.That(t, rs.Variance(), test.ShouldAlmostEqual, 2.0, 1e-12)
}
