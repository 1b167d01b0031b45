package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"
)

func TestStoppableWorkers(t *testing.T) {
	ran := atomic.NewInt32(0)
	worker := func(ctx context.Context) {
		ran.Inc()
		<-ctx.Done()
	}
	sw := NewStoppableWorkers(worker, worker)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, ran.Load(), test.ShouldEqual, 2)
	})
	test.That(t, sw.Stopped(), test.ShouldBeFalse)
	sw.Stop()
	test.That(t, sw.Stopped(), test.ShouldBeTrue)
	sw.Stop()

	sw.Add(worker)
	test.That(t, ran.Load(), test.ShouldEqual, 2)
}

func TestStoppableWorkersRecoverPanics(t *testing.T) {
	sw := NewStoppableWorkers(func(ctx context.Context) { panic("wheel fell off") })
	sw.Stop()
	test.That(t, sw.Stopped(), test.ShouldBeTrue)
}

func TestStoppableWorkerWithTicker(t *testing.T) {
	mock := clock.NewMock()
	ticks := atomic.NewInt32(0)
	sw := NewStoppableWorkerWithTicker(mock, 20*time.Millisecond, func(ctx context.Context) {
		ticks.Inc()
	})

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mock.Add(20 * time.Millisecond)
		test.That(tb, ticks.Load(), test.ShouldBeGreaterThanOrEqualTo, 3)
	})
	sw.Stop()
	stopped := ticks.Load()
	mock.Add(time.Second)
	test.That(t, ticks.Load(), test.ShouldEqual, stopped)
}
