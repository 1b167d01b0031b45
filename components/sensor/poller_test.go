package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/ecse211/gridbot/logging"
)

type countingSource struct {
	mu      sync.Mutex
	calls   map[Channel]int
	failing map[Channel]bool
}

func (s *countingSource) Sample(ctx context.Context, ch Channel) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[ch]++
	if s.failing[ch] {
		return 0, errors.New("sensor unplugged")
	}
	return float64(s.calls[ch]), nil
}

func (s *countingSource) count(ch Channel) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[ch]
}

func TestPollSkipsIdleChannels(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	hub := NewHub(5, logger)
	source := &countingSource{calls: map[Channel]int{}, failing: map[Channel]bool{FrontColor: true}}
	poller := NewPoller(hub, source, logger)

	poller.Poll(context.Background())
	for _, ch := range Channels() {
		test.That(t, source.count(ch), test.ShouldEqual, 0)
	}

	lease := hub.Acquire(FrontRange, FrontColor)
	poller.Poll(context.Background())
	poller.Poll(context.Background())
	test.That(t, source.count(FrontRange), test.ShouldEqual, 2)
	test.That(t, source.count(FrontColor), test.ShouldEqual, 2)
	test.That(t, source.count(LeftLight), test.ShouldEqual, 0)

	latest, ok := hub.Latest(FrontRange)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, latest, test.ShouldEqual, 2.0)
	_, ok = hub.Latest(FrontColor)
	test.That(t, ok, test.ShouldBeFalse)
	// The second failure in the same second is counted, not logged.
	warnings := logs.FilterMessage("cannot sample sensor").All()
	test.That(t, len(warnings), test.ShouldEqual, 1)
	test.That(t, warnings[0].ContextMap()["channel"], test.ShouldEqual, "front_color")

	test.That(t, lease.Release(), test.ShouldBeNil)
	poller.Poll(context.Background())
	test.That(t, source.count(FrontRange), test.ShouldEqual, 2)
}

func TestPollerStart(t *testing.T) {
	logger := logging.NewTestLogger(t)
	hub := NewHub(5, logger)
	source := &countingSource{calls: map[Channel]int{}}
	poller := NewPoller(hub, source, logger)
	poller.Start(nil, time.Millisecond)
	defer poller.Close()

	lease := hub.Acquire(LeftLight)
	defer lease.Release()
	v, err := hub.Await(context.Background(), LeftLight, Above(3))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldBeGreaterThan, 3)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, ok := hub.Stats(LeftLight)
		test.That(tb, ok, test.ShouldBeTrue)
	})
	test.That(t, source.count(RightLight), test.ShouldEqual, 0)
}
