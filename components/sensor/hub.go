package sensor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/utils"
)

// ErrRefUnderflow is returned when a channel's reference count would go negative.
var ErrRefUnderflow = errors.New("sensor reference count underflow")

type channelState struct {
	mu      *sync.Mutex
	buf     *utils.RollingStats
	watches []*Watch
	refs    *atomic.Int32
}

// A Hub holds a rolling window of readings per channel. Writes to one category of channels
// never wait on another category's lock.
type Hub struct {
	locks    [numCategories]sync.Mutex
	channels [numChannels]channelState
	logger   logging.Logger
}

// NewHub returns a hub keeping bufferSize readings per channel.
func NewHub(bufferSize int, logger logging.Logger) *Hub {
	h := &Hub{logger: logger}
	for c := Channel(0); c < numChannels; c++ {
		h.channels[c] = channelState{
			mu:   &h.locks[c.category()],
			buf:  utils.NewRollingStats(bufferSize),
			refs: atomic.NewInt32(0),
		}
	}
	return h
}

func (h *Hub) state(ch Channel) (*channelState, error) {
	if !ch.valid() {
		return nil, errors.Errorf("unknown sensor channel %d", int(ch))
	}
	return &h.channels[ch], nil
}

// Update records a reading and fires every watch on ch whose trigger accepts it.
func (h *Hub) Update(ch Channel, v float64) {
	st, err := h.state(ch)
	if err != nil {
		h.logger.Error(err)
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	st.buf.Add(v)
	pending := st.watches[:0]
	for _, w := range st.watches {
		if w.trigger.Fire(v) {
			w.c <- v
			continue
		}
		pending = append(pending, w)
	}
	for i := len(pending); i < len(st.watches); i++ {
		st.watches[i] = nil
	}
	st.watches = pending
}

// Latest returns the most recent reading of ch, whether or not its window is full.
func (h *Hub) Latest(ch Channel) (float64, bool) {
	st, err := h.state(ch)
	if err != nil {
		return 0, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.buf.Latest()
}

// Stats returns the moving statistics of ch. It returns false until the window has filled.
func (h *Hub) Stats(ch Channel) (Stats, bool) {
	st, err := h.state(ch)
	if err != nil {
		return Stats{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.buf.Filled() {
		return Stats{}, false
	}
	return Stats{Mean: st.buf.Mean(), Variance: st.buf.Variance(), StdDev: st.buf.StdDev()}, true
}

// Samples returns the window of ch oldest first. It returns false until the window has filled.
func (h *Hub) Samples(ch Channel) ([]float64, bool) {
	st, err := h.state(ch)
	if err != nil {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.buf.Filled() {
		return nil, false
	}
	return st.buf.Samples(), true
}

// IncrementRefs registers one more consumer of ch and returns the new count.
func (h *Hub) IncrementRefs(ch Channel) (int, error) {
	st, err := h.state(ch)
	if err != nil {
		return 0, err
	}
	return int(st.refs.Inc()), nil
}

// DecrementRefs releases one consumer of ch. A count already at zero is left alone and
// ErrRefUnderflow returned.
func (h *Hub) DecrementRefs(ch Channel) (int, error) {
	st, err := h.state(ch)
	if err != nil {
		return 0, err
	}
	for {
		n := st.refs.Load()
		if n <= 0 {
			h.logger.Errorw("refusing to release an unreferenced channel", "channel", ch.String())
			return 0, errors.Wrapf(ErrRefUnderflow, "channel %s", ch)
		}
		if st.refs.CompareAndSwap(n, n-1) {
			return int(n - 1), nil
		}
	}
}

// Refs returns how many consumers hold ch.
func (h *Hub) Refs(ch Channel) int {
	st, err := h.state(ch)
	if err != nil {
		return 0
	}
	return int(st.refs.Load())
}

// A Lease holds references on a set of channels until released.
type Lease struct {
	hub      *Hub
	channels []Channel
	released *atomic.Bool
}

// Acquire references every channel in chs so the poller samples them. Callers defer Release.
func (h *Hub) Acquire(chs ...Channel) *Lease {
	l := &Lease{hub: h, released: atomic.NewBool(false)}
	for _, ch := range chs {
		if _, err := h.IncrementRefs(ch); err != nil {
			h.logger.Error(err)
			continue
		}
		l.channels = append(l.channels, ch)
	}
	return l
}

// Channels returns the channels the lease holds.
func (l *Lease) Channels() []Channel {
	return append([]Channel(nil), l.channels...)
}

// Release drops the lease's references. Only the first call has any effect.
func (l *Lease) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	for _, ch := range l.channels {
		_, decErr := l.hub.DecrementRefs(ch)
		err = multierr.Combine(err, decErr)
	}
	return err
}

// A Watch delivers the first reading of its channel that fires its trigger on C.
type Watch struct {
	// C receives exactly one reading when the trigger fires.
	C <-chan float64

	c       chan float64
	trigger Trigger
	hub     *Hub
	ch      Channel
}

// Watch registers trigger on ch. The channel must be held by a lease, or nothing will ever
// update it. The caller must Cancel the watch when done with it.
func (h *Hub) Watch(ch Channel, trigger Trigger) (*Watch, error) {
	st, err := h.state(ch)
	if err != nil {
		return nil, err
	}
	if st.refs.Load() <= 0 {
		return nil, errors.Errorf("cannot watch %s while no lease holds it", ch)
	}
	c := make(chan float64, 1)
	w := &Watch{C: c, c: c, trigger: trigger, hub: h, ch: ch}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.watches = append(st.watches, w)
	return w, nil
}

// Cancel unregisters the watch. It is safe to call after the watch fired.
func (w *Watch) Cancel() {
	st := &w.hub.channels[w.ch]
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, other := range st.watches {
		if other == w {
			st.watches = append(st.watches[:i], st.watches[i+1:]...)
			return
		}
	}
}

// Await blocks until a reading of ch fires trigger and returns that reading.
func (h *Hub) Await(ctx context.Context, ch Channel, trigger Trigger) (float64, error) {
	w, err := h.Watch(ch, trigger)
	if err != nil {
		return 0, err
	}
	defer w.Cancel()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case v := <-w.C:
		return v, nil
	}
}
