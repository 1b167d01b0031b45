package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/utils"
)

// sampleWarnInterval spaces out the warnings for a channel that keeps failing.
const sampleWarnInterval = time.Second

// A Poller feeds a Hub from a Source, sampling only the channels some lease holds.
type Poller struct {
	hub    *Hub
	source Source
	logger logging.Logger

	// Only the polling goroutine touches these.
	failures [numChannels]int
	warn     [numChannels]*rate.Sometimes

	mu      sync.Mutex
	workers *utils.StoppableWorkers
}

// NewPoller returns a stopped poller.
func NewPoller(hub *Hub, source Source, logger logging.Logger) *Poller {
	p := &Poller{hub: hub, source: source, logger: logger}
	for i := range p.warn {
		p.warn[i] = &rate.Sometimes{First: 1, Interval: sampleWarnInterval}
	}
	return p
}

// Poll samples every held channel once. A failed sample is skipped; a channel that keeps
// failing is warned about at most once per second, with the number of failures since the
// last warning.
func (p *Poller) Poll(ctx context.Context) {
	for _, ch := range Channels() {
		if p.hub.Refs(ch) <= 0 {
			continue
		}
		v, err := p.source.Sample(ctx, ch)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.failures[ch]++
			p.warn[ch].Do(func() {
				p.logger.Warnw("cannot sample sensor", "channel", ch.String(), "failures", p.failures[ch], "error", err)
				p.failures[ch] = 0
			})
			continue
		}
		p.hub.Update(ch, v)
	}
}

// Start polls every period on clk until Close. A nil clock uses the wall clock.
func (p *Poller) Start(clk clock.Clock, period time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers != nil {
		return
	}
	p.workers = utils.NewStoppableWorkerWithTicker(clk, period, p.Poll)
}

// Close stops polling.
func (p *Poller) Close() {
	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}
