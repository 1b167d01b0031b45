package utils

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	goutils "go.viam.com/utils"
)

// StoppableWorkers is a group of background goroutines that share one context and are stopped
// together. The zero value is not usable; build one with NewStoppableWorkers.
type StoppableWorkers struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	active sync.WaitGroup
}

// NewStoppableWorkers starts each function in its own goroutine.
func NewStoppableWorkers(funcs ...func(context.Context)) *StoppableWorkers {
	ctx, cancel := context.WithCancel(context.Background())
	sw := &StoppableWorkers{ctx: ctx, cancel: cancel}
	sw.Add(funcs...)
	return sw
}

// NewStoppableWorkerWithTicker starts one goroutine that calls f every period on clk until
// stopped. A call that runs longer than period delays the next one rather than overlapping it.
// A nil clock uses the wall clock.
func NewStoppableWorkerWithTicker(clk clock.Clock, period time.Duration, f func(context.Context)) *StoppableWorkers {
	if clk == nil {
		clk = clock.New()
	}
	return NewStoppableWorkers(func(ctx context.Context) {
		ticker := clk.Ticker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return
			}
			f(ctx)
		}
	})
}

// Add starts more workers. After Stop it starts nothing.
func (sw *StoppableWorkers) Add(funcs ...func(context.Context)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.ctx.Err() != nil {
		return
	}
	sw.active.Add(len(funcs))
	for _, f := range funcs {
		goutils.PanicCapturingGo(func() {
			defer sw.active.Done()
			f(sw.ctx)
		})
	}
}

// Stop cancels the workers' context and waits for every worker to return. It may be called
// more than once.
func (sw *StoppableWorkers) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.cancel()
	sw.active.Wait()
}

// Stopped returns whether Stop has been called.
func (sw *StoppableWorkers) Stopped() bool {
	return sw.ctx.Err() != nil
}
