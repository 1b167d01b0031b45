// Package fake implements mission legs that finish after a set number of ticks.
package fake

import (
	"context"
	"sync"

	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/spatialmath"
)

// A Crosser reports the robot across after Ticks ticks, or fails with Err on its first tick.
type Crosser struct {
	Ticks int
	Err   error

	mu      sync.Mutex
	from    spatialmath.Waypoint
	to      spatialmath.Waypoint
	started int
	ticked  int
}

// StartCrossing records the endpoints.
func (c *Crosser) StartCrossing(from, to spatialmath.Waypoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.from, c.to = from, to
	c.started++
	c.ticked = 0
	return nil
}

// Tick counts down to the crossing being done.
func (c *Crosser) Tick(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return false, c.Err
	}
	c.ticked++
	return c.ticked >= c.Ticks, nil
}

// Endpoints returns the last crossing started and how many have been started.
func (c *Crosser) Endpoints() (spatialmath.Waypoint, spatialmath.Waypoint, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.from, c.to, c.started
}

// A Searcher finds the flag after Ticks ticks.
type Searcher struct {
	Ticks int

	mu     sync.Mutex
	zone   config.Zone
	color  int
	ticked int
}

// StartSearch records the zone and colour.
func (s *Searcher) StartSearch(zone config.Zone, flagColor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zone, s.color = zone, flagColor
	s.ticked = 0
	return nil
}

// Tick counts down to the flag being found.
func (s *Searcher) Tick(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticked++
	return s.ticked >= s.Ticks, nil
}

// Target returns the zone and colour of the last search.
func (s *Searcher) Target() (config.Zone, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zone, s.color
}
