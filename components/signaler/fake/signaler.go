// Package fake implements a signaler that records what it was asked to announce.
package fake

import (
	"context"
	"sync"

	"github.com/ecse211/gridbot/components/signaler"
)

var _ signaler.Signaler = &Signaler{}

// A Signaler records events.
type Signaler struct {
	mu     sync.Mutex
	events []signaler.Event
}

// Signal records the event.
func (s *Signaler) Signal(ctx context.Context, event signaler.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns every recorded event in order.
func (s *Signaler) Events() []signaler.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaler.Event(nil), s.events...)
}

// Count returns how many times event was recorded.
func (s *Signaler) Count(event signaler.Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}
