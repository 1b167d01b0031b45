package utils

import "go.uber.org/multierr"

// Guard undoes a half-built value when its constructor returns early. Cleanups are registered as
// resources are acquired, and OnFail runs them in reverse order unless Success was called:
//
//	guard := NewGuard(port.Close)
//	defer guard.OnFail()
//	...
//	guard.Success()
type Guard struct {
	cleanups []func() error
	success  bool
	err      error
}

// NewGuard returns a guard holding the given cleanups.
func NewGuard(cleanups ...func() error) *Guard {
	return &Guard{cleanups: cleanups}
}

// Add registers another cleanup. It runs before those registered earlier.
func (g *Guard) Add(cleanup func() error) {
	g.cleanups = append(g.cleanups, cleanup)
}

// Success marks the construction as complete so OnFail does nothing.
func (g *Guard) Success() {
	g.success = true
}

// OnFail runs the cleanups if Success was not called. Their combined error is kept for Err.
func (g *Guard) OnFail() {
	if g.success {
		return
	}
	for i := len(g.cleanups) - 1; i >= 0; i-- {
		g.err = multierr.Append(g.err, g.cleanups[i]())
	}
	g.cleanups = nil
}

// Err returns what the cleanups failed with.
func (g *Guard) Err() error {
	return g.err
}
