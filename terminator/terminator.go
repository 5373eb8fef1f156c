// Package terminator coordinates cooperative process exit. The update
// performer blocks exit around non-idempotent work (partition writes
// plus the checkpoint that follows); a signal handler consults the
// flag before honoring a termination request.
package terminator

import "sync/atomic"

type Terminator struct {
	exitBlocked int32
}

func New() *Terminator {
	return &Terminator{}
}

// SetExitBlocked marks the start (true) or end (false) of a critical
// section that must not be interrupted by process exit.
func (t *Terminator) SetExitBlocked(blocked bool) {
	var value int32
	if blocked {
		value = 1
	}
	atomic.StoreInt32(&t.exitBlocked, value)
}

// ExitBlocked reports whether exit is currently blocked. Safe to call
// from a signal handler goroutine.
func (t *Terminator) ExitBlocked() bool {
	return atomic.LoadInt32(&t.exitBlocked) != 0
}
