// Package sig holds the edge-triggered abort, feedhold and cycle-start
// flags. Producers (device readers, limit switches, the websocket console)
// raise them from any goroutine; the dispatch loop is the only consumer.
package sig

import "sync/atomic"

// Event is a one-shot flag. Take clears it atomically, so one Raise is
// observed by at most one Take; a Raise that lands after the Take is a new
// event and will be seen on a later pass.
type Event struct {
	name string
	set  atomic.Bool
	wake func()
}

// Name is the event's label in logs and metrics.
func (e *Event) Name() string { return e.name }

// Raise sets the flag and nudges the loop if it is parked.
func (e *Event) Raise() {
	e.set.Store(true)
	if e.wake != nil {
		e.wake()
	}
}

// Take reports whether the flag was set and clears it.
func (e *Event) Take() bool {
	return e.set.CompareAndSwap(true, false)
}

// Pending reports the flag without clearing it.
func (e *Event) Pending() bool { return e.set.Load() }

// Clear drops a pending event.
func (e *Event) Clear() { e.set.Store(false) }

// Flags is the controller's set of signal events.
type Flags struct {
	Abort      Event
	Feedhold   Event
	CycleStart Event

	wake chan struct{}
}

// NewFlags returns cleared flags sharing one wake channel.
func NewFlags() *Flags {
	f := &Flags{wake: make(chan struct{}, 1)}
	f.Abort.name, f.Abort.wake = "abort", f.Notify
	f.Feedhold.name, f.Feedhold.wake = "feedhold", f.Notify
	f.CycleStart.name, f.CycleStart.wake = "cycle_start", f.Notify
	return f
}

// Notify posts a wake-up without blocking. Repeated notifications before
// the loop drains the channel collapse into one.
func (f *Flags) Notify() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Wake is the channel the loop parks on between idle passes.
func (f *Flags) Wake() <-chan struct{} { return f.wake }

// Realtime characters recognised on live input, ahead of line assembly.
const (
	CharFeedhold   = '!'
	CharCycleStart = '~'
	CharAbort      = 0x18 // ^X
)

// Intercept raises the event bound to c and reports whether c was a
// realtime character that must not reach the line buffer.
func (f *Flags) Intercept(c byte) bool {
	switch c {
	case CharFeedhold:
		f.Feedhold.Raise()
	case CharCycleStart:
		f.CycleStart.Raise()
	case CharAbort:
		f.Abort.Raise()
	default:
		return false
	}
	return true
}
