package machine

import (
	"sync/atomic"

	"tinyg-go/pkg/reactor"
	"tinyg-go/pkg/status"
)

// Switches are the per-axis limit/homing switch inputs. Trip may be
// called from any goroutine; the switch task consumes trips in the loop.
type Switches struct {
	tripped [NumAxes]atomic.Bool
	notify  func()
}

// Trip records a switch closure on an axis.
func (s *Switches) Trip(a Axis) {
	if a < 0 || int(a) >= NumAxes {
		return
	}
	s.tripped[a].Store(true)
	if s.notify != nil {
		s.notify()
	}
}

func (s *Switches) take(a Axis) bool { return s.tripped[a].CompareAndSwap(true, false) }

func (s *Switches) clear() {
	for i := range s.tripped {
		s.tripped[i].Store(false)
	}
}

// SwitchTask scans the switches. During homing a trip belongs to the
// homing cycle; otherwise it is a limit hit, which stops the planner and
// calls the limit handler, then keeps priority for one pass so the abort
// it raised is handled next.
func (m *Machine) SwitchTask() reactor.Task {
	return reactor.NewTask("switch", func() status.Code {
		m.planner.retire()
		hit, limit := false, false
		for i := 0; i < NumAxes; i++ {
			a := Axis(i)
			if !m.switches.take(a) {
				continue
			}
			hit = true
			if m.homing.active {
				m.homingSwitchHit(a)
				continue
			}
			limit = true
			m.log.Warn("limit switch hit on %s axis", a)
			m.planner.Flush()
			m.position = m.planner.Position()
		}
		switch {
		case limit:
			if m.onLimit != nil {
				m.onLimit()
			}
			return status.Eagain
		case hit:
			return status.OK
		}
		return status.Noop
	})
}
