package machine

import (
	"tinyg-go/pkg/reactor"
	"tinyg-go/pkg/status"
)

// holdState walks off -> plan -> hold -> end -> off.
type holdState int

const (
	holdOff  holdState = iota
	holdPlan           // requested, not yet applied to the planner
	holdHold           // planner frozen
	holdEnd            // resume requested
)

// Feedhold requests a controlled stop. It is ignored when nothing is
// moving or a hold is already under way.
func (m *Machine) Feedhold() {
	if m.hold == holdOff && m.moving() {
		m.hold = holdPlan
	}
}

// CycleStart resumes from a feedhold. A hold that was requested but not
// yet planned is simply withdrawn.
func (m *Machine) CycleStart() {
	switch m.hold {
	case holdHold:
		m.hold = holdEnd
	case holdPlan:
		m.hold = holdOff
	}
}

// PlanHoldTask applies a requested hold to the planner.
func (m *Machine) PlanHoldTask() reactor.Task {
	return reactor.NewTask("plan_hold", func() status.Code {
		if m.hold != holdPlan {
			return status.Noop
		}
		m.planner.Hold()
		m.hold = holdHold
		m.log.Debug("feedhold at %v", m.planner.Position())
		return status.OK
	})
}

// EndHoldTask releases the planner after a cycle start.
func (m *Machine) EndHoldTask() reactor.Task {
	return reactor.NewTask("end_hold", func() status.Code {
		if m.hold != holdEnd {
			return status.Noop
		}
		m.planner.Resume()
		m.hold = holdOff
		m.log.Debug("feedhold released")
		return status.OK
	})
}
