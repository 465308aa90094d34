package machine

import (
	"tinyg-go/pkg/reactor"
	"tinyg-go/pkg/status"
)

// homingOrder is the order axes home in when no axis words are given.
var homingOrder = []Axis{AxisZ, AxisX, AxisY, AxisA}

// homingCycle homes one axis at a time: queue a search move, wait for the
// axis switch, zero the axis, move on.
type homingCycle struct {
	active   bool
	axes     []Axis
	idx      int
	searched bool // search move queued for axes[idx]
	failed   bool
}

// HomingCycle is G28.1. Only the given axes home; none given homes all.
func (m *Machine) HomingCycle(t Target) status.Code {
	var axes []Axis
	for _, a := range homingOrder {
		if t.Set[a] {
			axes = append(axes, a)
		}
	}
	if len(axes) == 0 {
		axes = append(axes, homingOrder...)
	}
	m.homing = homingCycle{active: true, axes: axes}
	m.log.Info("homing %v", axes)
	return status.OK
}

// switchHit is called by the switch scan for every trip during homing.
func (m *Machine) homingSwitchHit(a Axis) {
	h := &m.homing
	if h.idx >= len(h.axes) || !h.searched || h.axes[h.idx] != a {
		m.log.Warn("homing: unexpected %s switch", a)
		m.planner.Flush()
		m.position = m.planner.Position()
		h.failed = true
		return
	}
	m.planner.Flush()
	m.planner.SetPosition(a, 0)
	m.position = m.planner.Position()
	m.offset[a] = 0
	m.homed[a] = true
	h.idx++
	h.searched = false
}

// HomingTask drives the homing cycle. It keeps priority while a cycle
// runs and returns HomingCycleFailed once if the cycle went wrong.
func (m *Machine) HomingTask() reactor.Task {
	return reactor.NewTask("homing", func() status.Code {
		h := &m.homing
		if h.failed {
			m.homing = homingCycle{}
			return status.HomingCycleFailed
		}
		if !h.active {
			return status.Noop
		}
		if h.idx == len(h.axes) {
			m.homing = homingCycle{}
			m.idle = StateStop
			m.log.Info("homing complete")
			return status.OK
		}
		if h.searched {
			return status.Eagain
		}
		if !m.planner.HasFreeSlot() {
			return status.Eagain
		}
		a := h.axes[h.idx]
		end := m.position
		end[a] = 0
		if sc := m.queueMove(end, m.cfg.Axes[a].FeedrateMax, a); sc != status.OK {
			return status.Eagain
		}
		h.searched = true
		return status.Eagain
	})
}

// returnHome runs G28: an optional intermediate move, then machine zero.
type returnHome struct {
	stage int // 0 idle, 1 intermediate queued, 2 zero queued
}

// ReturnToHome is G28.
func (m *Machine) ReturnToHome(t Target) status.Code {
	if t.Has() {
		end := m.resolve(t)
		if sc := m.checkTravel(end); sc != status.OK {
			return sc
		}
		if end != m.position {
			if sc := m.queueMove(end, m.rate(m.position, end, true), -1); sc != status.OK {
				return sc
			}
		}
	}
	m.rth.stage = 1
	return status.OK
}

// ReturnToHomeTask queues the move to zero and keeps priority until the
// machine gets there.
func (m *Machine) ReturnToHomeTask() reactor.Task {
	return reactor.NewTask("return_to_home", func() status.Code {
		switch m.rth.stage {
		case 1:
			if !m.planner.HasFreeSlot() {
				return status.Eagain
			}
			var zero Vector
			if zero != m.position {
				if sc := m.queueMove(zero, m.rate(m.position, zero, true), -1); sc != status.OK {
					return status.Eagain
				}
			}
			m.rth.stage = 2
			return status.Eagain
		case 2:
			if !m.planner.Empty() {
				return status.Eagain
			}
			m.rth.stage = 0
			return status.OK
		}
		return status.Noop
	})
}
