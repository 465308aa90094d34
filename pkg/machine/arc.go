package machine

import (
	"math"

	"tinyg-go/pkg/reactor"
	"tinyg-go/pkg/status"
)

// arcGen is an arc being cut into chords, one chord per pass.
type arcGen struct {
	active            bool
	a0, a1, a2        Axis
	c0, c1            float64 // centre
	radius            float64
	theta             float64 // start angle
	angular, linear   float64
	start, end        Vector
	segments, emitted int
	rate              float64
}

// ArcFeed is G2 (clockwise) or G3. Offsets are I, J, K in current units;
// set says which were given. The arc is queued one chord per pass by
// ArcTask.
func (m *Machine) ArcFeed(t Target, offsets [3]float64, set [3]bool, clockwise bool) status.Code {
	if m.feed <= 0 {
		return status.GcodeFeedrateError
	}
	a0, a1, a2 := m.plane.axes()
	// I, J, K belong to X, Y, Z.
	if !set[a0] && !set[a1] {
		return status.ArcSpecificationError
	}
	end := m.resolve(t)
	if sc := m.checkTravel(end); sc != status.OK {
		return sc
	}
	o0, o1 := m.toMM(a0, offsets[a0]), m.toMM(a1, offsets[a1])
	start := m.position
	g := arcGen{
		a0: a0, a1: a1, a2: a2,
		c0: start[a0] + o0, c1: start[a1] + o1,
		radius: math.Hypot(o0, o1),
		theta:  math.Atan2(-o1, -o0),
		start:  start, end: end,
	}
	if g.radius < 1e-6 {
		return status.ArcSpecificationError
	}
	endRadius := math.Hypot(end[a0]-g.c0, end[a1]-g.c1)
	if math.Abs(endRadius-g.radius) > math.Max(0.005, 0.001*g.radius) {
		return status.ArcSpecificationError
	}
	// Start and end on the same point is a full circle.
	g.angular = math.Remainder(math.Atan2(end[a1]-g.c1, end[a0]-g.c0)-g.theta, 2*math.Pi)
	if clockwise {
		if g.angular >= -1e-9 {
			g.angular -= 2 * math.Pi
		}
	} else if g.angular <= 1e-9 {
		g.angular += 2 * math.Pi
	}
	g.linear = end[a2] - start[a2]
	length := math.Hypot(g.angular*g.radius, g.linear)
	g.segments = int(math.Max(1, math.Ceil(length/m.cfg.ArcSegment)))
	g.rate = m.rate(start, end, false)
	if g.rate == 0 {
		g.rate = m.feed
	}
	g.active = true
	m.arc = g
	return status.OK
}

// ArcTask queues the next chord of the active arc. It keeps priority
// until the last chord is queued.
func (m *Machine) ArcTask() reactor.Task {
	return reactor.NewTask("arc", func() status.Code {
		g := &m.arc
		if !g.active {
			return status.Noop
		}
		if !m.planner.HasFreeSlot() {
			return status.Eagain
		}
		g.emitted++
		next := g.end
		if g.emitted < g.segments {
			f := float64(g.emitted) / float64(g.segments)
			next = lerp(g.start, g.end, f)
			angle := g.theta + g.angular*f
			next[g.a0] = g.c0 + g.radius*math.Cos(angle)
			next[g.a1] = g.c1 + g.radius*math.Sin(angle)
		}
		if sc := m.queueMove(next, g.rate, -1); sc != status.OK {
			g.emitted--
			return status.Eagain
		}
		if g.emitted < g.segments {
			return status.Eagain
		}
		g.active = false
		return status.OK
	})
}

// ArcSegments returns the chord count of the active arc, zero if none.
func (m *Machine) ArcSegments() int {
	if !m.arc.active {
		return 0
	}
	return m.arc.segments
}
