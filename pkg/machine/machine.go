// Package machine is a simulated canonical machine: the modal G-code state,
// a timed planner queue standing in for the motion planner and steppers,
// and the resumable continuations the dispatch loop polls (feedhold, arcs,
// homing, return to home, limit switches, status reports).
//
// Everything here runs on the dispatch goroutine. The only entry points
// safe from other goroutines are Switches.Trip and the reactor wake hook.
package machine

import (
	"math"
	"time"

	"tinyg-go/pkg/config"
	"tinyg-go/pkg/log"
	"tinyg-go/pkg/status"
)

const (
	mmPerInch = 25.4

	// DefaultSpindleMax is the S word ceiling in RPM.
	DefaultSpindleMax = 24000
)

// State is the machine state shown in status reports.
type State int

const (
	StateReset State = iota
	StateRun
	StateStop
	StateHold
	StateEndHold
	StateHoming
	StateEnd
)

var stateNames = [...]string{"reset", "run", "stop", "hold", "end_hold", "homing", "end"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Plane is the arc plane selected by G17, G18 or G19.
type Plane int

const (
	PlaneXY Plane = iota
	PlaneXZ
	PlaneYZ
)

// axes returns the two in-plane axes and the linear axis.
func (p Plane) axes() (Axis, Axis, Axis) {
	switch p {
	case PlaneXZ:
		return AxisZ, AxisX, AxisY
	case PlaneYZ:
		return AxisY, AxisZ, AxisX
	default:
		return AxisX, AxisY, AxisZ
	}
}

// MotionMode is the sticky motion command axis words fall back to.
type MotionMode int

const (
	MotionTraverse MotionMode = iota // G0
	MotionFeed                       // G1
	MotionArcCW                      // G2
	MotionArcCCW                     // G3
	MotionCancel                     // G80
)

// Spindle direction set by M3, M4 and M5.
type Spindle int

const (
	SpindleOff Spindle = iota
	SpindleCW
	SpindleCCW
)

// AxisLimits are the per-axis rates and travel.
type AxisLimits struct {
	VelocityMax float64 // mm/min for traverses
	FeedrateMax float64 // mm/min ceiling for feeds
	TravelMax   float64 // soft limit, 0 disables
}

// Config holds the machine settings.
type Config struct {
	Axes        [NumAxes]AxisLimits
	Inches      bool // units after power-up and reset
	ArcSegment  float64
	SegmentTime time.Duration
	PlannerSize int
	SpindleMax  float64
}

// ConfigFrom extracts the machine settings from a controller config.
func ConfigFrom(cc *config.ControllerConfig) Config {
	c := Config{
		Inches:      cc.Machine.Units == "inch",
		ArcSegment:  cc.Machine.ArcSegment,
		SegmentTime: cc.Machine.SegmentTime,
		PlannerSize: cc.Machine.PlannerBuffer,
		SpindleMax:  DefaultSpindleMax,
	}
	for _, ax := range cc.Axes {
		if a, ok := AxisByName(ax.Name); ok {
			c.Axes[a] = AxisLimits{VelocityMax: ax.VelocityMax, FeedrateMax: ax.FeedrateMax, TravelMax: ax.TravelMax}
		}
	}
	return c
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLimitHandler sets what happens when a limit switch trips outside a
// homing cycle. The host raises abort.
func WithLimitHandler(fn func()) Option {
	return func(m *Machine) { m.onLimit = fn }
}

// WithSwitchNotify is called after a switch trips so the loop wakes.
func WithSwitchNotify(fn func()) Option {
	return func(m *Machine) { m.switches.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// Machine is the canonical machine model.
type Machine struct {
	cfg      Config
	log      *log.Logger
	now      func() time.Time
	planner  *Planner
	switches Switches
	onLimit  func()

	// modal state
	motion   MotionMode
	inches   bool
	absolute bool
	plane    Plane
	feed     float64 // mm/min
	position Vector  // end of the last queued move, machine coordinates
	offset   Vector  // G92 origin offsets
	line     int
	tool     int
	spindle  Spindle
	speed    float64
	mist     bool
	flood    bool
	homed    [NumAxes]bool
	idle     State // state shown when nothing is running

	hold   holdState
	arc    arcGen
	homing homingCycle
	rth    returnHome
}

// New creates a machine in the reset state.
func New(cfg Config, opts ...Option) *Machine {
	m := &Machine{cfg: cfg, now: time.Now}
	if m.cfg.SpindleMax <= 0 {
		m.cfg.SpindleMax = DefaultSpindleMax
	}
	if m.cfg.ArcSegment <= 0 {
		m.cfg.ArcSegment = 0.1
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = log.GetLogger("machine")
	}
	m.planner = NewPlanner(cfg.PlannerSize, m.now)
	m.planner.onTrip = m.switches.Trip
	m.resetModal()
	m.idle = StateReset
	return m
}

func (m *Machine) resetModal() {
	m.motion = MotionTraverse
	m.inches = m.cfg.Inches
	m.absolute = true
	m.plane = PlaneXY
	m.feed = 0
	m.offset = Vector{}
	m.spindle, m.speed = SpindleOff, 0
	m.mist, m.flood = false, false
}

// Reset stops all motion and reinitialises the modal state. The tool
// stays wherever the running move had got to.
func (m *Machine) Reset() {
	m.planner.Flush()
	m.position = m.planner.Position()
	m.hold = holdOff
	m.arc = arcGen{}
	m.homing = homingCycle{}
	m.rth = returnHome{}
	m.switches.clear()
	m.resetModal()
	m.line, m.tool = 0, 0
	m.idle = StateReset
	m.log.Info("machine reset")
}

// Planner returns the planner queue.
func (m *Machine) Planner() *Planner { return m.planner }

// Switches returns the limit switch inputs.
func (m *Machine) Switches() *Switches { return &m.switches }

// HasFreeSlot reports planner capacity for the planner gate.
func (m *Machine) HasFreeSlot() bool { return m.planner.HasFreeSlot() }

// InchesMode reports whether G20 is in effect.
func (m *Machine) InchesMode() bool { return m.inches }

// Limits returns the mutable limits of an axis.
func (m *Machine) Limits(a Axis) *AxisLimits { return &m.cfg.Axes[a] }

// Homed reports whether an axis has been homed since power-up.
func (m *Machine) Homed(a Axis) bool { return m.homed[a] }

// State derives the machine state from the continuations and the queue.
func (m *Machine) State() State {
	switch {
	case m.hold == holdPlan || m.hold == holdHold:
		return StateHold
	case m.hold == holdEnd:
		return StateEndHold
	case m.homing.active:
		return StateHoming
	case m.moving() || m.rth.stage != 0:
		return StateRun
	}
	return m.idle
}

func (m *Machine) moving() bool { return !m.planner.Empty() || m.arc.active }

// Position returns the work position of the tool in current units.
func (m *Machine) Position() Vector {
	p := m.planner.Position()
	for i := range p {
		p[i] = m.fromMM(Axis(i), p[i]-m.offset[i])
	}
	return p
}

// Velocity returns the current feed in current units per minute.
func (m *Machine) Velocity() float64 { return m.fromMM(AxisX, m.planner.Velocity()) }

// Line returns the line number of the running move.
func (m *Machine) Line() int { return m.planner.Line() }

func (m *Machine) toMM(a Axis, v float64) float64 {
	if m.inches && a.Linear() {
		return v * mmPerInch
	}
	return v
}

func (m *Machine) fromMM(a Axis, v float64) float64 {
	if m.inches && a.Linear() {
		return v / mmPerInch
	}
	return v
}

// resolve turns axis words into a machine-coordinate target.
func (m *Machine) resolve(t Target) Vector {
	end := m.position
	for i := 0; i < NumAxes; i++ {
		if !t.Set[i] {
			continue
		}
		v := m.toMM(Axis(i), t.Values[i])
		if m.absolute {
			end[i] = v + m.offset[i]
		} else {
			end[i] += v
		}
	}
	return end
}

func (m *Machine) checkTravel(v Vector) status.Code {
	for i, lim := range m.cfg.Axes {
		if lim.TravelMax > 0 && math.Abs(v[i]) > lim.TravelMax+1e-9 {
			return status.MaxTravelExceeded
		}
	}
	return status.OK
}

// rate is the slowest limit among the axes that move.
func (m *Machine) rate(from, to Vector, traverse bool) float64 {
	r := math.Inf(1)
	for i, lim := range m.cfg.Axes {
		if from[i] == to[i] {
			continue
		}
		max := lim.FeedrateMax
		if traverse {
			max = lim.VelocityMax
		}
		if max > 0 && max < r {
			r = max
		}
	}
	if !traverse && m.feed < r {
		r = m.feed
	}
	if math.IsInf(r, 1) {
		return 0
	}
	return r
}

// queueMove appends a block from the model position to end.
func (m *Machine) queueMove(end Vector, rate float64, trips Axis) status.Code {
	dur := m.cfg.SegmentTime
	if rate > 0 {
		if t := time.Duration(distance(m.position, end) / rate * float64(time.Minute)); t > dur {
			dur = t
		}
	}
	b := block{start: m.position, end: end, duration: dur, velocity: rate, line: m.line, trips: trips}
	if !m.planner.queue(b) {
		return status.BufferFullNonFatal
	}
	m.position = end
	m.idle = StateStop
	return status.OK
}

// StraightTraverse is G0.
func (m *Machine) StraightTraverse(t Target) status.Code {
	end := m.resolve(t)
	if sc := m.checkTravel(end); sc != status.OK {
		return sc
	}
	if end == m.position {
		return status.OK
	}
	return m.queueMove(end, m.rate(m.position, end, true), -1)
}

// StraightFeed is G1.
func (m *Machine) StraightFeed(t Target) status.Code {
	if m.feed <= 0 {
		return status.GcodeFeedrateError
	}
	end := m.resolve(t)
	if sc := m.checkTravel(end); sc != status.OK {
		return sc
	}
	if end == m.position {
		return status.OK
	}
	return m.queueMove(end, m.rate(m.position, end, false), -1)
}

// Dwell is G4 P<seconds>.
func (m *Machine) Dwell(seconds float64) status.Code {
	if seconds < 0 {
		return status.NumberRangeError
	}
	b := block{start: m.position, end: m.position, duration: time.Duration(seconds * float64(time.Second)), line: m.line, trips: -1}
	if !m.planner.queue(b) {
		return status.BufferFullNonFatal
	}
	m.idle = StateStop
	return status.OK
}

// MotionMode returns the current motion mode.
func (m *Machine) MotionMode() MotionMode { return m.motion }

// SetMotionMode records the motion mode of a block.
func (m *Machine) SetMotionMode(mm MotionMode) { m.motion = mm }

// SetUnits is G20 (inches) or G21.
func (m *Machine) SetUnits(inches bool) { m.inches = inches }

// SetAbsolute is G90 (absolute) or G91.
func (m *Machine) SetAbsolute(abs bool) { m.absolute = abs }

// SelectPlane is G17, G18 or G19.
func (m *Machine) SelectPlane(p Plane) { m.plane = p }

// SetFeedRate is F, in current units per minute.
func (m *Machine) SetFeedRate(f float64) status.Code {
	if f < 0 {
		return status.GcodeFeedrateError
	}
	m.feed = m.toMM(AxisX, f)
	return status.OK
}

// FeedRate returns F in current units per minute.
func (m *Machine) FeedRate() float64 { return m.fromMM(AxisX, m.feed) }

// SetOriginOffsets is G92: the given axes take the given work values at
// the current position.
func (m *Machine) SetOriginOffsets(t Target) status.Code {
	if !t.Has() {
		return status.GcodeAxisWordMissing
	}
	for i := 0; i < NumAxes; i++ {
		if t.Set[i] {
			m.offset[i] = m.position[i] - m.toMM(Axis(i), t.Values[i])
		}
	}
	return status.OK
}

// CancelOriginOffsets is G92.1.
func (m *Machine) CancelOriginOffsets() { m.offset = Vector{} }

// SetSpindle is M3, M4 or M5.
func (m *Machine) SetSpindle(s Spindle) { m.spindle = s }

// SetSpindleSpeed is S.
func (m *Machine) SetSpindleSpeed(rpm float64) status.Code {
	if rpm < 0 {
		return status.NumberRangeError
	}
	if rpm > m.cfg.SpindleMax {
		return status.MaxSpindleSpeedExceeded
	}
	m.speed = rpm
	return status.OK
}

// SetCoolant is M7 (mist), M8 (flood) and M9 (both off).
func (m *Machine) SetCoolant(mist, flood bool) { m.mist, m.flood = mist, flood }

// SetTool is T.
func (m *Machine) SetTool(t int) { m.tool = t }

// SetLine is N; subsequent moves carry it.
func (m *Machine) SetLine(n int) { m.line = n }

// ProgramStop is M0 and M1.
func (m *Machine) ProgramStop() {
	m.idle = StateStop
	m.spindle = SpindleOff
}

// ProgramEnd is M2 and M30: modal state returns to its defaults once
// the queue has run out.
func (m *Machine) ProgramEnd() {
	m.resetModal()
	m.idle = StateEnd
}
