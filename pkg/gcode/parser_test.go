package gcode

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyg-go/pkg/config"
	"tinyg-go/pkg/machine"
	"tinyg-go/pkg/status"
)

// recorder logs every machine call in order.
type recorder struct {
	calls  []string
	motion machine.MotionMode
	fail   map[string]status.Code
}

func (r *recorder) add(format string, args ...any) status.Code {
	c := fmt.Sprintf(format, args...)
	r.calls = append(r.calls, c)
	for prefix, sc := range r.fail {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			return sc
		}
	}
	return status.OK
}

func target(t machine.Target) string {
	s := ""
	for i, set := range t.Set {
		if set {
			s += fmt.Sprintf("%s%g", machine.Axis(i), t.Values[i])
		}
	}
	return s
}

func (r *recorder) SetLine(n int)                     { r.add("line %d", n) }
func (r *recorder) SetFeedRate(f float64) status.Code { return r.add("feed %g", f) }
func (r *recorder) SetSpindleSpeed(s float64) status.Code {
	return r.add("speed %g", s)
}
func (r *recorder) SetTool(t int)                  { r.add("tool %d", t) }
func (r *recorder) SetSpindle(s machine.Spindle)   { r.add("spindle %d", s) }
func (r *recorder) SetCoolant(mist, flood bool)    { r.add("coolant %v %v", mist, flood) }
func (r *recorder) Dwell(s float64) status.Code    { return r.add("dwell %g", s) }
func (r *recorder) SelectPlane(p machine.Plane)    { r.add("plane %d", p) }
func (r *recorder) SetUnits(inches bool)           { r.add("inches %v", inches) }
func (r *recorder) SetAbsolute(abs bool)           { r.add("absolute %v", abs) }
func (r *recorder) CancelOriginOffsets()           { r.add("g92.1") }
func (r *recorder) MotionMode() machine.MotionMode { return r.motion }
func (r *recorder) SetMotionMode(mm machine.MotionMode) {
	r.motion = mm
	r.add("mode %d", mm)
}
func (r *recorder) SetOriginOffsets(t machine.Target) status.Code {
	return r.add("g92 %s", target(t))
}
func (r *recorder) HomingCycle(t machine.Target) status.Code {
	return r.add("home %s", target(t))
}
func (r *recorder) ReturnToHome(t machine.Target) status.Code {
	return r.add("g28 %s", target(t))
}
func (r *recorder) StraightTraverse(t machine.Target) status.Code {
	return r.add("g0 %s", target(t))
}
func (r *recorder) StraightFeed(t machine.Target) status.Code {
	return r.add("g1 %s", target(t))
}
func (r *recorder) ArcFeed(t machine.Target, off [3]float64, set [3]bool, cw bool) status.Code {
	return r.add("arc %s %v %v %v", target(t), off, set, cw)
}
func (r *recorder) ProgramStop() { r.add("stop") }
func (r *recorder) ProgramEnd()  { r.add("end") }

func parse(t *testing.T, lines ...string) *recorder {
	t.Helper()
	r := &recorder{}
	p := New(r)
	for _, l := range lines {
		require.Equal(t, status.OK, p.ParseGCode(l), l)
	}
	return r
}

func TestParseMotion(t *testing.T) {
	r := parse(t, "G0 X10 Y-2.5", "g1 f300 z1")
	assert.Equal(t, []string{
		"mode 0", "g0 x10y-2.5",
		"feed 300", "mode 1", "g1 z1",
	}, r.calls)
}

func TestMotionModeIsSticky(t *testing.T) {
	r := parse(t, "G1 F100 X1", "X2", "Y3")
	assert.Equal(t, []string{"feed 100", "mode 1", "g1 x1", "g1 x2", "g1 y3"}, r.calls)
}

func TestMotionWordWithoutAxes(t *testing.T) {
	r := parse(t, "G1")
	assert.Equal(t, []string{"mode 1"}, r.calls)
}

func TestExecutionOrder(t *testing.T) {
	r := parse(t, "N20 M30 G21 G91 G17 X1 F50 S1000 T2 M3 M8 G4 P0.5")
	assert.Equal(t, []string{
		"line 20", "feed 50", "speed 1000", "tool 2", "spindle 1",
		"coolant false true", "dwell 0.5", "plane 0", "inches false",
		"absolute false", "g0 x1", "end",
	}, r.calls)
}

func TestArc(t *testing.T) {
	r := parse(t, "G2 X10 Y0 I5 J0")
	assert.Equal(t, []string{"mode 2", "arc x10y0 [5 0 0] [true true false] true"}, r.calls)

	r = parse(t, "G18", "G3 X1 K2")
	assert.Equal(t, "arc x1 [0 0 2] [false false true] false", r.calls[len(r.calls)-1])
}

func TestNonModalConsumesAxes(t *testing.T) {
	r := parse(t, "G92 X5", "G28.1 Z0", "G28", "G92.1")
	assert.Equal(t, []string{"g92 x5", "home z0", "g28 ", "g92.1"}, r.calls)
}

func TestCoolant(t *testing.T) {
	r := parse(t, "M7 M8", "M9")
	assert.Equal(t, []string{"coolant true true", "coolant false false"}, r.calls)
}

func TestCommentsAndBlankLines(t *testing.T) {
	p := New(&recorder{})
	for _, line := range []string{"", "   ", "(just a comment)", "; semicolon", "%", "/G0 X1"} {
		assert.Equal(t, status.Noop, p.ParseGCode(line), "%q", line)
	}

	r := parse(t, "G0 (rapid) X1 ; trailing")
	assert.Equal(t, []string{"mode 0", "g0 x1"}, r.calls)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		line string
		want status.Code
	}{
		{"5 X1", status.ExpectedCommandLetter},
		{"G0 G1 X1", status.GcodeModalGroupViolation},
		{"G20 G21", status.GcodeModalGroupViolation},
		{"M3 M5", status.GcodeModalGroupViolation},
		{"M7 M9", status.GcodeModalGroupViolation},
		{"G1 G92 X1", status.GcodeModalGroupViolation},
		{"G0 X1 X2", status.GcodeInputError},
		{"G99", status.UnrecognizedCommand},
		{"M150", status.UnrecognizedCommand},
		{"G0 B1", status.UnrecognizedCommand},
		{"T1.5", status.NumberRangeError},
		{"N-1", status.NumberRangeError},
		{"G80 X1", status.GcodeInputError},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p := New(&recorder{})
			assert.Equal(t, tt.want, p.ParseGCode(tt.line))
		})
	}
}

func TestMachineErrorStopsBlock(t *testing.T) {
	r := &recorder{fail: map[string]status.Code{"speed": status.MaxSpindleSpeedExceeded}}
	p := New(r)
	assert.Equal(t, status.MaxSpindleSpeedExceeded, p.ParseGCode("S99999 G0 X1"))
	assert.Equal(t, []string{"speed 99999"}, r.calls)
}

func TestDrivesMachine(t *testing.T) {
	m := machine.New(machine.ConfigFrom(config.Default()))
	p := New(m)

	// F is read before the units change in the same block.
	require.Equal(t, status.OK, p.ParseGCode("G20 F254"))
	assert.True(t, m.InchesMode())
	assert.InDelta(t, 10, m.FeedRate(), 1e-9)
	require.Equal(t, status.OK, p.ParseGCode("F2"))
	assert.InDelta(t, 2, m.FeedRate(), 1e-9)

	assert.Equal(t, status.GcodeFeedrateError, p.ParseGCode("G1 F0 X1"))
	assert.Equal(t, status.MaxTravelExceeded, p.ParseGCode("G0 X1000"))

	require.Equal(t, status.OK, p.ParseGCode("G21 G0 X100"))
	assert.Equal(t, machine.MotionTraverse, m.MotionMode())
	assert.Equal(t, machine.StateRun, m.State())

	require.Equal(t, status.OK, p.ParseGCode("M2"))
	assert.False(t, m.InchesMode())
}
