package machine

import "math"

// Axis indexes into a Vector.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisA

	NumAxes = 4
)

var axisNames = [NumAxes]string{"x", "y", "z", "a"}

func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return "?"
	}
	return axisNames[a]
}

// Linear reports whether the axis is in length units. A is rotary and is
// always in degrees.
func (a Axis) Linear() bool { return a != AxisA }

// AxisByName maps "x".."a" (either case) to an Axis.
func AxisByName(name string) (Axis, bool) {
	for i, n := range axisNames {
		if n == name || (len(name) == 1 && name[0]|0x20 == n[0]) {
			return Axis(i), true
		}
	}
	return 0, false
}

// Vector is one value per axis, in millimetres (degrees for A).
type Vector [NumAxes]float64

// Target is a partial Vector: only axes with Set true were given.
type Target struct {
	Values Vector
	Set    [NumAxes]bool
}

// Has reports whether any axis word was given.
func (t Target) Has() bool {
	for _, s := range t.Set {
		if s {
			return true
		}
	}
	return false
}

// With sets one axis word.
func (t Target) With(a Axis, v float64) Target {
	t.Values[a], t.Set[a] = v, true
	return t
}

// distance is the Euclidean length of the linear part of b-a, or the
// rotary travel when only A moves.
func distance(a, b Vector) float64 {
	var sum float64
	for i := 0; i < NumAxes; i++ {
		if Axis(i).Linear() {
			d := b[i] - a[i]
			sum += d * d
		}
	}
	if sum == 0 {
		return math.Abs(b[AxisA] - a[AxisA])
	}
	return math.Sqrt(sum)
}

func lerp(a, b Vector, f float64) Vector {
	var v Vector
	for i := range v {
		v[i] = a[i] + (b[i]-a[i])*f
	}
	return v
}
