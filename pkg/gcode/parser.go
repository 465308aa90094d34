// Package gcode turns RS274 blocks into canonical machine calls.
//
// A block is tokenised by github.com/256dpi/gcode, checked for modal
// group conflicts and then executed in a fixed order: line number, feed,
// spindle speed, tool, spindle, coolant, dwell, plane, units, distance
// mode, non-modal commands, motion and finally program flow.
package gcode

import (
	"math"
	"strings"

	gcodelib "github.com/256dpi/gcode"

	"tinyg-go/pkg/log"
	"tinyg-go/pkg/machine"
	"tinyg-go/pkg/status"
)

// Machine is the canonical machine the parser drives.
type Machine interface {
	SetLine(n int)
	SetFeedRate(f float64) status.Code
	SetSpindleSpeed(rpm float64) status.Code
	SetTool(t int)
	SetSpindle(s machine.Spindle)
	SetCoolant(mist, flood bool)
	Dwell(seconds float64) status.Code
	SelectPlane(p machine.Plane)
	SetUnits(inches bool)
	SetAbsolute(abs bool)
	SetOriginOffsets(t machine.Target) status.Code
	CancelOriginOffsets()
	HomingCycle(t machine.Target) status.Code
	ReturnToHome(t machine.Target) status.Code
	MotionMode() machine.MotionMode
	SetMotionMode(mm machine.MotionMode)
	StraightTraverse(t machine.Target) status.Code
	StraightFeed(t machine.Target) status.Code
	ArcFeed(t machine.Target, offsets [3]float64, set [3]bool, clockwise bool) status.Code
	ProgramStop()
	ProgramEnd()
}

// modal groups; a block may hold one word of each
type group int

const (
	groupNone group = iota
	groupMotion
	groupPlane
	groupUnits
	groupDistance
	groupNonModal
	groupProgram
	groupSpindle
	groupCoolant
)

// G and M numbers are kept in tenths so that G28.1 and G28 differ.
var gGroups = map[int]group{
	0: groupMotion, 10: groupMotion, 20: groupMotion, 30: groupMotion, 800: groupMotion,
	170: groupPlane, 180: groupPlane, 190: groupPlane,
	200: groupUnits, 210: groupUnits,
	900: groupDistance, 910: groupDistance,
	40: groupNonModal, 280: groupNonModal, 281: groupNonModal, 920: groupNonModal, 921: groupNonModal,
}

var mGroups = map[int]group{
	0: groupProgram, 10: groupProgram, 20: groupProgram, 300: groupProgram,
	30: groupSpindle, 40: groupSpindle, 50: groupSpindle,
	70: groupCoolant, 80: groupCoolant, 90: groupCoolant,
}

var motionModes = map[int]machine.MotionMode{
	0:   machine.MotionTraverse,
	10:  machine.MotionFeed,
	20:  machine.MotionArcCW,
	30:  machine.MotionArcCCW,
	800: machine.MotionCancel,
}

// block is one parsed line.
type block struct {
	words map[group]int

	line    int
	hasLine bool
	feed    float64
	hasFeed bool
	speed   float64
	hasS    bool
	tool    int
	hasTool bool
	dwell   float64

	mist, flood, coolOff bool

	target  machine.Target
	offsets [3]float64
	offSet  [3]bool
}

func (b *block) has(g group) bool {
	_, ok := b.words[g]
	return ok
}

// Parser executes G-code blocks against a machine.
type Parser struct {
	m   Machine
	log *log.Logger
}

// New creates a parser driving m.
func New(m Machine) *Parser {
	return &Parser{m: m, log: log.GetLogger("gcode")}
}

// ParseGCode executes one block. Comment-only and blank blocks return
// Noop; every other outcome is the first failing status, or OK.
func (p *Parser) ParseGCode(line string) status.Code {
	text := stripComments(line)
	if text == "" || text[0] == '%' || text[0] == '/' {
		return status.Noop
	}
	c := text[0]
	if c < 'A' || c > 'Z' {
		return status.ExpectedCommandLetter
	}
	parsed, err := gcodelib.ParseLine(text)
	if err != nil {
		p.log.Debug("parse %q: %v", text, err)
		return status.BadNumberFormat
	}
	b, sc := collect(parsed.Codes)
	if sc != status.OK {
		return sc
	}
	return p.execute(b)
}

// stripComments drops parenthesised and semicolon comments and upper
// cases what remains.
func stripComments(line string) string {
	var sb strings.Builder
	depth := 0
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ';' && depth == 0:
			i = len(line)
		case c == '(':
			depth++
		case c == ')' && depth > 0:
			depth--
		case depth == 0:
			sb.WriteByte(c)
		}
	}
	return strings.ToUpper(strings.TrimSpace(sb.String()))
}

func tenths(v float64) int { return int(math.Round(v * 10)) }

func collect(codes []gcodelib.GCode) (*block, status.Code) {
	b := &block{words: make(map[group]int)}
	seen := make(map[string]bool)
	for _, code := range codes {
		if code.Letter == "" {
			continue
		}
		v := code.Value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, status.FloatingPointError
		}
		switch code.Letter {
		case "G", "M":
			groups := gGroups
			if code.Letter == "M" {
				groups = mGroups
			}
			n := tenths(v)
			g, ok := groups[n]
			if !ok {
				return nil, status.UnrecognizedCommand
			}
			if g == groupCoolant && n != 90 {
				// M7 and M8 may share a block
				if n == 70 {
					b.mist = true
				} else {
					b.flood = true
				}
				if b.coolOff {
					return nil, status.GcodeModalGroupViolation
				}
				b.words[g] = n
				continue
			}
			if _, dup := b.words[g]; dup {
				return nil, status.GcodeModalGroupViolation
			}
			if g == groupCoolant {
				if b.mist || b.flood {
					return nil, status.GcodeModalGroupViolation
				}
				b.coolOff = true
			}
			b.words[g] = n
			continue
		}

		if seen[code.Letter] {
			return nil, status.GcodeInputError
		}
		seen[code.Letter] = true
		switch code.Letter {
		case "X", "Y", "Z", "A":
			a, _ := machine.AxisByName(code.Letter)
			b.target = b.target.With(a, v)
		case "I", "J", "K":
			i := int(code.Letter[0] - 'I')
			b.offsets[i], b.offSet[i] = v, true
		case "F":
			b.feed, b.hasFeed = v, true
		case "S":
			b.speed, b.hasS = v, true
		case "T":
			if v < 0 || v != math.Trunc(v) {
				return nil, status.NumberRangeError
			}
			b.tool, b.hasTool = int(v), true
		case "N":
			if v < 0 {
				return nil, status.NumberRangeError
			}
			b.line, b.hasLine = int(v), true
		case "P":
			b.dwell = v
		default:
			return nil, status.UnrecognizedCommand
		}
	}
	return b, status.OK
}

func (p *Parser) execute(b *block) status.Code {
	m := p.m
	if n, ok := b.words[groupNonModal]; ok && n != 40 && n != 921 && b.has(groupMotion) {
		return status.GcodeModalGroupViolation
	}
	if b.hasLine {
		m.SetLine(b.line)
	}
	if b.hasFeed {
		if sc := m.SetFeedRate(b.feed); sc != status.OK {
			return sc
		}
	}
	if b.hasS {
		if sc := m.SetSpindleSpeed(b.speed); sc != status.OK {
			return sc
		}
	}
	if b.hasTool {
		m.SetTool(b.tool)
	}
	if n, ok := b.words[groupSpindle]; ok {
		switch n {
		case 30:
			m.SetSpindle(machine.SpindleCW)
		case 40:
			m.SetSpindle(machine.SpindleCCW)
		default:
			m.SetSpindle(machine.SpindleOff)
		}
	}
	if b.has(groupCoolant) {
		m.SetCoolant(b.mist, b.flood)
	}
	if n, ok := b.words[groupNonModal]; ok && n == 40 {
		if sc := m.Dwell(b.dwell); sc != status.OK {
			return sc
		}
	}
	if n, ok := b.words[groupPlane]; ok {
		m.SelectPlane(map[int]machine.Plane{170: machine.PlaneXY, 180: machine.PlaneXZ, 190: machine.PlaneYZ}[n])
	}
	if n, ok := b.words[groupUnits]; ok {
		m.SetUnits(n == 200)
	}
	if n, ok := b.words[groupDistance]; ok {
		m.SetAbsolute(n == 900)
	}

	// Non-modal commands that take axis words consume them.
	axesUsed := false
	if n, ok := b.words[groupNonModal]; ok {
		sc := status.OK
		switch n {
		case 280:
			sc, axesUsed = m.ReturnToHome(b.target), true
		case 281:
			sc, axesUsed = m.HomingCycle(b.target), true
		case 920:
			sc, axesUsed = m.SetOriginOffsets(b.target), true
		case 921:
			m.CancelOriginOffsets()
		}
		if sc != status.OK {
			return sc
		}
	}

	if sc := p.motion(b, axesUsed); sc != status.OK {
		return sc
	}

	if n, ok := b.words[groupProgram]; ok {
		if n == 20 || n == 300 {
			m.ProgramEnd()
		} else {
			m.ProgramStop()
		}
	}
	return status.OK
}

func (p *Parser) motion(b *block, axesUsed bool) status.Code {
	m := p.m
	n, explicit := b.words[groupMotion]
	if explicit {
		m.SetMotionMode(motionModes[n])
	}
	arcWords := b.offSet[0] || b.offSet[1] || b.offSet[2]
	if axesUsed || (!b.target.Has() && !arcWords) {
		return status.OK
	}
	switch m.MotionMode() {
	case machine.MotionTraverse:
		return m.StraightTraverse(b.target)
	case machine.MotionFeed:
		return m.StraightFeed(b.target)
	case machine.MotionArcCW, machine.MotionArcCCW:
		return m.ArcFeed(b.target, b.offsets, b.offSet, m.MotionMode() == machine.MotionArcCW)
	default:
		return status.GcodeInputError
	}
}
