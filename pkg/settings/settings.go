// Package settings holds the controller's named settings and the two
// command languages that read and write them: the '$' text grammar and
// JSON objects.
//
// A setting is a short token such as "xvm" (x axis velocity maximum).
// Tokens belong to a group, "sys" for controller-wide settings or the
// axis letter for per-axis ones, and a group can be listed as a whole.
package settings

import (
	"io"
	"math"
	"strings"
	"time"

	"tinyg-go/pkg/config"
	"tinyg-go/pkg/log"
	"tinyg-go/pkg/machine"
	"tinyg-go/pkg/status"
)

// Machine is the part of the canonical machine the settings read and
// write.
type Machine interface {
	Limits(a machine.Axis) *machine.AxisLimits
	InchesMode() bool
	SetUnits(inches bool)
	StatusJSON() string
	WriteStatusReport(w io.Writer, f machine.ReportFormat) error
}

// GCodeRunner executes a G-code block carried inside a JSON command.
type GCodeRunner interface {
	ParseGCode(line string) status.Code
}

// Interval is the periodic status report rate.
type Interval interface {
	Interval() time.Duration
	SetInterval(d time.Duration)
}

// Options wires the settings to the rest of the controller.
type Options struct {
	Version float64
	Build   float64

	// Mode returns the communications mode name (config.ModeText, ...).
	Mode func() string
	// SetMode switches communications mode; it is how GRBL mode is
	// entered.
	SetMode func(mode string) status.Code

	Report Interval

	// Output receives '$' listings and '?' reports.
	Output func() io.Writer
}

const groupSys = "sys"

var modeNames = []string{config.ModeText, config.ModeJSON, config.ModeGrbl}

type token struct {
	name   string
	group  string
	label  string
	unit   string
	digits int // 0 for integer settings
	get    func() float64
	set    func(v float64) status.Code // nil when read-only
}

func (t *token) value() float64 {
	p := math.Pow(10, float64(t.digits))
	return math.Round(t.get()*p) / p
}

// Settings is the token table plus its parsers. It runs on the dispatch
// goroutine.
type Settings struct {
	m      Machine
	gc     GCodeRunner
	opts   Options
	tokens []*token
	byName map[string]*token
	groups []string
	log    *log.Logger
}

// New builds the token table over m. gc may be nil, in which case JSON
// G-code commands are rejected.
func New(m Machine, gc GCodeRunner, opts Options) *Settings {
	s := &Settings{
		m:      m,
		gc:     gc,
		opts:   opts,
		byName: make(map[string]*token),
		log:    log.GetLogger("settings"),
	}
	s.addSys()
	for a := machine.AxisX; a < machine.NumAxes; a++ {
		s.addAxis(a)
	}
	return s
}

func (s *Settings) add(t *token) {
	if _, ok := s.byName[t.name]; ok {
		panic("settings: duplicate token " + t.name)
	}
	if len(s.groups) == 0 || s.groups[len(s.groups)-1] != t.group {
		s.groups = append(s.groups, t.group)
	}
	s.tokens = append(s.tokens, t)
	s.byName[t.name] = t
}

func (s *Settings) addSys() {
	s.add(&token{name: "fv", group: groupSys, label: "firmware_version", digits: 2,
		get: func() float64 { return s.opts.Version }})
	s.add(&token{name: "fb", group: groupSys, label: "firmware_build", digits: 2,
		get: func() float64 { return s.opts.Build }})
	s.add(&token{name: "si", group: groupSys, label: "status_interval", unit: "ms",
		get: func() float64 {
			if s.opts.Report == nil {
				return 0
			}
			return float64(s.opts.Report.Interval() / time.Millisecond)
		},
		set: func(v float64) status.Code {
			if s.opts.Report == nil {
				return status.UnrecognizedCommand
			}
			if v < 0 {
				return status.NumberRangeError
			}
			s.opts.Report.SetInterval(time.Duration(v) * time.Millisecond)
			return status.OK
		}})
	s.add(&token{name: "gun", group: groupSys, label: "gcode_units", unit: "0=in,1=mm",
		get: func() float64 {
			if s.m.InchesMode() {
				return 0
			}
			return 1
		},
		set: func(v float64) status.Code {
			if v != 0 && v != 1 {
				return status.NumberRangeError
			}
			s.m.SetUnits(v == 0)
			return status.OK
		}})
	s.add(&token{name: "cm", group: groupSys, label: "communications_mode", unit: "0=text,1=json,2=grbl",
		get: func() float64 {
			if s.opts.Mode == nil {
				return 0
			}
			for i, n := range modeNames {
				if n == s.opts.Mode() {
					return float64(i)
				}
			}
			return 0
		},
		set: func(v float64) status.Code {
			i := int(v)
			if float64(i) != v || i < 0 || i >= len(modeNames) {
				return status.NumberRangeError
			}
			if s.opts.SetMode == nil {
				return status.UnrecognizedCommand
			}
			return s.opts.SetMode(modeNames[i])
		}})
}

func (s *Settings) addAxis(a machine.Axis) {
	g := a.String()
	unit := "mm"
	if !a.Linear() {
		unit = "deg"
	}
	lim := func() *machine.AxisLimits { return s.m.Limits(a) }
	positive := func(dst func(*machine.AxisLimits) *float64) func(float64) status.Code {
		return func(v float64) status.Code {
			if v <= 0 {
				return status.NumberRangeError
			}
			*dst(lim()) = v
			return status.OK
		}
	}
	s.add(&token{name: g + "vm", group: g, label: g + "_velocity_maximum", unit: unit + "/min", digits: 3,
		get: func() float64 { return lim().VelocityMax },
		set: positive(func(l *machine.AxisLimits) *float64 { return &l.VelocityMax })})
	s.add(&token{name: g + "fr", group: g, label: g + "_feedrate_maximum", unit: unit + "/min", digits: 3,
		get: func() float64 { return lim().FeedrateMax },
		set: positive(func(l *machine.AxisLimits) *float64 { return &l.FeedrateMax })})
	s.add(&token{name: g + "tm", group: g, label: g + "_travel_maximum", unit: unit, digits: 3,
		get: func() float64 { return lim().TravelMax },
		set: func(v float64) status.Code {
			if v < 0 {
				return status.NumberRangeError
			}
			lim().TravelMax = v
			return status.OK
		}})
}

// Tokens returns every token name in table order.
func (s *Settings) Tokens() []string {
	names := make([]string, len(s.tokens))
	for i, t := range s.tokens {
		names[i] = t.name
	}
	return names
}

// Get returns a setting's current value.
func (s *Settings) Get(name string) (float64, bool) {
	t, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return 0, false
	}
	return t.value(), true
}

// Set changes a setting.
func (s *Settings) Set(name string, v float64) status.Code {
	t, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return status.UnrecognizedCommand
	}
	return s.set(t, v)
}

func (s *Settings) set(t *token, v float64) status.Code {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return status.FloatingPointError
	}
	if t.set == nil {
		// read-only tokens ignore writes and report their value
		return status.OK
	}
	sc := t.set(v)
	if sc == status.OK {
		s.log.Debug("%s = %g", t.name, v)
	}
	return sc
}

func (s *Settings) group(name string) []*token {
	var ts []*token
	for _, t := range s.tokens {
		if t.group == name {
			ts = append(ts, t)
		}
	}
	return ts
}

func (s *Settings) isGroup(name string) bool {
	for _, g := range s.groups {
		if g == name {
			return true
		}
	}
	return false
}

func (s *Settings) reportFormat() machine.ReportFormat {
	if s.opts.Mode != nil && s.opts.Mode() == config.ModeGrbl {
		return machine.ReportGrbl
	}
	return machine.ReportText
}

func (s *Settings) output() io.Writer {
	if s.opts.Output == nil {
		return io.Discard
	}
	if w := s.opts.Output(); w != nil {
		return w
	}
	return io.Discard
}
