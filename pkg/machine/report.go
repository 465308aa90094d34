package machine

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"tinyg-go/pkg/status"
)

// ReportFormat selects how a status report is rendered.
type ReportFormat int

const (
	ReportText ReportFormat = iota
	ReportJSON
	ReportGrbl
)

var grblStates = map[State]string{
	StateReset:   "Idle",
	StateRun:     "Run",
	StateStop:    "Idle",
	StateHold:    "Hold",
	StateEndHold: "Run",
	StateHoming:  "Home",
	StateEnd:     "Idle",
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// StatusJSON renders the status report object, without the "sr" wrapper.
// Unit is 0 for inches and 1 for millimetres.
func (m *Machine) StatusJSON() string {
	pos := m.Position()
	unit := 1
	if m.inches {
		unit = 0
	}
	js := "{}"
	js, _ = sjson.Set(js, "line", m.Line())
	for i, v := range pos {
		js, _ = sjson.Set(js, "pos"+Axis(i).String(), round3(v))
	}
	js, _ = sjson.Set(js, "vel", round3(m.Velocity()))
	js, _ = sjson.Set(js, "unit", unit)
	js, _ = sjson.Set(js, "stat", int(m.State()))
	return js
}

// WriteStatusReport writes one status report to w.
func (m *Machine) WriteStatusReport(w io.Writer, f ReportFormat) error {
	var out string
	switch f {
	case ReportJSON:
		out = `{"sr":` + m.StatusJSON() + "}\n"
	case ReportGrbl:
		p := m.Position()
		out = fmt.Sprintf("<%s,MPos:%.3f,%.3f,%.3f>\n", grblStates[m.State()], p[AxisX], p[AxisY], p[AxisZ])
	default:
		out = m.statusText()
	}
	_, err := io.WriteString(w, out)
	return err
}

func (m *Machine) statusText() string {
	unit, units := "mm", "G21 - millimeter mode"
	if m.inches {
		unit, units = "in", "G20 - inches mode"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Line number:      %d\n", m.Line())
	for i, v := range m.Position() {
		u := unit
		if !Axis(i).Linear() {
			u = "deg"
		}
		fmt.Fprintf(&b, "%s position:  %10.3f %s\n", strings.ToUpper(Axis(i).String()), v, u)
	}
	fmt.Fprintf(&b, "Velocity:    %10.3f %s/min\n", m.Velocity(), unit)
	fmt.Fprintf(&b, "Units:            %s\n", units)
	fmt.Fprintf(&b, "Machine state:    %s\n", m.State())
	return b.String()
}

// ReporterConfig says where and how often periodic reports go.
type ReporterConfig struct {
	// Interval between reports while moving; zero disables reports.
	Interval time.Duration
	Format   func() ReportFormat
	Output   func() io.Writer
}

// Reporter emits status reports while the machine runs and once on every
// state change.
type Reporter struct {
	m         *Machine
	cfg       ReporterConfig
	last      time.Time
	lastState State
}

// NewReporter creates the status report task.
func NewReporter(m *Machine, cfg ReporterConfig) *Reporter {
	return &Reporter{m: m, cfg: cfg, lastState: m.State()}
}

func (r *Reporter) Name() string { return "status_report" }

// Run never keeps priority; it returns OK when it wrote a report.
func (r *Reporter) Run() status.Code {
	if r.cfg.Interval <= 0 || r.cfg.Output == nil {
		return status.Noop
	}
	st := r.m.State()
	now := r.m.now()
	if st == r.lastState {
		if st != StateRun && st != StateHoming {
			return status.Noop
		}
		if now.Sub(r.last) < r.cfg.Interval {
			return status.Noop
		}
	}
	w := r.cfg.Output()
	if w == nil {
		return status.Noop
	}
	f := ReportText
	if r.cfg.Format != nil {
		f = r.cfg.Format()
	}
	if err := r.m.WriteStatusReport(w, f); err != nil {
		r.m.log.WithError(err).Warn("status report not sent")
	}
	r.last, r.lastState = now, st
	return status.OK
}

// Interval returns the report interval.
func (r *Reporter) Interval() time.Duration { return r.cfg.Interval }

// SetInterval changes the report interval; zero disables reports.
func (r *Reporter) SetInterval(d time.Duration) { r.cfg.Interval = d }
