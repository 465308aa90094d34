// Package controller is the dispatch core: it owns the controller context,
// builds the fixed task order for the reactor and turns command lines into
// parser calls and mode-aware responses.
//
// Everything here runs on the reactor goroutine. Other goroutines reach
// the controller only through the signal flags, the devices' input
// channels and reactor.Post.
package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	cerrors "tinyg-go/pkg/errors"
	"tinyg-go/pkg/log"
	"tinyg-go/pkg/reactor"
	"tinyg-go/pkg/sig"
	"tinyg-go/pkg/status"
	"tinyg-go/pkg/xio"
)

const (
	Version     = 0.93
	Build       = 331.24
	VersionName = "tinyg-go"

	// DefaultTxLowWater is the transmit gate threshold in bytes.
	DefaultTxLowWater = 48

	eofNotice = "End of command file\n"
)

// Mode is the communications mode.
type Mode int

const (
	TextMode Mode = iota
	JSONMode
	GrblMode
)

var modeNames = [...]string{"text", "json", "grbl"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode%d", int(m))
	}
	return modeNames[m]
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown communications mode %q", s)
}

// Context is the controller state a pass reads and writes. Only the loop
// goroutine touches it.
type Context struct {
	Version float64
	Build   float64

	DefaultSource xio.DeviceID
	ActiveSource  xio.DeviceID
	Mode          Mode
	PromptEnabled bool

	InputLine string
	Output    bytes.Buffer
}

// LineSource is a readable device. Every xio.Device is one.
type LineSource interface {
	ReadLine() (string, status.Code)
}

// ConfigParser handles '$' and '?' lines.
type ConfigParser interface {
	ParseConfig(line string) status.Code
}

// JSONParser handles '{' lines and writes the complete response to out.
type JSONParser interface {
	ParseJSON(line string, out *bytes.Buffer) status.Code
}

// GCodeParser handles every other line.
type GCodeParser interface {
	ParseGCode(line string) status.Code
}

// Planner reports motion queue capacity.
type Planner interface {
	HasFreeSlot() bool
}

// Motion takes feedhold and cycle start requests.
type Motion interface {
	Feedhold()
	CycleStart()
}

// Units reports the unit mode the prompt shows.
type Units interface {
	InchesMode() bool
}

// Resetter reinitialises the application and motion state on abort.
type Resetter interface {
	Reset()
}

// HelpPrinter writes the help screen.
type HelpPrinter interface {
	PrintHelp(w io.Writer)
}

// ScriptOpener opens a diagnostic script as a program device.
type ScriptOpener interface {
	OpenScript(name string) (xio.Device, error)
}

// Preloader accepts canned input ahead of live input.
type Preloader interface {
	Preload(text string)
}

// Callbacks are the per-pass continuations owned by other subsystems, in
// the order they run. A nil entry never does anything.
type Callbacks struct {
	SwitchScan   reactor.Task
	StatusReport reactor.Task
	PlanHold     reactor.Task
	EndHold      reactor.Task
	Arc          reactor.Task
	Homing       reactor.Task
	ReturnToHome reactor.Task
}

// Recorder receives controller events for metrics. A nil Recorder is
// allowed.
type Recorder interface {
	LineDispatched(kind string)
	Responded(mode string, code status.Code)
	SignalHandled(name string)
	SourceReset(reason string)
	SetTxQueueDepth(device string, n int)
	SetPlannerFree(n int)
}

// Config is the controller's static configuration.
type Config struct {
	DefaultSource xio.DeviceID
	Mode          Mode
	TxLowWater    int
}

// Collaborators are the subsystems the core calls.
type Collaborators struct {
	Devices *xio.Devices
	Flags   *sig.Flags

	Config ConfigParser
	JSON   JSONParser
	GCode  GCodeParser

	Planner  Planner
	Motion   Motion
	Units    Units
	Resetter Resetter

	// Help and Scripts are optional. Without Scripts, T and U lines are
	// G-code.
	Help    HelpPrinter
	Scripts ScriptOpener

	// Serializer defaults to JSONSerializer.
	Serializer EnvelopeSerializer

	Callbacks Callbacks
	Recorder  Recorder
}

// Controller owns the context and the reactor that runs it.
type Controller struct {
	cfg Config
	ctx Context
	c   Collaborators
	rec Recorder
	log *log.Logger

	reactor *reactor.Reactor
}

// New checks the collaborators and builds the task order. opts are
// passed to the reactor; the flags' wake channel is always installed.
func New(cfg Config, c Collaborators, opts ...reactor.Option) (*Controller, error) {
	if c.Devices == nil {
		return nil, cerrors.RuntimeError("controller: no device table")
	}
	if c.Flags == nil {
		c.Flags = sig.NewFlags()
	}
	required := []struct {
		name string
		ok   bool
	}{
		{"config parser", c.Config != nil},
		{"JSON parser", c.JSON != nil},
		{"G-code parser", c.GCode != nil},
		{"planner", c.Planner != nil},
		{"motion", c.Motion != nil},
		{"units", c.Units != nil},
		{"resetter", c.Resetter != nil},
	}
	for _, r := range required {
		if !r.ok {
			return nil, cerrors.RuntimeError("controller: missing " + r.name)
		}
	}
	if cfg.DefaultSource == xio.DevStdError || cfg.DefaultSource == xio.DevPGM {
		return nil, cerrors.UnknownDeviceError(cfg.DefaultSource.String())
	}
	d, ok := c.Devices.Get(cfg.DefaultSource)
	if !ok || !d.Flags().Has(xio.FlagReadable) {
		return nil, cerrors.UnknownDeviceError(cfg.DefaultSource.String())
	}
	if cfg.TxLowWater <= 0 {
		cfg.TxLowWater = DefaultTxLowWater
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}

	ctl := &Controller{
		cfg: cfg,
		c:   c,
		rec: c.Recorder,
		log: log.GetLogger("controller"),
	}
	if ctl.rec == nil {
		ctl.rec = nopRecorder{}
	}
	ctl.ctx.Version, ctl.ctx.Build = Version, Build
	ctl.resetContext()

	opts = append([]reactor.Option{reactor.WithWake(c.Flags.Wake())}, opts...)
	ctl.reactor = reactor.New(ctl.tasks(), opts...)
	return ctl, nil
}

// tasks is the pass order, highest priority first.
func (ctl *Controller) tasks() []reactor.Task {
	cb := ctl.c.Callbacks
	or := func(t reactor.Task, name string) reactor.Task {
		if t == nil {
			return reactor.Noop(name)
		}
		return t
	}
	return []reactor.Task{
		or(cb.SwitchScan, "switch"),
		reactor.NewTask("abort", ctl.abortHandler),
		reactor.NewTask("feedhold", ctl.feedholdHandler),
		reactor.NewTask("cycle_start", ctl.cycleStartHandler),
		or(cb.StatusReport, "status_report"),
		or(cb.PlanHold, "plan_hold"),
		or(cb.EndHold, "end_hold"),
		or(cb.Arc, "arc"),
		or(cb.Homing, "homing"),
		or(cb.ReturnToHome, "return_to_home"),
		reactor.NewWaitTask("tx_gate", ctl.txGate),
		reactor.NewWaitTask("planner_gate", ctl.plannerGate),
		reactor.NewWaitTask("dispatch", ctl.dispatch),
	}
}

// resetContext restores everything but version and build.
func (ctl *Controller) resetContext() {
	ctl.ctx.DefaultSource = ctl.cfg.DefaultSource
	ctl.ctx.ActiveSource = ctl.cfg.DefaultSource
	ctl.ctx.Mode = ctl.cfg.Mode
	ctl.ctx.PromptEnabled = true
	ctl.ctx.InputLine = ""
	ctl.ctx.Output.Reset()
}

// Reactor returns the loop that runs the controller.
func (ctl *Controller) Reactor() *reactor.Reactor { return ctl.reactor }

// Run runs passes until ctx is cancelled.
func (ctl *Controller) Run(ctx context.Context) error { return ctl.reactor.Run(ctx) }

// RunPass runs one pass.
func (ctl *Controller) RunPass() reactor.Pass { return ctl.reactor.RunPass() }

// Context returns a copy of the context fields, for inspection.
func (ctl *Controller) Context() Context {
	return Context{
		Version:       ctl.ctx.Version,
		Build:         ctl.ctx.Build,
		DefaultSource: ctl.ctx.DefaultSource,
		ActiveSource:  ctl.ctx.ActiveSource,
		Mode:          ctl.ctx.Mode,
		PromptEnabled: ctl.ctx.PromptEnabled,
		InputLine:     ctl.ctx.InputLine,
	}
}

// Mode returns the communications mode.
func (ctl *Controller) Mode() Mode { return ctl.ctx.Mode }

// SetMode switches communications mode from outside the dispatcher; this
// is the only way into GrblMode.
func (ctl *Controller) SetMode(m Mode) {
	if m != ctl.ctx.Mode {
		ctl.log.Info("communications mode %s", m)
	}
	ctl.ctx.Mode = m
}

// SetModeName is SetMode for callers holding a configuration name.
func (ctl *Controller) SetModeName(name string) status.Code {
	m, err := ParseMode(name)
	if err != nil {
		return status.NumberRangeError
	}
	ctl.SetMode(m)
	return status.OK
}

// Announce writes the startup banner.
func (ctl *Controller) Announce() {
	ctl.write(fmt.Sprintf("#### TinyG version %0.2f (build %0.2f) \"%s\" ####\n",
		ctl.ctx.Version, ctl.ctx.Build, VersionName))
}

// Ready tells the operator input is accepted.
func (ctl *Controller) Ready() {
	ctl.write("Type h for help\n" + ctl.prompt())
}

// Preload queues startup lines on the default device before Run.
func (ctl *Controller) Preload(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	d, _ := ctl.c.Devices.Get(ctl.ctx.DefaultSource)
	p, ok := d.(Preloader)
	if !ok {
		return cerrors.DeviceError(ctl.ctx.DefaultSource.String(), "preload", fmt.Errorf("device takes no canned input"))
	}
	p.Preload(strings.Join(lines, "\n") + "\n")
	ctl.log.Debug("preloaded %d startup lines", len(lines))
	return nil
}

type nopRecorder struct{}

func (nopRecorder) LineDispatched(string)         {}
func (nopRecorder) Responded(string, status.Code) {}
func (nopRecorder) SignalHandled(string)          {}
func (nopRecorder) SourceReset(string)            {}
func (nopRecorder) SetTxQueueDepth(string, int)   {}
func (nopRecorder) SetPlannerFree(int)            {}
