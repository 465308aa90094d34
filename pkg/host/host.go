// Controller host
//
// Opens the devices named by the configuration, builds the machine and
// the command parsers around them, and runs the dispatch loop.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package host

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"tinyg-go/pkg/config"
	"tinyg-go/pkg/controller"
	"tinyg-go/pkg/diag"
	cerrors "tinyg-go/pkg/errors"
	"tinyg-go/pkg/gcode"
	"tinyg-go/pkg/help"
	"tinyg-go/pkg/log"
	"tinyg-go/pkg/machine"
	"tinyg-go/pkg/metrics"
	"tinyg-go/pkg/reactor"
	"tinyg-go/pkg/settings"
	"tinyg-go/pkg/sig"
	"tinyg-go/pkg/status"
	"tinyg-go/pkg/xio"
)

const (
	shutdownTimeout = 2 * time.Second
	drainPoll       = 10 * time.Millisecond
)

// Option configures a Host.
type Option func(*options)

type options struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	machine []machine.Option
	script  string
}

// WithStdio replaces os.Stdin and os.Stdout as the usb console. The
// console is not put into cbreak mode.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(o *options) { o.in, o.out = in, out }
}

// WithErrorOutput replaces os.Stderr as the error device.
func WithErrorOutput(w io.Writer) Option {
	return func(o *options) { o.errOut = w }
}

// WithMachineOptions passes options through to machine.New.
func WithMachineOptions(opts ...machine.Option) Option {
	return func(o *options) { o.machine = append(o.machine, opts...) }
}

// WithScript plays the named diagnostic script once the banner is out.
func WithScript(name string) Option {
	return func(o *options) { o.script = name }
}

// Host owns every long-lived object of a running controller.
type Host struct {
	cfg  *config.ControllerConfig
	opts options
	log  *log.Logger

	flags    *sig.Flags
	devices  *xio.Devices
	console  xio.Device
	net      *xio.Net
	machine  *machine.Machine
	settings *settings.Settings
	scripts  *diag.Catalog
	metrics  *metrics.ControllerMetrics
	servers  []*metrics.Server
	ctl      *controller.Controller
}

// New opens the devices and builds the controller. Nothing runs until
// Run is called.
func New(cfg *config.ControllerConfig, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Host{
		cfg:     cfg,
		log:     log.GetLogger("host"),
		flags:   sig.NewFlags(),
		devices: xio.NewDevices(),
		metrics: metrics.NewControllerMetrics(),
	}
	for _, opt := range opts {
		opt(&h.opts)
	}
	if err := h.openDevices(); err != nil {
		h.devices.CloseAll()
		return nil, err
	}
	if err := h.build(); err != nil {
		h.devices.CloseAll()
		return nil, err
	}
	return h, nil
}

func (h *Host) openDevices() error {
	cfg := h.cfg
	switch {
	case h.opts.in != nil || h.opts.out != nil:
		h.console = xio.NewStream(xio.DevUSB, h.opts.in, h.opts.out, xio.StreamConfig{
			LineBuffer:  cfg.LineBuffer,
			Intercept:   h.flags.Intercept,
			Notify:      h.flags.Notify,
			Interactive: true,
		})
	case cfg.USB.Port == "" || cfg.USB.Port == "-":
		h.console = xio.NewConsole(os.Stdin, os.Stdout, xio.ConsoleConfig{
			LineBuffer: cfg.LineBuffer,
			Intercept:  h.flags.Intercept,
			Notify:     h.flags.Notify,
			Cbreak:     cfg.USB.Cbreak,
		})
	default:
		s, err := xio.OpenSerial(xio.SerialConfig{
			Port:       cfg.USB.Port,
			Baud:       cfg.USB.Baud,
			LineBuffer: cfg.LineBuffer,
			Intercept:  h.flags.Intercept,
			Notify:     h.flags.Notify,
		})
		if err != nil {
			return err
		}
		h.console = s
		h.log.WithField("baud", cfg.USB.Baud).Infof("console on %s", cfg.USB.Port)
	}
	h.devices.Register(h.console)

	if cfg.Net.Listen != "" {
		h.net = xio.NewNet(xio.NetConfig{
			LineBuffer: cfg.LineBuffer,
			Intercept:  h.flags.Intercept,
			Notify:     h.flags.Notify,
		})
		h.devices.Register(h.net)
	}

	errOut := h.opts.errOut
	if errOut == nil {
		errOut = os.Stderr
	}
	h.devices.Register(xio.NewErrorOut(errOut))
	return nil
}

func (h *Host) build() error {
	cfg := h.cfg
	source, err := xio.ParseDeviceID(cfg.DefaultDevice)
	if err != nil {
		return cerrors.ConfigValidationError("controller", "default_device", err.Error())
	}
	mode, err := controller.ParseMode(cfg.CommunicationsMode)
	if err != nil {
		return cerrors.ConfigValidationError("controller", "communications_mode", err.Error())
	}

	mopts := []machine.Option{
		machine.WithLimitHandler(h.flags.Abort.Raise),
		machine.WithSwitchNotify(h.flags.Notify),
	}
	h.machine = machine.New(machine.ConfigFrom(cfg), append(mopts, h.opts.machine...)...)

	h.scripts, err = diag.Load(cfg.Scripts.File)
	if err != nil {
		return err
	}

	// The settings and the reporter reach the controller through these
	// closures; ctl is set before the loop starts.
	var ctl *controller.Controller
	reporter := machine.NewReporter(h.machine, machine.ReporterConfig{
		Interval: cfg.Report.Interval,
		Format:   func() machine.ReportFormat { return reportFormat(ctl.Mode()) },
		Output:   func() io.Writer { return ctl.ResponseWriter() },
	})
	gc := gcode.New(h.machine)
	h.settings = settings.New(h.machine, gc, settings.Options{
		Version: controller.Version,
		Build:   controller.Build,
		Mode:    func() string { return ctl.Mode().String() },
		SetMode: func(name string) status.Code { return ctl.SetModeName(name) },
		Report:  reporter,
		Output:  func() io.Writer { return ctl.ResponseWriter() },
	})

	ctl, err = controller.New(controller.Config{
		DefaultSource: source,
		Mode:          mode,
		TxLowWater:    cfg.TxLowWater,
	}, controller.Collaborators{
		Devices:  h.devices,
		Flags:    h.flags,
		Config:   h.settings,
		JSON:     h.settings,
		GCode:    gc,
		Planner:  h.machine.Planner(),
		Motion:   h.machine,
		Units:    h.machine,
		Resetter: h.machine,
		Help:     help.New(h.scripts),
		Scripts:  h.scripts,
		Callbacks: controller.Callbacks{
			SwitchScan:   h.machine.SwitchTask(),
			StatusReport: reporter,
			PlanHold:     h.machine.PlanHoldTask(),
			EndHold:      h.machine.EndHoldTask(),
			Arc:          h.machine.ArcTask(),
			Homing:       h.machine.HomingTask(),
			ReturnToHome: h.machine.ReturnToHomeTask(),
		},
		Recorder: h.metrics,
	},
		reactor.WithIdleInterval(cfg.IdleInterval),
		reactor.WithObserver(h.metrics),
	)
	if err != nil {
		return err
	}
	h.ctl = ctl
	h.buildServers()
	return nil
}

func reportFormat(m controller.Mode) machine.ReportFormat {
	switch m {
	case controller.JSONMode:
		return machine.ReportJSON
	case controller.GrblMode:
		return machine.ReportGrbl
	}
	return machine.ReportText
}

// buildServers creates one HTTP server per distinct address. The
// websocket console shares the metrics server when both use the same
// address.
func (h *Host) buildServers() {
	byAddr := map[string]*metrics.Server{}
	server := func(addr string) *metrics.Server {
		if s, ok := byAddr[addr]; ok {
			return s
		}
		s := metrics.NewServer(h.metrics, addr)
		byAddr[addr] = s
		h.servers = append(h.servers, s)
		return s
	}
	if addr := h.cfg.Metrics.Listen; addr != "" {
		server(addr)
	}
	if h.net != nil {
		server(h.cfg.Net.Listen).Handle(h.cfg.Net.Path, h.net)
	}
}

// Controller returns the dispatch core.
func (h *Host) Controller() *controller.Controller { return h.ctl }

// Machine returns the canonical machine.
func (h *Host) Machine() *machine.Machine { return h.machine }

// Metrics returns the exported metrics.
func (h *Host) Metrics() *metrics.ControllerMetrics { return h.metrics }

// Flags returns the signal flags, for raising abort and holds from
// outside the loop.
func (h *Host) Flags() *sig.Flags { return h.flags }

// Run serves until ctx is cancelled or, without a websocket console, the
// console input ends and the machine has finished moving. Devices are
// closed on return.
func (h *Host) Run(ctx context.Context) error {
	defer h.close()

	for _, s := range h.servers {
		if err := s.Listen(); err != nil {
			return err
		}
		h.log.Info("serving on %s", s.Addr())
		go func(s *metrics.Server) {
			if err := <-s.StartAsync(); err != nil {
				h.log.WithError(err).Error("http server stopped")
			}
		}(s)
	}

	h.ctl.Announce()
	if err := h.ctl.Preload(h.cfg.Startup); err != nil {
		h.log.WithError(err).Warn("startup lines not loaded")
	}
	if h.opts.script != "" {
		if sc := h.ctl.RunScript(h.opts.script); sc != status.OK {
			h.log.Warn("script %s: %s", h.opts.script, sc.Message())
		}
	}
	h.ctl.Ready()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// with a websocket console the host serves until it is told to stop
	if d, ok := h.console.(interface{ Drained() <-chan struct{} }); ok && h.net == nil {
		go h.stopWhenIdle(runCtx, d.Drained(), cancel)
	}

	err := h.ctl.Run(runCtx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// stopWhenIdle cancels the loop once the console has no more input and
// the host is idle.
func (h *Host) stopWhenIdle(ctx context.Context, drained <-chan struct{}, cancel context.CancelFunc) {
	select {
	case <-ctx.Done():
		return
	case <-drained:
	}
	h.log.Debug("console input ended")
	tick := time.NewTicker(drainPoll)
	defer tick.Stop()
	for {
		idle, err := h.ctl.Reactor().Call(ctx, func() interface{} { return h.idle() })
		if err != nil {
			return
		}
		if idle.(bool) {
			cancel()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// idle reports that nothing is left to do without new input: no script
// is playing, no signal is waiting and the machine is not moving.
func (h *Host) idle() bool {
	if h.ctl.ActiveSource() == xio.DevPGM {
		return false
	}
	f := h.flags
	if f.Abort.Pending() || f.Feedhold.Pending() || f.CycleStart.Pending() {
		return false
	}
	st := h.machine.State()
	return st != machine.StateRun && st != machine.StateHoming
}

func (h *Host) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range h.servers {
		if err := s.Shutdown(ctx); err != nil {
			h.log.WithError(err).Warn("http server shutdown")
		}
	}
	if err := h.devices.CloseAll(); err != nil {
		h.log.WithError(err).Warn("closing devices")
	}
}
