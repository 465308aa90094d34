package config

import (
	"strings"
	"time"

	cerrors "tinyg-go/pkg/errors"
	"tinyg-go/pkg/log"
)

// Communications modes accepted by [controller] communications_mode.
const (
	ModeText = "text"
	ModeJSON = "json"
	ModeGrbl = "grbl"
)

// AxisConfig is one [axis <name>] section.
type AxisConfig struct {
	Name        string
	VelocityMax float64 // mm/min, traverse rate for G0
	FeedrateMax float64 // mm/min, ceiling for F words
	TravelMax   float64 // mm from zero; 0 disables the soft limit
}

// ControllerConfig is the typed view of a tinyg.cfg file.
type ControllerConfig struct {
	DefaultDevice      string
	CommunicationsMode string
	TxLowWater         int
	LineBuffer         int
	IdleInterval       time.Duration
	Startup            []string

	USB struct {
		Port   string // "-" is stdin/stdout
		Baud   int
		Cbreak bool
	}
	Net struct {
		Listen string
		Path   string
	}
	Machine struct {
		Units         string // "mm" or "inch" at power-up and after abort
		ArcSegment    float64
		SegmentTime   time.Duration
		PlannerBuffer int
	}
	Axes    []AxisConfig
	Report  struct{ Interval time.Duration }
	Metrics struct{ Listen string }
	Log     struct{ Level, Format, File string }
	Scripts struct{ File string }
}

func defaultAxes() []AxisConfig {
	return []AxisConfig{
		{Name: "x", VelocityMax: 16000, FeedrateMax: 16000, TravelMax: 220},
		{Name: "y", VelocityMax: 16000, FeedrateMax: 16000, TravelMax: 220},
		{Name: "z", VelocityMax: 1200, FeedrateMax: 1200, TravelMax: 100},
		{Name: "a", VelocityMax: 36000, FeedrateMax: 36000},
	}
}

// Default returns the configuration used when no file is given.
func Default() *ControllerConfig {
	cc := &ControllerConfig{
		DefaultDevice:      "usb",
		CommunicationsMode: ModeText,
		TxLowWater:         48,
		LineBuffer:         255,
		IdleInterval:       2 * time.Millisecond,
		Axes:               defaultAxes(),
	}
	cc.USB.Port = "-"
	cc.USB.Baud = 115200
	cc.USB.Cbreak = true
	cc.Net.Path = "/console"
	cc.Machine.Units = "mm"
	cc.Machine.ArcSegment = 0.1
	cc.Machine.SegmentTime = 5 * time.Millisecond
	cc.Machine.PlannerBuffer = 28
	cc.Report.Interval = 250 * time.Millisecond
	cc.Log.Level = "info"
	cc.Log.Format = "text"
	return cc
}

// LoadController reads path into a ControllerConfig. An empty path
// yields Default().
func LoadController(path string) (*ControllerConfig, error) {
	if path == "" {
		return Default(), nil
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(c)
}

// FromConfig extracts the controller settings, applying defaults for
// anything missing.
func FromConfig(c *Config) (*ControllerConfig, error) {
	cc := Default()
	readers := []struct {
		section string
		read    func(*Section) error
	}{
		{"controller", cc.readController},
		{"usb", cc.readUSB},
		{"net", cc.readNet},
		{"machine", cc.readMachine},
		{"report", cc.readReport},
		{"metrics", cc.readMetrics},
		{"log", cc.readLog},
		{"scripts", cc.readScripts},
	}
	for _, r := range readers {
		if sec := c.GetSectionOptional(r.section); sec != nil {
			if err := r.read(sec); err != nil {
				return nil, err
			}
		}
	}
	for _, sec := range c.GetPrefixSections("axis ") {
		if err := cc.readAxis(sec); err != nil {
			return nil, err
		}
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	for _, name := range c.Unused() {
		log.GetLogger("config").Warn("unknown option %s ignored", name)
	}
	return cc, nil
}

func (cc *ControllerConfig) readController(sec *Section) error {
	var err error
	if cc.DefaultDevice, err = sec.GetChoice("default_device", []string{"usb", "net"}, cc.DefaultDevice); err != nil {
		return err
	}
	modes := []string{ModeText, ModeJSON, ModeGrbl}
	if cc.CommunicationsMode, err = sec.GetChoice("communications_mode", modes, cc.CommunicationsMode); err != nil {
		return err
	}
	if cc.TxLowWater, err = sec.GetIntRange("tx_low_water", 1, 1<<20, cc.TxLowWater); err != nil {
		return err
	}
	if cc.LineBuffer, err = sec.GetIntRange("line_buffer", 8, 4096, cc.LineBuffer); err != nil {
		return err
	}
	if cc.IdleInterval, err = sec.GetDurationMs("idle_interval_ms", cc.IdleInterval); err != nil {
		return err
	}
	cc.Startup, err = sec.GetList("startup", ";", cc.Startup)
	return err
}

func (cc *ControllerConfig) readUSB(sec *Section) error {
	var err error
	if cc.USB.Port, err = sec.Get("port", cc.USB.Port); err != nil {
		return err
	}
	if cc.USB.Baud, err = sec.GetIntRange("baud", 300, 4000000, cc.USB.Baud); err != nil {
		return err
	}
	cc.USB.Cbreak, err = sec.GetBool("cbreak", cc.USB.Cbreak)
	return err
}

func (cc *ControllerConfig) readNet(sec *Section) error {
	var err error
	if cc.Net.Listen, err = sec.Get("listen", cc.Net.Listen); err != nil {
		return err
	}
	cc.Net.Path, err = sec.Get("path", cc.Net.Path)
	return err
}

func (cc *ControllerConfig) readMachine(sec *Section) error {
	var err error
	if cc.Machine.Units, err = sec.GetChoice("units", []string{"mm", "inch"}, cc.Machine.Units); err != nil {
		return err
	}
	if cc.Machine.ArcSegment, err = sec.GetPositiveFloat("arc_segment", cc.Machine.ArcSegment); err != nil {
		return err
	}
	if cc.Machine.SegmentTime, err = sec.GetDurationMs("segment_time_ms", cc.Machine.SegmentTime); err != nil {
		return err
	}
	cc.Machine.PlannerBuffer, err = sec.GetIntRange("planner_buffers", 2, 1024, cc.Machine.PlannerBuffer)
	return err
}

func (cc *ControllerConfig) readAxis(sec *Section) error {
	name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(sec.Name(), "axis ")))
	var ax *AxisConfig
	for i := range cc.Axes {
		if cc.Axes[i].Name == name {
			ax = &cc.Axes[i]
		}
	}
	if ax == nil {
		return cerrors.ConfigValidationError(sec.Name(), "", "unknown axis "+name)
	}
	var err error
	if ax.VelocityMax, err = sec.GetPositiveFloat("velocity_max", ax.VelocityMax); err != nil {
		return err
	}
	if ax.FeedrateMax, err = sec.GetPositiveFloat("feedrate_max", ax.FeedrateMax); err != nil {
		return err
	}
	ax.TravelMax, err = sec.GetFloat("travel_max", ax.TravelMax)
	return err
}

func (cc *ControllerConfig) readReport(sec *Section) (err error) {
	cc.Report.Interval, err = sec.GetDurationMs("interval_ms", cc.Report.Interval)
	return err
}

func (cc *ControllerConfig) readMetrics(sec *Section) (err error) {
	cc.Metrics.Listen, err = sec.Get("listen", cc.Metrics.Listen)
	return err
}

func (cc *ControllerConfig) readLog(sec *Section) error {
	var err error
	if cc.Log.Level, err = sec.GetChoice("level", []string{"debug", "info", "warn", "error"}, cc.Log.Level); err != nil {
		return err
	}
	if cc.Log.Format, err = sec.GetChoice("format", []string{"text", "json"}, cc.Log.Format); err != nil {
		return err
	}
	cc.Log.File, err = sec.Get("file", cc.Log.File)
	return err
}

func (cc *ControllerConfig) readScripts(sec *Section) (err error) {
	cc.Scripts.File, err = sec.Get("file", cc.Scripts.File)
	return err
}

// Validate checks settings that depend on each other.
func (cc *ControllerConfig) Validate() error {
	if cc.DefaultDevice == "net" && cc.Net.Listen == "" {
		return cerrors.ConfigValidationError("controller", "default_device",
			"net requires [net] listen to be set")
	}
	if cc.Net.Path == "" || !strings.HasPrefix(cc.Net.Path, "/") {
		return cerrors.ConfigValidationError("net", "path", "must start with '/'")
	}
	return nil
}

// Axis returns the settings for the named axis.
func (cc *ControllerConfig) Axis(name string) (AxisConfig, bool) {
	for _, a := range cc.Axes {
		if a.Name == name {
			return a, true
		}
	}
	return AxisConfig{}, false
}
