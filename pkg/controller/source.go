package controller

import (
	"io"

	"tinyg-go/pkg/status"
	"tinyg-go/pkg/xio"
)

// Reasons passed to Recorder.SourceReset.
const (
	resetAbort  = "abort"
	resetEOF    = "eof"
	resetLost   = "lost"
	resetScript = "script"
)

// ActiveSource returns the device lines are read from.
func (ctl *Controller) ActiveSource() xio.DeviceID { return ctl.ctx.ActiveSource }

// PromptEnabled reports whether the text prompt is shown.
func (ctl *Controller) PromptEnabled() bool { return ctl.ctx.PromptEnabled }

// SetActiveSource makes id the input device. The program device turns the
// prompt off and any other device turns it on. The error output can never
// be a source.
func (ctl *Controller) SetActiveSource(id xio.DeviceID) status.Code {
	if id == xio.DevStdError {
		return status.NoSuchDevice
	}
	d, ok := ctl.c.Devices.Get(id)
	if !ok || !d.Flags().Has(xio.FlagReadable) {
		return status.NoSuchDevice
	}
	if id != ctl.ctx.ActiveSource {
		ctl.log.Debug("input source %s -> %s", ctl.ctx.ActiveSource, id)
	}
	ctl.ctx.ActiveSource = id
	ctl.ctx.PromptEnabled = id != xio.DevPGM
	return status.OK
}

// ResetSource returns input to the default device and discards any
// program that was playing.
func (ctl *Controller) ResetSource() { ctl.resetSource(resetScript) }

func (ctl *Controller) resetSource(reason string) {
	if d := ctl.c.Devices.Unregister(xio.DevPGM); d != nil {
		if err := d.Close(); err != nil {
			ctl.log.WithError(err).Warn("closing program source")
		}
	}
	if ctl.ctx.ActiveSource != ctl.ctx.DefaultSource {
		ctl.log.WithField("reason", reason).Infof("input source reset to %s", ctl.ctx.DefaultSource)
	}
	ctl.ctx.ActiveSource = ctl.ctx.DefaultSource
	ctl.ctx.PromptEnabled = true
	ctl.rec.SourceReset(reason)
}

// RunScript opens a diagnostic script and makes it the input source. Any
// script already playing is discarded.
func (ctl *Controller) RunScript(name string) status.Code {
	if ctl.c.Scripts == nil {
		return status.FileNotOpen
	}
	d, err := ctl.c.Scripts.OpenScript(name)
	if err != nil {
		ctl.log.WithError(err).Warnf("script %s", name)
		return status.FileNotOpen
	}
	if d.ID() != xio.DevPGM {
		_ = d.Close()
		return status.NoSuchDevice
	}
	if old := ctl.c.Devices.Unregister(xio.DevPGM); old != nil {
		_ = old.Close()
	}
	ctl.c.Devices.Register(d)
	ctl.log.Info("running script %s", name)
	return ctl.SetActiveSource(xio.DevPGM)
}

// responseDevice is where answers go: the active source when it can be
// written, else the default device.
func (ctl *Controller) responseDevice() xio.Device {
	if d, ok := ctl.c.Devices.Get(ctl.ctx.ActiveSource); ok && d.Flags().Has(xio.FlagWritable) {
		return d
	}
	if d, ok := ctl.c.Devices.Get(ctl.ctx.DefaultSource); ok && d.Flags().Has(xio.FlagWritable) {
		return d
	}
	return nil
}

// ResponseWriter is the writer parsers print listings and reports to.
func (ctl *Controller) ResponseWriter() io.Writer {
	if d := ctl.responseDevice(); d != nil {
		return d
	}
	return io.Discard
}

// errorDevice is the diagnostic output: the error device when present,
// else the response device.
func (ctl *Controller) errorDevice() io.Writer {
	if d, ok := ctl.c.Devices.Get(xio.DevStdError); ok {
		return d
	}
	return ctl.ResponseWriter()
}
