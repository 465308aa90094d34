// Line dispatcher
//
// Reads one line from the active source, routes it by its first character
// and answers it on the device it came from.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package controller

import (
	"io"
	"unicode"

	"tinyg-go/pkg/status"
	"tinyg-go/pkg/xio"
)

// Line kinds passed to Recorder.LineDispatched.
const (
	kindEmpty  = "empty"
	kindHelp   = "help"
	kindScript = "script"
	kindConfig = "config"
	kindJSON   = "json"
	kindGCode  = "gcode"
)

func (ctl *Controller) dispatch() status.Code {
	src, ok := ctl.c.Devices.Get(ctl.ctx.ActiveSource)
	if !ok {
		ctl.log.Warn("input source %s is gone", ctl.ctx.ActiveSource)
		ctl.resetSource(resetLost)
		return status.Noop
	}
	src, line, sc := ctl.nextLine(src)
	if sc != status.Eagain && src.ID() != ctl.ctx.ActiveSource {
		ctl.SetActiveSource(src.ID())
	}
	switch sc {
	case status.OK:
	case status.Eagain, status.Noop:
		return sc
	case status.EOF:
		if _, err := io.WriteString(ctl.errorDevice(), eofNotice); err != nil {
			ctl.log.WithError(err).Warn("EOF notice not sent")
		}
		ctl.resetSource(resetEOF)
		return status.EOF
	default:
		// the line is dropped; the reader has already resynchronised
		ctl.readError(sc, line)
		return sc
	}

	ctl.ctx.InputLine = line
	ctl.ctx.Output.Reset()

	var first rune
	if line != "" {
		first = unicode.ToUpper(rune(line[0]))
	}
	switch first {
	case 0:
		ctl.rec.LineDispatched(kindEmpty)
		ctl.respond(status.OK, line)

	case 'H':
		ctl.rec.LineDispatched(kindHelp)
		if ctl.c.Help != nil {
			ctl.c.Help.PrintHelp(ctl.ResponseWriter())
		}
		ctl.respond(status.OK, line)

	case 'T', 'U':
		if ctl.c.Scripts == nil {
			ctl.gcode(line)
			break
		}
		ctl.rec.LineDispatched(kindScript)
		if sc := ctl.RunScript(string(first)); sc != status.OK {
			ctl.respond(sc, line)
		}

	case '$', '?':
		ctl.rec.LineDispatched(kindConfig)
		if ctl.ctx.Mode != GrblMode {
			ctl.ctx.Mode = TextMode
		}
		ctl.respond(ctl.c.Config.ParseConfig(line), line)

	case '{':
		ctl.rec.LineDispatched(kindJSON)
		ctl.ctx.Mode = JSONMode
		sc := ctl.c.JSON.ParseJSON(line, &ctl.ctx.Output)
		ctl.respond(sc, ctl.ctx.Output.String())

	default:
		ctl.gcode(line)
	}
	return status.OK
}

func (ctl *Controller) readError(sc status.Code, line string) {
	if ctl.ctx.Mode == JSONMode {
		js, err := statusResponse(sc)
		if err != nil {
			ctl.log.WithError(err).Error("cannot serialize read error")
		}
		line = js
	}
	ctl.respond(sc, line)
}

// nextLine reads from src. An interactive src that has nothing buffered
// is followed by every other interactive device in slot order; the
// program device never shares its turn.
func (ctl *Controller) nextLine(src xio.Device) (xio.Device, string, status.Code) {
	line, sc := src.ReadLine()
	if sc != status.Eagain || !src.Flags().Has(xio.FlagInteractive) {
		return src, line, sc
	}
	for _, id := range ctl.c.Devices.IDs() {
		if id == src.ID() || id == xio.DevPGM || id == xio.DevStdError {
			continue
		}
		d, _ := ctl.c.Devices.Get(id)
		if !d.Flags().Has(xio.FlagReadable | xio.FlagInteractive) {
			continue
		}
		if line, sc := d.ReadLine(); sc != status.Eagain {
			return d, line, sc
		}
	}
	return src, "", status.Eagain
}

func (ctl *Controller) gcode(line string) {
	ctl.rec.LineDispatched(kindGCode)
	sc := ctl.c.GCode.ParseGCode(line)
	if ctl.ctx.Mode != JSONMode {
		ctl.respond(sc, line)
		return
	}
	js, err := ctl.c.Serializer.Serialize(GCodeEnvelope(sc, line))
	if err != nil {
		ctl.log.WithError(err).Error("cannot serialize G-code response")
	}
	ctl.ctx.Output.WriteString(js)
	ctl.respond(sc, ctl.ctx.Output.String())
}
