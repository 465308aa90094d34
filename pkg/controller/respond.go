package controller

import (
	"io"

	"tinyg-go/pkg/status"
)

const (
	promptMM   = "tinyg[mm] ok> "
	promptInch = "tinyg[inch] ok> "
)

// prompt is the unit-aware prompt, or nothing while a script plays.
func (ctl *Controller) prompt() string {
	if !ctl.ctx.PromptEnabled {
		return ""
	}
	if ctl.c.Units.InchesMode() {
		return promptInch
	}
	return promptMM
}

// respond answers one line according to the communications mode.
//
//	json: buf, newline terminated
//	grbl: "ok" for OK, "err" for anything else
//	text: the prompt alone for OK, Eagain and Noop, otherwise
//	      "<message>: <buf> " on its own line and then the prompt
func (ctl *Controller) respond(sc status.Code, buf string) {
	var out string
	switch ctl.ctx.Mode {
	case JSONMode:
		out = buf + "\n"
	case GrblMode:
		if sc == status.OK {
			out = "ok\n"
		} else {
			out = "err\n"
		}
	default:
		if !sc.IsQuiet() {
			out = status.Normalize(sc).Message() + ": " + buf + " \n"
		}
		out += ctl.prompt()
	}
	ctl.write(out)
	ctl.rec.Responded(ctl.ctx.Mode.String(), status.Normalize(sc))
}

func (ctl *Controller) write(s string) {
	if s == "" {
		return
	}
	if _, err := io.WriteString(ctl.ResponseWriter(), s); err != nil {
		ctl.log.WithError(err).Warn("response not sent")
	}
}
