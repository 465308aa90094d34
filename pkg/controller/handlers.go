package controller

import (
	"tinyg-go/pkg/sig"
	"tinyg-go/pkg/status"
)

// Each handler clears its flag before acting, so one Raise fires one
// transition, and returns Eagain so the next pass starts from the top
// against the new state.

func (ctl *Controller) abortHandler() status.Code {
	return ctl.handle(&ctl.c.Flags.Abort, func() {
		ctl.c.Resetter.Reset()
		ctl.resetContext()
		ctl.resetSource(resetAbort)
	})
}

func (ctl *Controller) feedholdHandler() status.Code {
	return ctl.handle(&ctl.c.Flags.Feedhold, ctl.c.Motion.Feedhold)
}

func (ctl *Controller) cycleStartHandler() status.Code {
	return ctl.handle(&ctl.c.Flags.CycleStart, ctl.c.Motion.CycleStart)
}

func (ctl *Controller) handle(ev *sig.Event, transition func()) status.Code {
	if !ev.Take() {
		return status.Noop
	}
	ctl.log.Debug("signal %s", ev.Name())
	transition()
	ctl.rec.SignalHandled(ev.Name())
	return status.Eagain
}
