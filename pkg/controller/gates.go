package controller

import "tinyg-go/pkg/status"

// freeCounter is implemented by planners that can say how much room is
// left, for metrics.
type freeCounter interface {
	Free() int
}

// txGate holds new lines back while the response device has tx_low_water
// or more bytes still queued.
func (ctl *Controller) txGate() status.Code {
	d := ctl.responseDevice()
	if d == nil {
		return status.OK
	}
	depth := d.TxQueueDepth()
	ctl.rec.SetTxQueueDepth(d.ID().String(), depth)
	if depth >= ctl.cfg.TxLowWater {
		return status.Eagain
	}
	return status.OK
}

// plannerGate holds new lines back until the planner has a free slot.
func (ctl *Controller) plannerGate() status.Code {
	if fc, ok := ctl.c.Planner.(freeCounter); ok {
		ctl.rec.SetPlannerFree(fc.Free())
	}
	if !ctl.c.Planner.HasFreeSlot() {
		return status.Eagain
	}
	return status.OK
}
