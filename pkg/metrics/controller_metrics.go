// Controller metrics definitions
//
// Covers the dispatch loop (passes, blocking task, pass time), line
// traffic by kind, responses by communications mode and status, signals,
// source resets, and the two flow-control quantities the gates look at.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"strconv"
	"time"

	"tinyg-go/pkg/reactor"
	"tinyg-go/pkg/status"
)

// ControllerMetrics holds every metric the controller host exports.
type ControllerMetrics struct {
	// Dispatch loop
	Passes        *Counter
	BlockedPasses *Counter
	PassDuration  *Histogram

	// Line traffic
	Lines     *Counter
	Responses *Counter

	// Signals and source control
	Signals      *Counter
	SourceResets *Counter

	// Flow control
	TxQueueDepth *Gauge
	PlannerFree  *Gauge

	// Process
	Uptime     *Gauge
	Goroutines *Gauge
	HeapAlloc  *Gauge

	registry *Registry
	start    time.Time
}

// NewControllerMetrics declares and registers the controller metrics in a
// fresh registry.
func NewControllerMetrics() *ControllerMetrics {
	m := &ControllerMetrics{
		Passes: NewCounter("tinyg_passes_total",
			"Dispatch passes run"),
		BlockedPasses: NewCounter("tinyg_blocked_passes_total",
			"Passes cut short by a task returning Eagain", "task"),
		PassDuration: NewHistogram("tinyg_pass_duration_seconds",
			"Wall time of one dispatch pass", ExponentialBuckets(1e-6, 4, 10)),
		Lines: NewCounter("tinyg_lines_total",
			"Input lines dispatched by kind", "kind"),
		Responses: NewCounter("tinyg_responses_total",
			"Responses emitted by communications mode and status", "mode", "status"),
		Signals: NewCounter("tinyg_signals_total",
			"Abort, feedhold and cycle start events handled", "signal"),
		SourceResets: NewCounter("tinyg_source_resets_total",
			"Active input source reset to the default device", "reason"),
		TxQueueDepth: NewGauge("tinyg_tx_queue_bytes",
			"Bytes queued for transmit on a device", "device"),
		PlannerFree: NewGauge("tinyg_planner_free_slots",
			"Free slots in the planner queue"),
		Uptime: NewGauge("tinyg_uptime_seconds",
			"Seconds since the host started"),
		Goroutines: NewGauge("tinyg_goroutines",
			"Number of goroutines"),
		HeapAlloc: NewGauge("tinyg_heap_alloc_bytes",
			"Bytes of allocated heap objects"),
		registry: NewRegistry(),
		start:    time.Now(),
	}
	m.registry.MustRegister(
		m.Passes, m.BlockedPasses, m.PassDuration,
		m.Lines, m.Responses,
		m.Signals, m.SourceResets,
		m.TxQueueDepth, m.PlannerFree,
		m.Uptime, m.Goroutines, m.HeapAlloc,
	)
	return m
}

// ObservePass records one reactor pass.
func (m *ControllerMetrics) ObservePass(p reactor.Pass) {
	m.Passes.Inc()
	m.PassDuration.ObserveDuration(p.Duration)
	if p.Blocked() {
		m.BlockedPasses.Inc(p.Task)
	}
}

// LineDispatched counts one input line by its routing kind.
func (m *ControllerMetrics) LineDispatched(kind string) { m.Lines.Inc(kind) }

// Responded counts one emitted response.
func (m *ControllerMetrics) Responded(mode string, code status.Code) {
	m.Responses.Inc(mode, strconv.Itoa(int(code)))
}

// SignalHandled counts one consumed signal.
func (m *ControllerMetrics) SignalHandled(name string) { m.Signals.Inc(name) }

// SourceReset counts one return to the default source.
func (m *ControllerMetrics) SourceReset(reason string) { m.SourceResets.Inc(reason) }

// SetTxQueueDepth records the transmit backlog of a device.
func (m *ControllerMetrics) SetTxQueueDepth(device string, n int) {
	m.TxQueueDepth.Set(float64(n), device)
}

// SetPlannerFree records the number of free planner slots.
func (m *ControllerMetrics) SetPlannerFree(n int) { m.PlannerFree.Set(float64(n)) }

// UpdateSystem refreshes the process gauges.
func (m *ControllerMetrics) UpdateSystem() {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	m.Uptime.Set(time.Since(m.start).Seconds())
	m.Goroutines.Set(float64(goruntime.NumGoroutine()))
	m.HeapAlloc.Set(float64(ms.HeapAlloc))
}

// Registry returns the registry holding these metrics.
func (m *ControllerMetrics) Registry() *Registry { return m.registry }

// Gather refreshes the process gauges and renders everything.
func (m *ControllerMetrics) Gather() string {
	m.UpdateSystem()
	return m.registry.Gather()
}
