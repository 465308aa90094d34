package metrics

import (
	"strings"
	"testing"
	"time"

	"tinyg-go/pkg/reactor"
	"tinyg-go/pkg/status"
)

func TestObservePass(t *testing.T) {
	m := NewControllerMetrics()
	m.ObservePass(reactor.Pass{Blocker: -1, Duration: 20 * time.Microsecond})
	m.ObservePass(reactor.Pass{Blocker: 10, Task: "tx_gate", Status: status.Eagain, Duration: time.Microsecond})
	m.ObservePass(reactor.Pass{Blocker: 10, Task: "tx_gate", Status: status.Eagain})

	if v := m.Passes.Value(); v != 3 {
		t.Errorf("expected 3 passes, got %d", v)
	}
	if v := m.BlockedPasses.Value("tx_gate"); v != 2 {
		t.Errorf("expected 2 blocked passes, got %d", v)
	}
	if snap := m.PassDuration.Snapshot(); snap.Count != 3 {
		t.Errorf("expected 3 observations, got %d", snap.Count)
	}
}

func TestControllerRecorders(t *testing.T) {
	m := NewControllerMetrics()
	m.LineDispatched("gcode")
	m.LineDispatched("json")
	m.LineDispatched("gcode")
	m.Responded("text", status.OK)
	m.Responded("json", status.JSONSyntaxError)
	m.SignalHandled("abort")
	m.SourceReset("eof")
	m.SetTxQueueDepth("usb", 12)
	m.SetPlannerFree(27)

	if v := m.Lines.Value("gcode"); v != 2 {
		t.Errorf("expected 2 gcode lines, got %d", v)
	}
	if v := m.Responses.Value("json", "17"); v != 1 {
		t.Errorf("expected one json/17 response, got %d", v)
	}

	out := m.Gather()
	for _, want := range []string{
		`tinyg_signals_total{signal="abort"} 1`,
		`tinyg_source_resets_total{reason="eof"} 1`,
		`tinyg_tx_queue_bytes{device="usb"} 12`,
		`tinyg_planner_free_slots 27`,
		`# TYPE tinyg_goroutines gauge`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
	if m.Goroutines.Value() < 1 {
		t.Error("goroutine gauge not refreshed")
	}
}
