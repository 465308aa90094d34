package host

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyg-go/pkg/config"
	"tinyg-go/pkg/controller"
	"tinyg-go/pkg/machine"
	"tinyg-go/pkg/xio"
)

func testConfig() *config.ControllerConfig {
	cfg := config.Default()
	cfg.Report.Interval = 0
	return cfg
}

// fastClock moves simulated time a second per reading so queued moves
// finish within a few passes.
func fastClock() Option {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	return WithMachineOptions(machine.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}))
}

func run(t *testing.T, h *Host) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.Run(ctx))
	require.NoError(t, ctx.Err(), "host did not stop when input ended")
}

func TestRunConsoleSession(t *testing.T) {
	var out, errOut bytes.Buffer
	in := strings.NewReader("g21\ng0 x10\n$xvm\n{\"xvm\":null}\ng0 x10 q1\n")
	h, err := New(testConfig(), WithStdio(in, &out), WithErrorOutput(&errOut), fastClock())
	require.NoError(t, err)
	run(t, h)

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "#### TinyG version 0.93 (build 331.24) \"tinyg-go\" ####\n"))
	assert.Contains(t, got, "Type h for help\n")
	assert.Contains(t, got, "[xvm]  x_velocity_maximum            16000.000 mm/min\n")
	assert.Contains(t, got, `{"r":{"xvm":16000},"st":0,"msg":"OK"}`+"\n")
	assert.Contains(t, got, `{"gc":{"gc":"g0 x10 q1","st":14,"msg":"Unrecognized command"}}`)

	assert.Equal(t, controller.JSONMode, h.Controller().Mode())
	assert.InDelta(t, 10.0, h.Machine().Position()[0], 1e-9)
	assert.Equal(t, uint64(3), h.Metrics().Lines.Value("gcode"))
	assert.Equal(t, uint64(1), h.Metrics().Lines.Value("config"))
	assert.Equal(t, uint64(1), h.Metrics().Lines.Value("json"))
	assert.NotZero(t, h.Metrics().Passes.Value())
	assert.Empty(t, errOut.String())
}

func TestRunStartupLines(t *testing.T) {
	var out bytes.Buffer
	cfg := testConfig()
	cfg.Startup = []string{"g20", "$gun"}
	h, err := New(cfg, WithStdio(strings.NewReader(""), &out), WithErrorOutput(&bytes.Buffer{}), fastClock())
	require.NoError(t, err)
	run(t, h)

	assert.True(t, h.Machine().InchesMode())
	assert.Contains(t, out.String(), "tinyg[inch] ok> ")
}

func TestRunScript(t *testing.T) {
	var out, errOut bytes.Buffer
	h, err := New(testConfig(),
		WithStdio(strings.NewReader(""), &out),
		WithErrorOutput(&errOut),
		WithScript("t"),
		fastClock())
	require.NoError(t, err)
	run(t, h)

	assert.Equal(t, "End of command file\n", errOut.String())
	assert.Equal(t, xio.DevUSB, h.Controller().ActiveSource())
	assert.Equal(t, uint64(1), h.Metrics().SourceResets.Value("eof"))
}

// onLoop reads controller state from the loop goroutine.
func onLoop(t *testing.T, h *Host, fn func() interface{}) interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, _ := h.Controller().Reactor().Call(ctx, fn)
	return v
}

func TestRunAbortCharacter(t *testing.T) {
	pr, pw := io.Pipe()
	h, err := New(testConfig(),
		WithStdio(pr, io.Discard),
		WithErrorOutput(&bytes.Buffer{}), fastClock())
	require.NoError(t, err)

	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { done <- h.Run(ctx) }()

	mode := func() interface{} { return h.Controller().Mode() }
	_, err = io.WriteString(pw, "{\"xvm\":null}\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return onLoop(t, h, mode) == controller.JSONMode }, 5*time.Second, 5*time.Millisecond)

	// no newline: the abort must not wait for a line
	_, err = io.WriteString(pw, "\x18")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return onLoop(t, h, mode) == controller.TextMode }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), h.Metrics().Signals.Value("abort"))
}

func TestRunWithNetConsoleOutlivesInput(t *testing.T) {
	cfg := testConfig()
	cfg.Net.Listen = "127.0.0.1:0"
	h, err := New(cfg, WithStdio(strings.NewReader("g21\n"), io.Discard), WithErrorOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded, "host stopped with the websocket console still open")
	assert.Equal(t, uint64(1), h.Metrics().Lines.Value("gcode"))
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultDevice = "net"
	_, err := New(cfg, WithStdio(strings.NewReader(""), &bytes.Buffer{}))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.CommunicationsMode = "morse"
	_, err = New(cfg, WithStdio(strings.NewReader(""), &bytes.Buffer{}))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Scripts.File = "/nonexistent/scripts.yaml"
	_, err = New(cfg, WithStdio(strings.NewReader(""), &bytes.Buffer{}))
	assert.Error(t, err)
}

func TestReportFormat(t *testing.T) {
	tests := []struct {
		mode controller.Mode
		want string
	}{
		{controller.TextMode, "text"},
		{controller.JSONMode, "json"},
		{controller.GrblMode, "grbl"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mode.String())
		})
	}
	assert.NotEqual(t, reportFormat(controller.TextMode), reportFormat(controller.JSONMode))
	assert.NotEqual(t, reportFormat(controller.JSONMode), reportFormat(controller.GrblMode))
}
