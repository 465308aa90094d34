package settings

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tinyg-go/pkg/config"
	"tinyg-go/pkg/machine"
	"tinyg-go/pkg/status"
)

type fakeGCode struct {
	lines []string
	code  status.Code
}

func (f *fakeGCode) ParseGCode(line string) status.Code {
	f.lines = append(f.lines, line)
	return f.code
}

type harness struct {
	s      *Settings
	m      *machine.Machine
	gc     *fakeGCode
	out    *bytes.Buffer
	mode   string
	report *machine.Reporter
}

func newHarness() *harness {
	h := &harness{
		m:    machine.New(machine.ConfigFrom(config.Default())),
		gc:   &fakeGCode{},
		out:  &bytes.Buffer{},
		mode: config.ModeText,
	}
	h.report = machine.NewReporter(h.m, machine.ReporterConfig{Interval: 250 * time.Millisecond})
	h.s = New(h.m, h.gc, Options{
		Version: 0.93,
		Build:   331.24,
		Mode:    func() string { return h.mode },
		SetMode: func(mode string) status.Code {
			h.mode = mode
			return status.OK
		},
		Report: h.report,
		Output: func() io.Writer { return h.out },
	})
	return h
}

func (h *harness) json(t *testing.T, line string) (string, status.Code) {
	t.Helper()
	var out bytes.Buffer
	sc := h.s.ParseJSON(line, &out)
	return out.String(), sc
}

func TestTokenTable(t *testing.T) {
	h := newHarness()
	assert.Equal(t, []string{
		"fv", "fb", "si", "gun", "cm",
		"xvm", "xfr", "xtm", "yvm", "yfr", "ytm",
		"zvm", "zfr", "ztm", "avm", "afr", "atm",
	}, h.s.Tokens())

	v, ok := h.s.Get("FV")
	require.True(t, ok)
	assert.Equal(t, 0.93, v)
	_, ok = h.s.Get("qq")
	assert.False(t, ok)
}

func TestTextShowAndSet(t *testing.T) {
	h := newHarness()

	require.Equal(t, status.OK, h.s.ParseConfig("$xvm"))
	assert.Equal(t, "[xvm]  x_velocity_maximum            16000.000 mm/min\n", h.out.String())

	h.out.Reset()
	require.Equal(t, status.OK, h.s.ParseConfig("$XVM=1200"))
	assert.Equal(t, 1200.0, h.m.Limits(machine.AxisX).VelocityMax)
	assert.Contains(t, h.out.String(), "1200.000 mm/min")

	require.Equal(t, status.OK, h.s.ParseConfig("$ztm 55.5"))
	assert.Equal(t, 55.5, h.m.Limits(machine.AxisZ).TravelMax)

	h.out.Reset()
	require.Equal(t, status.OK, h.s.ParseConfig("$si"))
	assert.Equal(t, "[si]   status_interval                     250 ms\n", h.out.String())
}

func TestTextListings(t *testing.T) {
	h := newHarness()

	require.Equal(t, status.OK, h.s.ParseConfig("$"))
	assert.Equal(t, 5, strings.Count(h.out.String(), "\n"))

	h.out.Reset()
	require.Equal(t, status.OK, h.s.ParseConfig("$x"))
	assert.Equal(t, 3, strings.Count(h.out.String(), "\n"))

	h.out.Reset()
	require.Equal(t, status.OK, h.s.ParseConfig("$$"))
	assert.Equal(t, len(h.s.Tokens()), strings.Count(h.out.String(), "\n"))
}

func TestTextErrors(t *testing.T) {
	h := newHarness()
	tests := []struct {
		line string
		want status.Code
	}{
		{"$nope", status.UnrecognizedCommand},
		{"$nope=1", status.UnrecognizedCommand},
		{"$xvm=fast", status.BadNumberFormat},
		{"$xvm=0", status.NumberRangeError},
		{"$xtm=-1", status.NumberRangeError},
		{"$gun=3", status.NumberRangeError},
		{"$cm=1.5", status.NumberRangeError},
		{"$si=-5", status.NumberRangeError},
		{"x", status.UnrecognizedCommand},
		{"", status.Noop},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, h.s.ParseConfig(tt.line))
		})
	}
	assert.Equal(t, 16000.0, h.m.Limits(machine.AxisX).VelocityMax)
}

func TestUnitsAndMode(t *testing.T) {
	h := newHarness()
	require.Equal(t, status.OK, h.s.ParseConfig("$gun=0"))
	assert.True(t, h.m.InchesMode())

	require.Equal(t, status.OK, h.s.ParseConfig("$cm=2"))
	assert.Equal(t, config.ModeGrbl, h.mode)
	v, _ := h.s.Get("cm")
	assert.Equal(t, 2.0, v)

	require.Equal(t, status.OK, h.s.ParseConfig("$si=100"))
	assert.Equal(t, 100*time.Millisecond, h.report.Interval())
}

func TestStatusQuery(t *testing.T) {
	h := newHarness()
	require.Equal(t, status.OK, h.s.ParseConfig("?"))
	assert.Contains(t, h.out.String(), "Machine state:    reset")

	h.out.Reset()
	h.mode = config.ModeGrbl
	require.Equal(t, status.OK, h.s.ParseConfig("?"))
	assert.Equal(t, "<Idle,MPos:0.000,0.000,0.000>\n", h.out.String())
}

func TestJSONQueryAndSet(t *testing.T) {
	h := newHarness()

	out, sc := h.json(t, `{"xvm":null}`)
	require.Equal(t, status.OK, sc)
	assert.Equal(t, `{"r":{"xvm":16000},"st":0,"msg":"OK"}`, out)

	out, sc = h.json(t, ` { "yfr" : 900 , "fv":"" } `)
	require.Equal(t, status.OK, sc)
	assert.Equal(t, `{"r":{"yfr":900,"fv":0.93},"st":0,"msg":"OK"}`, out)
	assert.Equal(t, 900.0, h.m.Limits(machine.AxisY).FeedrateMax)

	out, sc = h.json(t, `{"z":{"vm":600,"ztm":80}}`)
	require.Equal(t, status.OK, sc)
	assert.Equal(t, `{"r":{"z":{"zvm":600,"zfr":1200,"ztm":80}},"st":0,"msg":"OK"}`, out)
}

func TestJSONReadOnly(t *testing.T) {
	h := newHarness()
	out, sc := h.json(t, `{"fb":1}`)
	require.Equal(t, status.OK, sc)
	assert.Equal(t, 331.24, gjson.Get(out, "r.fb").Float())
}

func TestJSONGCode(t *testing.T) {
	h := newHarness()
	out, sc := h.json(t, `{"gc":"g0 x10"}`)
	require.Equal(t, status.OK, sc)
	assert.Equal(t, `{"r":{"gc":"g0 x10"},"st":0,"msg":"OK"}`, out)
	assert.Equal(t, []string{"g0 x10"}, h.gc.lines)

	h.gc.code = status.GcodeFeedrateError
	out, sc = h.json(t, `{"gcode":"g1 x1"}`)
	assert.Equal(t, status.GcodeFeedrateError, sc)
	assert.Equal(t, int64(status.GcodeFeedrateError), gjson.Get(out, "st").Int())
	assert.Equal(t, "Gcode feedrate error", gjson.Get(out, "msg").String())
}

func TestJSONStatusReport(t *testing.T) {
	h := newHarness()
	out, sc := h.json(t, `{"sr":""}`)
	require.Equal(t, status.OK, sc)
	sr := gjson.Get(out, "r.sr")
	assert.True(t, sr.IsObject())
	assert.Equal(t, int64(1), sr.Get("unit").Int())
	assert.Equal(t, 0.0, sr.Get("posx").Float())
}

func TestJSONErrors(t *testing.T) {
	h := newHarness()
	tests := []struct {
		in   string
		want status.Code
	}{
		{`{bad`, status.JSONSyntaxError},
		{`[1,2]`, status.JSONSyntaxError},
		{`{"bad":1}`, status.UnrecognizedCommand},
		{`{"xvm":"fast"}`, status.BadNumberFormat},
		{`{"xvm":[1]}`, status.JSONSyntaxError},
		{`{"x":{"qq":1}}`, status.UnrecognizedCommand},
		{`{"x":{"yvm":1}}`, status.UnrecognizedCommand},
		{`{"x":5}`, status.JSONSyntaxError},
		{`{"gc":5}`, status.JSONSyntaxError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			out, sc := h.json(t, tt.in)
			assert.Equal(t, tt.want, sc)
			assert.Equal(t, int64(tt.want), gjson.Get(out, "st").Int())
			assert.Equal(t, tt.want.Message(), gjson.Get(out, "msg").String())
		})
	}

	out, _ := h.json(t, `{bad`)
	assert.Equal(t, `{"r":{},"st":17,"msg":"JSON syntax error"}`, out)
}

func TestJSONStopsAtFirstFailure(t *testing.T) {
	h := newHarness()
	_, sc := h.json(t, `{"xvm":-1,"yvm":500}`)
	assert.Equal(t, status.NumberRangeError, sc)
	assert.Equal(t, 16000.0, h.m.Limits(machine.AxisY).VelocityMax)
}

func TestJSONKeysIgnoreCaseAndBlanks(t *testing.T) {
	h := newHarness()
	out, sc := h.json(t, `{"  XFR  ":null}`)
	require.Equal(t, status.OK, sc)
	assert.Equal(t, `{"r":{"xfr":16000},"st":0,"msg":"OK"}`, out)

	out, sc = h.json(t, `{" y ":{" VM ":700}}`)
	require.Equal(t, status.OK, sc)
	assert.Equal(t, 700.0, gjson.Get(out, "r.y.yvm").Float())
	assert.Equal(t, 700.0, h.m.Limits(machine.AxisY).VelocityMax)
}

func TestJSONResponseBuildFailure(t *testing.T) {
	h := newHarness()
	r, sc := h.s.put(`{"xvm":1}`, "", 2, false)
	assert.Equal(t, status.InternalError, sc)
	assert.Equal(t, `{"xvm":1}`, r)

	r, sc = h.s.put(`{}`, "sr", `{"posx":0}`, true)
	require.Equal(t, status.OK, sc)
	assert.Equal(t, `{"sr":{"posx":0}}`, r)
}
