package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestScriptsCommand(t *testing.T) {
	out, err := execute(t, "scripts")
	require.NoError(t, err)
	assert.Contains(t, out, "t    system tests")
	assert.Contains(t, out, "u    motion tests")

	out, err = execute(t, "scripts", "U")
	require.NoError(t, err)
	assert.Contains(t, out, "       g28 x5 y5\n")

	_, err = execute(t, "scripts", "q")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tinyg-go version 0.93 (build 331.24)")
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinyg.cfg")
	require.NoError(t, os.WriteFile(path, []byte("[controller]\ncommunications_mode: json\n[usb]\nbaud: 9600\n"), 0o600))

	require.NoError(t, runCmd.Flags().Set("baud", "57600"))
	require.NoError(t, runCmd.Flags().Set("metrics", ":9100"))
	t.Cleanup(func() {
		runCmd.Flags().Lookup("baud").Changed = false
		runCmd.Flags().Lookup("metrics").Changed = false
	})

	cfg, err := loadConfig(runCmd, path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.CommunicationsMode)
	assert.Equal(t, 57600, cfg.USB.Baud)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)

	cfg, err = loadConfig(nil, path)
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.USB.Baud)
}

func TestJSONCommand(t *testing.T) {
	out, err := execute(t, "json", `{"xvm":null}`)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"r\": {\n    \"xvm\": 16000\n  },\n  \"st\": 0,\n  \"msg\": \"OK\"\n}\n", out)

	t.Cleanup(func() { jsonCompact = false })
	out, err = execute(t, "json", "--compact", `{"xvm":1200}`, `{"x":null}`, `{"bad":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"r":{"xvm":1200},"st":0,"msg":"OK"}`+"\n"+
		`{"r":{"x":{"xvm":1200,"xfr":16000,"xtm":220}},"st":0,"msg":"OK"}`+"\n"+
		`{"r":{},"st":14,"msg":"Unrecognized command"}`+"\n", out)
}
