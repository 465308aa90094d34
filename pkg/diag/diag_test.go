package diag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyg-go/pkg/config"
	cerrors "tinyg-go/pkg/errors"
	"tinyg-go/pkg/gcode"
	"tinyg-go/pkg/machine"
	"tinyg-go/pkg/status"
	"tinyg-go/pkg/xio"
)

func readAll(t *testing.T, d xio.Device) []string {
	t.Helper()
	var lines []string
	for {
		line, sc := d.ReadLine()
		if sc == status.EOF {
			return lines
		}
		require.Equal(t, status.OK, sc)
		lines = append(lines, line)
	}
}

func TestBuiltin(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, []string{"T", "U"}, c.Names())

	s, ok := c.Get("u")
	require.True(t, ok)
	assert.NotEmpty(t, s.Description)
	assert.Equal(t, "m30", s.Lines[len(s.Lines)-1])
}

func TestOpenScript(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	d, err := c.OpenScript("t")
	require.NoError(t, err)
	assert.Equal(t, xio.DevPGM, d.ID())
	assert.True(t, d.Flags().Has(xio.FlagFileLike))

	s, _ := c.Get("T")
	assert.Equal(t, s.Lines, readAll(t, d))

	_, err = c.OpenScript("Q")
	require.Error(t, err)
	assert.True(t, cerrors.IsScript(err))
}

func TestSystemTestsRun(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)
	s, _ := c.Get("T")

	p := gcode.New(machine.New(machine.ConfigFrom(config.Default())))
	for _, line := range s.Lines {
		if line == "?" {
			continue
		}
		sc := p.ParseGCode(line)
		assert.True(t, sc == status.OK || sc == status.Noop, "%q: %v", line, sc)
	}
}

func TestLoadMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scripts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scripts:
  - name: u
    description: replaced
    lines: [g0 x1]
  - name: v
    lines:
      - g0 x2
      - g0 x3
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"T", "U", "V"}, c.Names())

	u, _ := c.Get("U")
	assert.Equal(t, "replaced", u.Description)
	assert.Equal(t, []string{"g0 x1"}, u.Lines)

	d, err := c.OpenScript("v")
	require.NoError(t, err)
	assert.Equal(t, []string{"g0 x2", "g0 x3"}, readAll(t, d))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, cerrors.IsScript(err))

	dir := t.TempDir()
	for name, body := range map[string]string{
		"bad.yaml":    "scripts: [",
		"noname.yaml": "scripts:\n  - lines: [g0]\n",
		"dup.yaml":    "scripts:\n  - name: a\n  - name: A\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Len(t, c.Names(), 2)
}
