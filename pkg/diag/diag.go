// Package diag is the catalog of diagnostic scripts: canned command
// sequences that run from program memory in place of the console.
//
// The built-in catalog is embedded; a YAML file in the same format can add
// scripts or replace built-in ones by name.
package diag

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	cerrors "tinyg-go/pkg/errors"
	"tinyg-go/pkg/xio"
)

//go:embed defaults/scripts.yaml
var defaultsFS embed.FS

// Script is one named command sequence.
type Script struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Lines       []string `yaml:"lines"`
}

type catalogFile struct {
	Scripts []Script `yaml:"scripts"`
}

// Catalog holds scripts by upper-cased name.
type Catalog struct {
	scripts map[string]Script
}

// Parse reads a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scripts: %w", err)
	}
	c := &Catalog{scripts: make(map[string]Script, len(f.Scripts))}
	for i, s := range f.Scripts {
		name := strings.ToUpper(strings.TrimSpace(s.Name))
		if name == "" {
			return nil, fmt.Errorf("parse scripts: script %d has no name", i)
		}
		if _, dup := c.scripts[name]; dup {
			return nil, fmt.Errorf("parse scripts: duplicate script %q", name)
		}
		s.Name = name
		c.scripts[name] = s
	}
	return c, nil
}

// Builtin returns the embedded catalog.
func Builtin() (*Catalog, error) {
	data, err := defaultsFS.ReadFile("defaults/scripts.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded scripts: %w", err)
	}
	return Parse(data)
}

// Load returns the built-in catalog merged with the file at path. An empty
// path yields the built-in catalog alone.
func Load(path string) (*Catalog, error) {
	c, err := Builtin()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied file
	if err != nil {
		return nil, cerrors.ScriptLoadError(path, err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, cerrors.ScriptLoadError(path, err)
	}
	c.Merge(extra)
	return c, nil
}

// Merge adds every script of o, replacing scripts with the same name.
func (c *Catalog) Merge(o *Catalog) {
	for name, s := range o.scripts {
		c.scripts[name] = s
	}
}

// Names returns the script names in order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.scripts))
	for name := range c.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get looks a script up by name, ignoring case.
func (c *Catalog) Get(name string) (Script, bool) {
	s, ok := c.scripts[strings.ToUpper(strings.TrimSpace(name))]
	return s, ok
}

// OpenScript opens a script as a program device.
func (c *Catalog) OpenScript(name string) (xio.Device, error) {
	s, ok := c.Get(name)
	if !ok {
		return nil, cerrors.ScriptNotFoundError(name)
	}
	return xio.NewProgram(s.Name, s.Lines), nil
}
