// Package config reads the controller's INI-style configuration file.
//
// Sections are introduced by [name]; options are "key: value" or
// "key = value"; '#' starts a comment. [include glob] pulls in other files
// relative to the including file. Option access is tracked so unknown
// options can be reported after startup.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cerrors "tinyg-go/pkg/errors"
)

// Config is a parsed configuration file. It is built once at startup and
// then only read.
type Config struct {
	sections map[string]*Section
	order    []string
	looked   map[string]bool
}

// New returns an empty Config.
func New() *Config {
	return &Config{
		sections: make(map[string]*Section),
		looked:   make(map[string]bool),
	}
}

// Load reads path and everything it includes.
func Load(path string) (*Config, error) {
	c := New()
	ld := &loader{cfg: c, active: map[string]bool{}}
	if err := ld.file(path); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses configuration text. Includes resolve against the
// working directory.
func LoadString(data string) (*Config, error) {
	c := New()
	ld := &loader{cfg: c, active: map[string]bool{}}
	if err := ld.read(strings.NewReader(data), "<string>", "."); err != nil {
		return nil, err
	}
	return c, nil
}

// loader carries the include stack while files are read.
type loader struct {
	cfg    *Config
	active map[string]bool
}

func (ld *loader) file(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrConfigValidation, "invalid path "+path)
	}
	if ld.active[abs] {
		return cerrors.New(cerrors.ErrConfigValidation, "recursive include: "+path)
	}
	f, err := os.Open(abs)
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrConfigValidation, "unable to open "+path)
	}
	defer f.Close()

	ld.active[abs] = true
	defer delete(ld.active, abs)
	return ld.read(f, path, filepath.Dir(abs))
}

func (ld *loader) read(r io.Reader, name, dir string) error {
	var (
		header string
		opts   map[string]string
		n      int
	)
	at := func() string { return fmt.Sprintf("line %d in %s", n, name) }
	end := func() {
		if header != "" {
			ld.cfg.addSection(header, opts)
		}
		header, opts = "", nil
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		n++
		line, _, _ := strings.Cut(sc.Text(), "#")
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case line[0] == '[' && line[len(line)-1] == ']':
			end()
			h := strings.TrimSpace(line[1 : len(line)-1])
			if h == "" {
				return cerrors.New(cerrors.ErrConfigSection, "empty section header at "+at())
			}
			if glob, ok := strings.CutPrefix(h, "include "); ok {
				if err := ld.include(strings.TrimSpace(glob), dir); err != nil {
					return err
				}
				continue
			}
			header, opts = h, map[string]string{}
		case header == "":
			// options before the first header belong to nothing
		default:
			key, value, ok := splitOption(line)
			if !ok {
				return cerrors.New(cerrors.ErrConfigOption,
					fmt.Sprintf("malformed option at %s: %q", at(), line))
			}
			opts[key] = value
		}
	}
	if err := sc.Err(); err != nil {
		return cerrors.Wrap(err, cerrors.ErrConfigValidation, "error reading "+name)
	}
	end()
	return nil
}

// splitOption splits at the first ':' or '=', so a value may contain
// the other one.
func splitOption(line string) (key, value string, ok bool) {
	i := strings.IndexAny(line, ":=")
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	return key, strings.TrimSpace(line[i+1:]), key != ""
}

func (ld *loader) include(pattern, dir string) error {
	if pattern == "" {
		return cerrors.New(cerrors.ErrConfigValidation, "empty include")
	}
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrConfigValidation, "invalid include pattern "+pattern)
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		return cerrors.New(cerrors.ErrConfigValidation, "include file does not exist: "+pattern)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if err := ld.file(m); err != nil {
			return err
		}
	}
	return nil
}

// addSection records a section; a repeated header adds to the first one.
func (c *Config) addSection(name string, options map[string]string) {
	if sec, ok := c.sections[name]; ok {
		for k, v := range options {
			sec.values[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns the named section or a section error.
func (c *Config) GetSection(name string) (*Section, error) {
	if sec := c.GetSectionOptional(name); sec != nil {
		return sec, nil
	}
	return nil, cerrors.ConfigSectionError(name)
}

// GetSectionOptional returns the named section or nil.
func (c *Config) GetSectionOptional(name string) *Section {
	sec, ok := c.sections[name]
	if ok {
		c.looked[name] = true
	}
	return sec
}

// HasSection reports whether name was defined, without marking it used.
func (c *Config) HasSection(name string) bool {
	_, ok := c.sections[name]
	return ok
}

// SectionNames lists the sections in file order.
func (c *Config) SectionNames() []string {
	return append([]string(nil), c.order...)
}

// GetPrefixSections returns, in file order, every section whose name
// starts with prefix.
func (c *Config) GetPrefixSections(prefix string) []*Section {
	var out []*Section
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			c.looked[name] = true
			out = append(out, c.sections[name])
		}
	}
	return out
}

// Unused lists sections never looked up as "section" and options never
// read as "section.option".
func (c *Config) Unused() []string {
	var out []string
	for _, name := range c.order {
		if !c.looked[name] {
			out = append(out, name)
			continue
		}
		for _, opt := range c.sections[name].UnusedOptions() {
			out = append(out, name+"."+opt)
		}
	}
	return out
}

// Merge copies other's sections into c; other's values win.
func (c *Config) Merge(other *Config) {
	for _, name := range other.order {
		c.addSection(name, other.sections[name].RawOptions())
	}
}
