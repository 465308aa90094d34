package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	cerrors "tinyg-go/pkg/errors"
)

var errNotBool = errors.New("expected one of 1, true, yes, on, 0, false, no, off")

// Section is one [name] block. Reads are recorded so that options nobody
// asked for can be reported.
type Section struct {
	name   string
	values map[string]string

	mu   sync.Mutex
	read map[string]bool
}

func newSection(name string, options map[string]string) *Section {
	s := &Section{
		name:   name,
		values: make(map[string]string, len(options)),
		read:   make(map[string]bool),
	}
	for k, v := range options {
		s.values[strings.ToLower(k)] = v
	}
	return s
}

// Name returns the section header without brackets.
func (s *Section) Name() string { return s.name }

// HasOption reports whether option is set, without marking it read.
func (s *Section) HasOption(option string) bool {
	_, ok := s.values[strings.ToLower(option)]
	return ok
}

func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	s.mu.Lock()
	s.read[key] = true
	s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// UnusedOptions returns, sorted, the options that were never read.
func (s *Section) UnusedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var unused []string
	for k := range s.values {
		if !s.read[k] {
			unused = append(unused, k)
		}
	}
	sort.Strings(unused)
	return unused
}

// typed reads option through parse. A missing option yields the first
// fallback, or an option error when none was given.
func typed[T any](s *Section, option, kind string, parse func(string) (T, error), fallback []T) (T, error) {
	var zero T
	raw, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return zero, cerrors.ConfigOptionError(s.name, option)
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return zero, cerrors.ConfigTypeError(s.name, option, raw, kind, err)
	}
	return v, nil
}

func (s *Section) outOfRange(option, reason string) error {
	return cerrors.ConfigValidationError(s.name, option, reason)
}

// Get returns the raw value.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	return typed(s, option, "string", func(v string) (string, error) { return v, nil }, fallback)
}

// GetInt parses a decimal integer.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	return typed(s, option, "integer", strconv.Atoi, fallback)
}

// GetIntRange is GetInt limited to [min, max].
func (s *Section) GetIntRange(option string, min, max int, fallback ...int) (int, error) {
	v, err := s.GetInt(option, fallback...)
	if err == nil && (v < min || v > max) {
		err = s.outOfRange(option, fmt.Sprintf("value %d must be between %d and %d", v, min, max))
	}
	return v, err
}

// GetFloat parses a float.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	return typed(s, option, "float", func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	}, fallback)
}

// GetPositiveFloat is GetFloat limited to values above zero.
func (s *Section) GetPositiveFloat(option string, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err == nil && v <= 0 {
		err = s.outOfRange(option, fmt.Sprintf("value %v must be above 0", v))
	}
	return v, err
}

// GetBool accepts 1/true/yes/on and 0/false/no/off in any case.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	return typed(s, option, "boolean", func(v string) (bool, error) {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
		return false, errNotBool
	}, fallback)
}

// GetChoice returns the entry of choices the value matches, ignoring case.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(strings.TrimSpace(v), c) {
			return c, nil
		}
	}
	return "", s.outOfRange(option,
		fmt.Sprintf("'%s' is not a valid choice (valid: %s)", v, strings.Join(choices, ", ")))
}

// GetDurationMs reads a non-negative whole number of milliseconds.
func (s *Section) GetDurationMs(option string, fallback ...time.Duration) (time.Duration, error) {
	d, err := typed(s, option, "milliseconds", func(v string) (time.Duration, error) {
		ms, err := strconv.Atoi(v)
		return time.Duration(ms) * time.Millisecond, err
	}, fallback)
	if err == nil && d < 0 {
		err = s.outOfRange(option, "duration must not be negative")
	}
	return d, err
}

// GetList splits the value on sep and drops empty items.
func (s *Section) GetList(option, sep string, fallback ...[]string) ([]string, error) {
	return typed(s, option, "list", func(v string) ([]string, error) {
		var items []string
		for _, p := range strings.Split(v, sep) {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		return items, nil
	}, fallback)
}

// RawOptions copies the option map.
func (s *Section) RawOptions() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
