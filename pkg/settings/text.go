package settings

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"tinyg-go/pkg/status"
)

// ParseConfig runs one '$' or '?' line.
//
//	?             status report
//	$             list the sys group
//	$$            list everything
//	$<group>      list a group (sys, x, y, z, a)
//	$<token>      show one setting
//	$<token>=<v>  set and show; a space works in place of '='
func (s *Settings) ParseConfig(line string) status.Code {
	line = strings.TrimSpace(line)
	if line == "" {
		return status.Noop
	}
	w := s.output()
	if line[0] == '?' {
		if err := s.m.WriteStatusReport(w, s.reportFormat()); err != nil {
			s.log.WithError(err).Warn("status report not sent")
		}
		return status.OK
	}
	if line[0] != '$' {
		return status.UnrecognizedCommand
	}
	body := strings.ToLower(strings.TrimSpace(line[1:]))
	switch body {
	case "":
		s.printTokens(w, s.group(groupSys))
		return status.OK
	case "$":
		s.printTokens(w, s.tokens)
		return status.OK
	}

	name, value, hasValue := splitAssignment(body)
	if !hasValue {
		if s.isGroup(name) {
			s.printTokens(w, s.group(name))
			return status.OK
		}
		t, ok := s.byName[name]
		if !ok {
			return status.UnrecognizedCommand
		}
		s.printTokens(w, []*token{t})
		return status.OK
	}

	t, ok := s.byName[name]
	if !ok {
		return status.UnrecognizedCommand
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return status.BadNumberFormat
	}
	if sc := s.set(t, v); sc != status.OK {
		return sc
	}
	s.printTokens(w, []*token{t})
	return status.OK
}

func splitAssignment(body string) (name, value string, ok bool) {
	if i := strings.IndexAny(body, "= \t"); i >= 0 {
		name = strings.TrimSpace(body[:i])
		value = strings.TrimLeft(strings.TrimSpace(body[i:]), "=")
		return name, strings.TrimSpace(value), true
	}
	return body, "", false
}

func (s *Settings) printTokens(w io.Writer, ts []*token) {
	var b strings.Builder
	for _, t := range ts {
		v := strconv.FormatFloat(t.value(), 'f', t.digits, 64)
		fmt.Fprintf(&b, "%-6s %-26s %12s", "["+t.name+"]", t.label, v)
		if t.unit != "" {
			b.WriteString(" " + t.unit)
		}
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		s.log.WithError(err).Warn("settings listing not sent")
	}
}
