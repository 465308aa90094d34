package settings

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"tinyg-go/pkg/status"
)

// ParseJSON runs one JSON command object and writes the response
// {"r":{...},"st":<code>,"msg":"<message>"} to out.
//
// Each member is handled in order until one fails. Keys are matched
// without case and without surrounding blanks:
//
//	{"xvm":null}           query, "" works as well
//	{"xvm":1200}           set
//	{"x":null}             query a group
//	{"x":{"vm":1200}}      set within a group
//	{"gc":"g0 x10"}        run G-code ("gcode" is accepted too)
//	{"sr":""}              status report
func (s *Settings) ParseJSON(line string, out *bytes.Buffer) status.Code {
	in := strings.TrimSpace(line)
	r := "{}"
	sc := status.OK
	switch {
	case !gjson.Valid(in):
		sc = status.JSONSyntaxError
	default:
		obj := gjson.Parse(in)
		if !obj.IsObject() {
			sc = status.JSONSyntaxError
			break
		}
		obj.ForEach(func(k, v gjson.Result) bool {
			r, sc = s.member(r, normalizeKey(k), v)
			return sc == status.OK
		})
	}
	out.WriteString(s.response(r, sc))
	return sc
}

func (s *Settings) response(r string, sc status.Code) string {
	js, err := sjson.SetRaw("{}", "r", r)
	if err == nil {
		js, err = sjson.Set(js, "st", int(sc))
	}
	if err == nil {
		js, err = sjson.Set(js, "msg", sc.Message())
	}
	if err != nil {
		s.log.WithError(err).Error("cannot build JSON response")
		return `{"r":{},"st":` + strconv.Itoa(int(status.InternalError)) + `,"msg":"` + status.InternalError.Message() + `"}`
	}
	return js
}

func normalizeKey(k gjson.Result) string {
	return strings.ToLower(strings.TrimSpace(k.String()))
}

// put sets path in r to v, or to the raw JSON v when raw is true. A
// failure leaves r as it was and reports status.InternalError.
func (s *Settings) put(r, path string, v any, raw bool) (string, status.Code) {
	var (
		out string
		err error
	)
	if raw {
		out, err = sjson.SetRaw(r, path, v.(string))
	} else {
		out, err = sjson.Set(r, path, v)
	}
	if err != nil {
		s.log.WithError(err).WithField("path", path).Error("cannot build JSON response")
		return r, status.InternalError
	}
	return out, status.OK
}

func isQuery(v gjson.Result) bool {
	return v.Type == gjson.Null || (v.Type == gjson.String && v.Str == "")
}

func (s *Settings) member(r, key string, v gjson.Result) (string, status.Code) {
	switch {
	case key == "gc" || key == "gcode":
		if v.Type != gjson.String {
			return r, status.JSONSyntaxError
		}
		if s.gc == nil {
			return r, status.UnrecognizedCommand
		}
		var sc status.Code
		if r, sc = s.put(r, key, v.Str, false); sc != status.OK {
			return r, sc
		}
		sc = s.gc.ParseGCode(v.Str)
		if sc == status.Noop {
			sc = status.OK
		}
		return r, sc
	case key == "sr":
		return s.put(r, "sr", s.m.StatusJSON(), true)
	case s.isGroup(key):
		return s.groupMember(r, key, v)
	}
	t, ok := s.byName[key]
	if !ok {
		return r, status.UnrecognizedCommand
	}
	if !isQuery(v) {
		if sc := s.setJSON(t, v); sc != status.OK {
			return r, sc
		}
	}
	return s.put(r, t.name, t.value(), false)
}

func (s *Settings) groupMember(r, group string, v gjson.Result) (string, status.Code) {
	ts := s.group(group)
	switch {
	case isQuery(v):
	case v.IsObject():
		sc := status.OK
		v.ForEach(func(k, mv gjson.Result) bool {
			name := normalizeKey(k)
			t, ok := s.byName[name]
			if !ok || t.group != group {
				t, ok = s.byName[group+name]
			}
			if !ok || t.group != group {
				sc = status.UnrecognizedCommand
				return false
			}
			sc = s.setJSON(t, mv)
			return sc == status.OK
		})
		if sc != status.OK {
			return r, sc
		}
	default:
		return r, status.JSONSyntaxError
	}
	for _, t := range ts {
		var sc status.Code
		if r, sc = s.put(r, group+"."+t.name, t.value(), false); sc != status.OK {
			return r, sc
		}
	}
	return r, status.OK
}

func (s *Settings) setJSON(t *token, v gjson.Result) status.Code {
	switch v.Type {
	case gjson.Number:
		return s.set(t, v.Num)
	case gjson.True:
		return s.set(t, 1)
	case gjson.False:
		return s.set(t, 0)
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return status.BadNumberFormat
		}
		return s.set(t, f)
	}
	return status.JSONSyntaxError
}
