package controller

import (
	"github.com/tidwall/sjson"

	"tinyg-go/pkg/status"
)

// Envelope is the JSON-mode answer to a G-code line, as an ordered value
// sequence: group marker, echoed block, status code, status message.
type Envelope struct {
	Group   string
	Block   string
	Status  int
	Message string
}

// GCodeEnvelope wraps the result of running block.
func GCodeEnvelope(sc status.Code, block string) Envelope {
	return Envelope{
		Group:   "gc",
		Block:   block,
		Status:  int(sc),
		Message: sc.Message(),
	}
}

// EnvelopeSerializer renders an envelope. It owns the field names and
// nesting.
type EnvelopeSerializer interface {
	Serialize(e Envelope) (string, error)
}

// JSONSerializer renders {"<group>":{"gc":"<block>","st":<n>,"msg":"<m>"}}.
type JSONSerializer struct{}

// Serialize implements EnvelopeSerializer.
func (JSONSerializer) Serialize(e Envelope) (string, error) {
	fields := []struct {
		key   string
		value any
	}{
		{"gc", e.Block},
		{"st", e.Status},
		{"msg", e.Message},
	}
	js := "{}"
	var err error
	for _, f := range fields {
		if js, err = sjson.Set(js, e.Group+"."+f.key, f.value); err != nil {
			return "", err
		}
	}
	return js, nil
}

// statusResponse is the JSON answer to input that never reached a parser,
// in the shape the JSON parser uses: {"r":{},"st":<n>,"msg":"<m>"}.
func statusResponse(sc status.Code) (string, error) {
	sc = status.Normalize(sc)
	js, err := sjson.SetRaw("{}", "r", "{}")
	if err == nil {
		js, err = sjson.Set(js, "st", int(sc))
	}
	if err == nil {
		js, err = sjson.Set(js, "msg", sc.Message())
	}
	return js, err
}
