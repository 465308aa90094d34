package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageTable(t *testing.T) {
	assert.Equal(t, 32, int(Unknown), "table holds 32 codes before Unknown")
	for c := OK; c < Unknown; c++ {
		assert.NotEmpty(t, c.Message(), "code %d", c)
		assert.NotEqual(t, "Unknown status", c.Message(), "code %d", c)
	}

	tests := []struct {
		code Code
		want string
	}{
		{OK, "OK"},
		{Eagain, "Eagain"},
		{Noop, "Noop"},
		{EOF, "End of file"},
		{UnrecognizedCommand, "Unrecognized command"},
		{JSONSyntaxError, "JSON syntax error"},
		{InputExceedsMaxLength, "Input exceeds max length"},
		{GcodeAxisWordMissing, "Gcode axis word missing"},
		{MaxSpindleSpeedExceeded, "Max spindle speed exceeded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.Message())
		assert.Equal(t, tt.want, Message(int(tt.code)))
	}
}

func TestMessagesDistinct(t *testing.T) {
	seen := map[string]Code{}
	for c := OK; c <= Unknown; c++ {
		prev, dup := seen[c.Message()]
		assert.False(t, dup, "code %d repeats message of %d", c, prev)
		seen[c.Message()] = c
	}
}

func TestOutOfRange(t *testing.T) {
	for _, c := range []Code{Unknown, 33, 100, 255} {
		assert.Equal(t, "Unknown status", c.Message())
		assert.Equal(t, Unknown, Normalize(c))
		assert.False(t, c.Known())
	}
	assert.Equal(t, "Unknown status", Message(-1))
	assert.Equal(t, "Unknown status", Message(32))
	assert.Equal(t, "Unknown status", Message(1000))
}

func TestContinueAlias(t *testing.T) {
	assert.Equal(t, Eagain, Continue)
}

func TestPartitions(t *testing.T) {
	for _, c := range []Code{OK, Eagain, Noop} {
		assert.True(t, c.IsQuiet(), c.String())
		assert.False(t, c.IsError(), c.String())
	}
	for _, c := range []Code{Error, EOF, JSONSyntaxError, GcodeInputError, Unknown} {
		assert.False(t, c.IsQuiet(), c.String())
		assert.True(t, c.IsError(), c.String())
	}
	assert.Equal(t, CatSuccess, OK.Category())
	assert.Equal(t, CatScheduling, Eagain.Category())
	assert.Equal(t, CatIO, EOF.Category())
	assert.Equal(t, CatBuffer, BufferFullFatal.Category())
	assert.Equal(t, CatSyntax, JSONSyntaxError.Category())
	assert.Equal(t, CatSemantic, ArcSpecificationError.Category())
	assert.Equal(t, CatMotion, HomingCycleFailed.Category())
	assert.Equal(t, CatInternal, InternalError.Category())
	assert.Equal(t, CatInternal, Code(200).Category())
}

func TestErrorBridge(t *testing.T) {
	var err error = GcodeFeedrateError
	assert.Equal(t, "Gcode feedrate error", err.Error())
	assert.Equal(t, GcodeFeedrateError, From(err))
	assert.Equal(t, OK, From(nil))
	assert.Equal(t, InternalError, From(errors.New("boom")))
	assert.Equal(t, Unknown, From(Code(99)))
	assert.Equal(t, "OK (0)", OK.String())
}
