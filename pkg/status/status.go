// Package status defines the result codes shared by every task, parser and
// device in the controller, and their fixed message strings.
package status

import "strconv"

// Code is the outcome of a task run, a parser call or a device read.
type Code uint8

const (
	OK Code = iota
	Error
	Eagain // CONTINUE: the task is unfinished and keeps priority
	Noop
	Complete
	EOL
	EOF
	FileNotOpen
	FileSizeExceeded
	NoSuchDevice
	BufferEmpty
	BufferFullFatal
	BufferFullNonFatal
	Quit
	UnrecognizedCommand
	NumberRangeError
	ExpectedCommandLetter
	JSONSyntaxError
	InputExceedsMaxLength
	OutputExceedsMaxLength
	InternalError
	BadNumberFormat
	FloatingPointError
	ArcSpecificationError
	ZeroLengthLine
	GcodeInputError
	GcodeFeedrateError
	GcodeAxisWordMissing
	GcodeModalGroupViolation
	HomingCycleFailed
	MaxTravelExceeded
	MaxSpindleSpeedExceeded

	// Unknown is returned by Normalize for codes outside the table.
	Unknown
)

// Continue is the scheduling name for Eagain.
const Continue = Eagain

var messages = [...]string{
	OK:                       "OK",
	Error:                    "Error",
	Eagain:                   "Eagain",
	Noop:                     "Noop",
	Complete:                 "Complete",
	EOL:                      "End of line",
	EOF:                      "End of file",
	FileNotOpen:              "File not open",
	FileSizeExceeded:         "Max file size exceeded",
	NoSuchDevice:             "No such device",
	BufferEmpty:              "Buffer empty",
	BufferFullFatal:          "Buffer full - fatal",
	BufferFullNonFatal:       "Buffer full - non-fatal",
	Quit:                     "Quit",
	UnrecognizedCommand:      "Unrecognized command",
	NumberRangeError:         "Number range error",
	ExpectedCommandLetter:    "Expected command letter",
	JSONSyntaxError:          "JSON syntax error",
	InputExceedsMaxLength:    "Input exceeds max length",
	OutputExceedsMaxLength:   "Output exceeds max length",
	InternalError:            "Internal error",
	BadNumberFormat:          "Bad number format",
	FloatingPointError:       "Floating point error",
	ArcSpecificationError:    "Arc specification error",
	ZeroLengthLine:           "Zero length line",
	GcodeInputError:          "Gcode input error",
	GcodeFeedrateError:       "Gcode feedrate error",
	GcodeAxisWordMissing:     "Gcode axis word missing",
	GcodeModalGroupViolation: "Gcode modal group violation",
	HomingCycleFailed:        "Homing cycle failed",
	MaxTravelExceeded:        "Max travel exceeded",
	MaxSpindleSpeedExceeded:  "Max spindle speed exceeded",
	Unknown:                  "Unknown status",
}

// Known reports whether c has an entry in the message table.
func (c Code) Known() bool { return c < Unknown }

// Normalize maps any code outside the table to Unknown.
func Normalize(c Code) Code {
	if c.Known() {
		return c
	}
	return Unknown
}

// Message returns the fixed message for c, or "Unknown status".
func (c Code) Message() string {
	return messages[Normalize(c)]
}

// Message is the function form of Code.Message, for callers holding an int.
func Message(c int) string {
	if c < 0 || c >= int(Unknown) {
		return messages[Unknown]
	}
	return messages[c]
}

func (c Code) String() string {
	return c.Message() + " (" + strconv.Itoa(int(c)) + ")"
}

// Error lets a Code travel through error returns. OK is still an error
// value in that case, so callers should compare against nil, not OK.
func (c Code) Error() string { return c.Message() }

// IsQuiet reports the codes that the text emitter answers with a prompt
// only: OK, Eagain and Noop.
func (c Code) IsQuiet() bool {
	return c == OK || c == Eagain || c == Noop
}

// IsError reports every code that is not OK, Eagain, Noop, Complete or EOL.
func (c Code) IsError() bool {
	switch c {
	case OK, Eagain, Noop, Complete, EOL:
		return false
	}
	return true
}

// Category groups codes for metrics and logging.
type Category string

const (
	CatSuccess    Category = "success"
	CatScheduling Category = "scheduling"
	CatIO         Category = "io"
	CatBuffer     Category = "buffer"
	CatSyntax     Category = "syntax"
	CatSemantic   Category = "semantic"
	CatMotion     Category = "motion"
	CatInternal   Category = "internal"
)

// Category returns the group c belongs to. Unknown codes are internal.
func (c Code) Category() Category {
	switch c {
	case OK, Noop, Complete:
		return CatSuccess
	case Eagain, Quit:
		return CatScheduling
	case EOL, EOF, FileNotOpen, FileSizeExceeded, NoSuchDevice:
		return CatIO
	case BufferEmpty, BufferFullFatal, BufferFullNonFatal, InputExceedsMaxLength, OutputExceedsMaxLength:
		return CatBuffer
	case UnrecognizedCommand, ExpectedCommandLetter, JSONSyntaxError, BadNumberFormat, GcodeInputError:
		return CatSyntax
	case NumberRangeError, FloatingPointError, ArcSpecificationError, ZeroLengthLine,
		GcodeFeedrateError, GcodeAxisWordMissing, GcodeModalGroupViolation:
		return CatSemantic
	case HomingCycleFailed, MaxTravelExceeded, MaxSpindleSpeedExceeded:
		return CatMotion
	}
	return CatInternal
}

// From extracts a Code from an error. nil is OK, a Code is itself and any
// other error is InternalError.
func From(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return Normalize(c)
	}
	return InternalError
}
