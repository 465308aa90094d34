package xio

import (
	"io"
	"strings"
	"sync"

	"tinyg-go/pkg/status"
)

// Program plays back a fixed list of lines, like a file held in program
// memory. It is read-only and reports status.EOF after the last line.
type Program struct {
	name  string
	lines []string
	pos   int
}

// NewProgram returns a device that yields lines in order.
func NewProgram(name string, lines []string) *Program {
	return &Program{name: name, lines: append([]string(nil), lines...)}
}

// NewProgramText splits text on newlines into a Program.
func NewProgramText(name, text string) *Program {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return NewProgram(name, nil)
	}
	return NewProgram(name, strings.Split(text, "\n"))
}

func (p *Program) ID() DeviceID { return DevPGM }
func (p *Program) Flags() Flags { return FlagReadable | FlagFileLike }

// Name is the script name the program was opened from.
func (p *Program) Name() string { return p.name }

// Remaining is the number of lines not yet read.
func (p *Program) Remaining() int { return len(p.lines) - p.pos }

// ReadLine implements Device. A program never returns Eagain.
func (p *Program) ReadLine() (string, status.Code) {
	if p.pos >= len(p.lines) {
		return "", status.EOF
	}
	line := p.lines[p.pos]
	p.pos++
	return line, status.OK
}

func (p *Program) Write([]byte) (int, error) { return 0, ErrNotWritable }
func (p *Program) TxQueueDepth() int         { return 0 }

// Close discards the rest of the program.
func (p *Program) Close() error {
	p.pos = len(p.lines)
	return nil
}

// ErrorOut is the write-only error device. It can never be read.
type ErrorOut struct {
	mu sync.Mutex
	w  io.Writer
}

// NewErrorOut wraps w, normally os.Stderr.
func NewErrorOut(w io.Writer) *ErrorOut {
	return &ErrorOut{w: w}
}

func (e *ErrorOut) ID() DeviceID { return DevStdError }
func (e *ErrorOut) Flags() Flags { return FlagWritable }

func (e *ErrorOut) ReadLine() (string, status.Code) {
	return "", status.NoSuchDevice
}

func (e *ErrorOut) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w.Write(p)
}

func (e *ErrorOut) TxQueueDepth() int { return 0 }
func (e *ErrorOut) Close() error      { return nil }
