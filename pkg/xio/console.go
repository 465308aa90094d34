package xio

import (
	"io"
	"os"

	"tinyg-go/pkg/log"
)

// ConsoleConfig configures the stdio console.
type ConsoleConfig struct {
	LineBuffer int
	Intercept  func(byte) bool
	Notify     func()

	// Cbreak puts a terminal on in into non-canonical mode for the life
	// of the device.
	Cbreak bool
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewConsole opens the interactive console on in and out, normally
// os.Stdin and os.Stdout. When out is a terminal its kernel output queue
// counts toward TxQueueDepth.
func NewConsole(in, out *os.File, cfg ConsoleConfig) *Stream {
	sc := StreamConfig{
		LineBuffer:  cfg.LineBuffer,
		Intercept:   cfg.Intercept,
		Notify:      cfg.Notify,
		Interactive: true,
	}

	var (
		r       io.Reader
		w       io.Writer
		closers []io.Closer
	)
	if out != nil {
		w = out
		if fd := int(out.Fd()); isTerminal(fd) {
			sc.OutQueue = func() int { return ttyOutQueue(fd) }
		}
	}
	if in != nil {
		r = in
		if fd := int(in.Fd()); cfg.Cbreak && isTerminal(fd) {
			restore, err := makeCbreak(fd)
			if err != nil {
				log.GetLogger("xio.usb").WithError(err).Warn("cannot set cbreak mode")
			} else {
				closers = append(closers, closerFunc(restore))
			}
		}
	}
	return NewStream(DevUSB, r, w, sc, closers...)
}
