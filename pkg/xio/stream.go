package xio

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"tinyg-go/pkg/log"
	"tinyg-go/pkg/status"
)

const (
	readChunk     = 256
	feedDepth     = 64
	txQueueChunks = 1024
)

// StreamConfig configures a Stream device.
type StreamConfig struct {
	// LineBuffer is the line capacity including the terminator.
	LineBuffer int

	// Intercept sees every input byte on the reader goroutine; bytes it
	// consumes never reach a line. See sig.Flags.Intercept.
	Intercept func(byte) bool

	// Notify is called after each chunk of input arrives.
	Notify func()

	// OutQueue reports bytes still held below the writer, such as a
	// tty's kernel output queue.
	OutQueue func() int

	Interactive bool
}

// Stream is a line device over an io.Reader and an io.Writer, pumped by
// its own reader and writer goroutines.
type Stream struct {
	id     DeviceID
	flags  Flags
	lines  *LineReader
	w      io.Writer
	cfg    StreamConfig
	logger *log.Logger

	txq    chan []byte
	queued atomic.Int64
	werr   atomic.Value

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	closers   []io.Closer
}

// NewStream starts a device reading r and writing w. Either may be nil.
// closers are closed by Close after the goroutines are told to stop.
func NewStream(id DeviceID, r io.Reader, w io.Writer, cfg StreamConfig, closers ...io.Closer) *Stream {
	s := &Stream{
		id:      id,
		w:       w,
		cfg:     cfg,
		logger:  log.GetLogger("xio." + id.String()),
		txq:     make(chan []byte, txQueueChunks),
		closing: make(chan struct{}),
		closers: closers,
	}
	feed := make(chan []byte, feedDepth)
	s.lines = NewLineReader(feed, cfg.LineBuffer)

	if r != nil {
		s.flags |= FlagReadable
		raw := make(chan []byte, feedDepth)
		go relay(raw, feed, s.closing)
		go s.readLoop(r, raw)
	} else {
		close(feed)
	}
	if w != nil {
		s.flags |= FlagWritable
		s.wg.Add(1)
		go s.writeLoop()
	}
	if cfg.Interactive {
		s.flags |= FlagInteractive
	}
	return s
}

func (s *Stream) ID() DeviceID { return s.id }
func (s *Stream) Flags() Flags { return s.flags }

// ReadLine implements Device.
func (s *Stream) ReadLine() (string, status.Code) {
	if !s.flags.Has(FlagReadable) {
		return "", status.NoSuchDevice
	}
	return s.lines.ReadLine()
}

// Preload queues canned input ahead of anything received.
func (s *Stream) Preload(text string) { s.lines.Preload(text) }

// Drained is closed once input has ended and every line has been read.
func (s *Stream) Drained() <-chan struct{} { return s.lines.Drained() }

// readLoop raises realtime characters as soon as they are read, ahead of
// any line still waiting in the feed.
func (s *Stream) readLoop(r io.Reader, feed chan<- []byte) {
	defer close(feed)
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := stripRealtime(append([]byte(nil), buf[:n]...), s.cfg.Intercept)
			if len(chunk) > 0 {
				select {
				case feed <- chunk:
				case <-s.closing:
					return
				}
			}
			if s.cfg.Notify != nil {
				s.cfg.Notify()
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.WithError(err).Warn("read failed")
			}
			if s.cfg.Notify != nil {
				s.cfg.Notify()
			}
			return
		}
		select {
		case <-s.closing:
			return
		default:
		}
	}
}

// Write queues p for the writer goroutine. It blocks only when the
// queue holds txQueueChunks writes.
func (s *Stream) Write(p []byte) (int, error) {
	if !s.flags.Has(FlagWritable) {
		return 0, ErrNotWritable
	}
	if err, _ := s.werr.Load().(error); err != nil {
		return 0, err
	}
	select {
	case <-s.closing:
		return 0, io.ErrClosedPipe
	default:
	}
	chunk := append([]byte(nil), p...)
	s.queued.Add(int64(len(chunk)))
	select {
	case s.txq <- chunk:
		return len(p), nil
	case <-s.closing:
		s.queued.Add(-int64(len(chunk)))
		return 0, io.ErrClosedPipe
	}
}

func (s *Stream) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.txq:
			s.deliver(chunk)
		case <-s.closing:
			for {
				select {
				case chunk := <-s.txq:
					s.deliver(chunk)
				default:
					return
				}
			}
		}
	}
}

func (s *Stream) deliver(chunk []byte) {
	if _, err := s.w.Write(chunk); err != nil {
		if s.werr.Load() == nil {
			s.logger.WithError(err).Warn("write failed")
			s.werr.Store(err)
		}
	}
	s.queued.Add(-int64(len(chunk)))
}

// TxQueueDepth implements Device.
func (s *Stream) TxQueueDepth() int {
	n := int(s.queued.Load())
	if s.cfg.OutQueue != nil {
		n += s.cfg.OutQueue()
	}
	return n
}

// Flush waits until every queued byte has been handed to the writer.
func (s *Stream) Flush(ctx context.Context) error {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for s.queued.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Close stops the goroutines, delivering output already queued.
func (s *Stream) Close() error {
	var first error
	s.closeOnce.Do(func() {
		close(s.closing)
		s.wg.Wait()
		for _, c := range s.closers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
