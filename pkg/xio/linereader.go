package xio

import "tinyg-go/pkg/status"

// DefaultLineBuffer is the line capacity including the terminator.
const DefaultLineBuffer = 255

// LineReader assembles lines from chunks delivered on a channel. It is
// resumable: a partial line survives across ReadLine calls.
//
// CR, LF and CRLF all end a line. A line longer than the buffer reports
// status.InputExceedsMaxLength once and the rest of it is discarded.
// Realtime characters never get here: producers strip them from each
// chunk before it is fed.
type LineReader struct {
	feed     <-chan []byte
	pending  []byte
	buf      []byte
	max      int
	fileLike bool

	skipLF     bool
	discarding bool
	closed     bool
	drained    chan struct{}
}

// LineReaderOption configures a LineReader.
type LineReaderOption func(*LineReader)

// WithFileLike makes a closed feed report status.EOF instead of Eagain.
func WithFileLike() LineReaderOption {
	return func(r *LineReader) { r.fileLike = true }
}

// NewLineReader reads from feed with a line capacity of max bytes,
// terminator included.
func NewLineReader(feed <-chan []byte, max int, opts ...LineReaderOption) *LineReader {
	if max < 2 {
		max = DefaultLineBuffer
	}
	r := &LineReader{
		feed:    feed,
		max:     max,
		buf:     make([]byte, 0, max),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Drained is closed once the feed has closed and every buffered byte has
// been returned.
func (r *LineReader) Drained() <-chan struct{} { return r.drained }

// Preload queues text ahead of any input not yet read. It must be called
// from the goroutine that calls ReadLine.
func (r *LineReader) Preload(text string) {
	r.pending = append([]byte(text), r.pending...)
}

// ReadLine returns the next line without blocking.
func (r *LineReader) ReadLine() (string, status.Code) {
	for {
		if len(r.pending) == 0 {
			if r.closed {
				return r.finish()
			}
			select {
			case chunk, ok := <-r.feed:
				if !ok {
					r.closed = true
					continue
				}
				r.pending = chunk
			default:
				return "", status.Eagain
			}
		}

		for len(r.pending) > 0 {
			c := r.pending[0]
			r.pending = r.pending[1:]

			if c == '\n' && r.skipLF {
				r.skipLF = false
				continue
			}
			r.skipLF = false
			if c == '\r' || c == '\n' {
				r.skipLF = c == '\r'
				if r.discarding {
					r.discarding = false
					continue
				}
				line := string(r.buf)
				r.buf = r.buf[:0]
				return line, status.OK
			}
			if r.discarding {
				continue
			}
			if len(r.buf) >= r.max-1 {
				r.buf = r.buf[:0]
				r.discarding = true
				return "", status.InputExceedsMaxLength
			}
			r.buf = append(r.buf, c)
		}
	}
}

// finish flushes an unterminated last line, then reports the end of input.
func (r *LineReader) finish() (string, status.Code) {
	if len(r.buf) > 0 && !r.discarding {
		line := string(r.buf)
		r.buf = r.buf[:0]
		return line, status.OK
	}
	r.buf = r.buf[:0]
	r.discarding = false
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	if r.fileLike {
		return "", status.EOF
	}
	return "", status.Eagain
}
