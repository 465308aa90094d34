package xio

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyg-go/pkg/status"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func readLineEventually(t *testing.T, d Device) string {
	t.Helper()
	var line string
	require.Eventually(t, func() bool {
		var code status.Code
		line, code = d.ReadLine()
		return code == status.OK
	}, time.Second, time.Millisecond)
	return line
}

func TestParseDeviceID(t *testing.T) {
	id, err := ParseDeviceID(" USB ")
	require.NoError(t, err)
	assert.Equal(t, DevUSB, id)
	id, err = ParseDeviceID("net")
	require.NoError(t, err)
	assert.Equal(t, DevNet, id)
	_, err = ParseDeviceID("floppy")
	assert.Error(t, err)
	assert.Equal(t, "pgm", DevPGM.String())
	assert.Equal(t, "dev9", DeviceID(9).String())
}

func TestStreamReadWrite(t *testing.T) {
	var out syncBuffer
	notified := make(chan struct{}, 16)
	s := NewStream(DevUSB, strings.NewReader("g0 x1\n?\n"), &out, StreamConfig{
		Notify: func() {
			select {
			case notified <- struct{}{}:
			default:
			}
		},
	})
	defer s.Close()

	assert.True(t, s.Flags().Has(FlagReadable|FlagWritable))
	assert.Equal(t, "g0 x1", readLineEventually(t, s))
	assert.Equal(t, "?", readLineEventually(t, s))

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	_, err := io.WriteString(s, "tinyg[mm] ok> ")
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, "tinyg[mm] ok> ", out.String())
	assert.Equal(t, 0, s.TxQueueDepth())

	require.Eventually(t, func() bool {
		_, code := s.ReadLine()
		select {
		case <-s.Drained():
			return code == status.Eagain
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

type blockingWriter struct {
	release chan struct{}
	buf     syncBuffer
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	return w.buf.Write(p)
}

func TestStreamTxQueueDepth(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	s := NewStream(DevUSB, nil, w, StreamConfig{OutQueue: func() int { return 3 }})

	_, err := s.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = s.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 16, s.TxQueueDepth(), "queued bytes plus the kernel queue")

	close(w.release)
	require.Eventually(t, func() bool { return s.TxQueueDepth() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, s.Close())
	assert.Equal(t, "0123456789abc", w.buf.String())

	_, err = s.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestStreamWriteOnly(t *testing.T) {
	s := NewStream(DevUSB, nil, io.Discard, StreamConfig{})
	defer s.Close()
	_, code := s.ReadLine()
	assert.Equal(t, status.NoSuchDevice, code)
}

func TestProgram(t *testing.T) {
	p := NewProgramText("T", "g0 x1\r\ng0 x0\n")
	assert.Equal(t, DevPGM, p.ID())
	assert.True(t, p.Flags().Has(FlagFileLike))
	assert.False(t, p.Flags().Has(FlagWritable))
	assert.Equal(t, 2, p.Remaining())

	line, code := p.ReadLine()
	assert.Equal(t, "g0 x1", line)
	assert.Equal(t, status.OK, code)
	line, _ = p.ReadLine()
	assert.Equal(t, "g0 x0", line)
	_, code = p.ReadLine()
	assert.Equal(t, status.EOF, code)

	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotWritable)

	q := NewProgram("U", []string{"a", "b"})
	require.NoError(t, q.Close())
	_, code = q.ReadLine()
	assert.Equal(t, status.EOF, code)
	assert.Equal(t, 0, NewProgramText("E", "").Remaining())
}

func TestErrorOut(t *testing.T) {
	var buf bytes.Buffer
	e := NewErrorOut(&buf)
	_, code := e.ReadLine()
	assert.Equal(t, status.NoSuchDevice, code)
	assert.False(t, e.Flags().Has(FlagReadable))
	io.WriteString(e, "End of command file\n")
	assert.Equal(t, "End of command file\n", buf.String())
}

func TestDevicesRegistry(t *testing.T) {
	ds := NewDevices()
	ds.Register(NewErrorOut(io.Discard))
	ds.Register(NewProgram("T", nil))

	assert.Equal(t, []DeviceID{DevStdError, DevPGM}, ds.IDs())
	d, ok := ds.Get(DevPGM)
	require.True(t, ok)
	assert.Equal(t, DevPGM, d.ID())

	assert.NotNil(t, ds.Unregister(DevPGM))
	_, ok = ds.Get(DevPGM)
	assert.False(t, ok)
	assert.Nil(t, ds.Unregister(DevPGM))

	require.NoError(t, ds.CloseAll())
	assert.Empty(t, ds.IDs())
}

func TestNetConsole(t *testing.T) {
	n := NewNet(NetConfig{})
	srv := httptest.NewServer(n)
	defer srv.Close()
	defer n.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("g0 x5")))
	assert.Equal(t, "g0 x5", readLineEventually(t, n))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{\"sr\":\"\"}\n")))
	assert.Equal(t, `{"sr":""}`, readLineEventually(t, n))

	require.Eventually(t, func() bool { return n.Clients() == 1 }, time.Second, time.Millisecond)
	_, err = n.Write([]byte("ok\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, "ok\n", string(msg))
	require.Eventually(t, func() bool { return n.TxQueueDepth() == 0 }, time.Second, time.Millisecond)
}

func TestNetWriteWithoutClients(t *testing.T) {
	n := NewNet(NetConfig{})
	k, err := n.Write([]byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, 7, k)
	assert.Equal(t, 0, n.TxQueueDepth())
	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
}
