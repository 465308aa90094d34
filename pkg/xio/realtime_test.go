package xio

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyg-go/pkg/sig"
	"tinyg-go/pkg/status"
)

func TestStripRealtime(t *testing.T) {
	flags := sig.NewFlags()
	got := stripRealtime([]byte("g1 x!5~\n"), flags.Intercept)
	assert.Equal(t, "g1 x5\n", string(got))
	assert.True(t, flags.Feedhold.Take())
	assert.True(t, flags.CycleStart.Take())
	assert.False(t, flags.Abort.Take())

	assert.Empty(t, stripRealtime([]byte("\x18"), flags.Intercept))
	assert.True(t, flags.Abort.Take())

	assert.Equal(t, "!", string(stripRealtime([]byte("!"), nil)))
}

func TestRelayKeepsOrderWhileReaderIsIdle(t *testing.T) {
	in := make(chan []byte)
	out := make(chan []byte)
	go relay(in, out, make(chan struct{}))

	for _, c := range []string{"a", "b", "c"} {
		select {
		case in <- []byte(c):
		case <-time.After(time.Second):
			t.Fatal("relay held up the producer")
		}
	}
	close(in)

	var got []string
	for chunk := range out {
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRelayStops(t *testing.T) {
	in := make(chan []byte)
	out := make(chan []byte)
	stop := make(chan struct{})
	go relay(in, out, stop)
	close(stop)

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestStreamRaisesRealtimeWithoutReadLine(t *testing.T) {
	flags := sig.NewFlags()
	pr, pw := io.Pipe()
	s := NewStream(DevUSB, pr, io.Discard, StreamConfig{Intercept: flags.Intercept})
	defer s.Close()
	defer pw.Close()

	// more chunks than the feed holds, with nobody calling ReadLine
	for i := 0; i < 3*feedDepth; i++ {
		_, err := io.WriteString(pw, "g1 x1\n")
		require.NoError(t, err)
	}
	_, err := io.WriteString(pw, "!")
	require.NoError(t, err)

	require.Eventually(t, flags.Feedhold.Pending, time.Second, time.Millisecond)
	assert.Equal(t, "g1 x1", readLineEventually(t, s))
}

func TestNetRaisesRealtime(t *testing.T) {
	flags := sig.NewFlags()
	n := NewNet(NetConfig{Intercept: flags.Intercept})
	srv := httptest.NewServer(n)
	defer srv.Close()
	defer n.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("\x18")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("g0~ x1")))
	require.Eventually(t, flags.Abort.Pending, time.Second, time.Millisecond)

	assert.Equal(t, "g0 x1", readLineEventually(t, n))
	assert.True(t, flags.CycleStart.Take())

	_, code := n.ReadLine()
	assert.Equal(t, status.Eagain, code, "a realtime-only message is not a line")
}
