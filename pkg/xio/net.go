package xio

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tinyg-go/pkg/log"
	"tinyg-go/pkg/status"
)

const (
	wsReadLimit   = 64 * 1024
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 30 * time.Second
	wsWriteWait   = 10 * time.Second
	wsSendBacklog = 256
)

// NetConfig configures the websocket console.
type NetConfig struct {
	LineBuffer int
	Intercept  func(byte) bool
	Notify     func()
}

// Net is a console reached over websocket. Every text message a client
// sends is input; every Write is broadcast to all connected clients.
// A message without a trailing newline is terminated as one line.
type Net struct {
	cfg      NetConfig
	upgrader websocket.Upgrader
	lines    *LineReader
	raw      chan []byte
	stop     chan struct{}
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[int64]*wsClient
	nextID  atomic.Int64
	queued  atomic.Int64
	closed  atomic.Bool
}

// NewNet creates the websocket console. Mount it on an http.ServeMux.
func NewNet(cfg NetConfig) *Net {
	n := &Net{
		cfg:     cfg,
		raw:     make(chan []byte, feedDepth),
		stop:    make(chan struct{}),
		clients: make(map[int64]*wsClient),
		logger:  log.GetLogger("xio.net"),
	}
	n.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	feed := make(chan []byte, feedDepth)
	n.lines = NewLineReader(feed, cfg.LineBuffer)
	go relay(n.raw, feed, n.stop)
	return n
}

func (n *Net) ID() DeviceID { return DevNet }

func (n *Net) Flags() Flags {
	return FlagReadable | FlagWritable | FlagInteractive
}

// ReadLine implements Device.
func (n *Net) ReadLine() (string, status.Code) {
	return n.lines.ReadLine()
}

// Preload queues canned input ahead of anything received.
func (n *Net) Preload(text string) { n.lines.Preload(text) }

// Clients returns the number of connected clients.
func (n *Net) Clients() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients)
}

// Write broadcasts p to every client. With no clients attached the
// output is dropped, as on an unplugged serial line.
func (n *Net) Write(p []byte) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, c := range n.clients {
		c.send(append([]byte(nil), p...))
	}
	return len(p), nil
}

// TxQueueDepth implements Device.
func (n *Net) TxQueueDepth() int { return int(n.queued.Load()) }

// ServeHTTP upgrades the request and attaches the client.
func (n *Net) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if n.closed.Load() {
		http.Error(w, "console closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.WithError(err).Warn("upgrade failed")
		return
	}
	c := &wsClient{
		id:     n.nextID.Add(1),
		conn:   conn,
		net:    n,
		sendCh: make(chan []byte, wsSendBacklog),
		done:   make(chan struct{}),
	}
	n.mu.Lock()
	n.clients[c.id] = c
	n.mu.Unlock()
	n.logger.WithFields(log.Fields{"client": c.id, "remote": r.RemoteAddr}).Info("console attached")

	go c.writePump()
	go c.readPump()
}

func (n *Net) remove(c *wsClient) {
	n.mu.Lock()
	delete(n.clients, c.id)
	n.mu.Unlock()
}

// Close disconnects every client.
func (n *Net) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	close(n.stop)
	n.mu.Lock()
	clients := make([]*wsClient, 0, len(n.clients))
	for _, c := range n.clients {
		clients = append(clients, c)
	}
	n.clients = map[int64]*wsClient{}
	n.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	return nil
}

type wsClient struct {
	id     int64
	conn   *websocket.Conn
	net    *Net
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *wsClient) send(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	c.net.queued.Add(int64(len(msg)))
	select {
	case c.sendCh <- msg:
	default:
		c.net.queued.Add(-int64(len(msg)))
		c.net.logger.WithField("client", c.id).Warn("dropping output, client backlog full")
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) readPump() {
	defer func() {
		c.net.remove(c)
		c.close()
		c.net.logger.WithField("client", c.id).Info("console detached")
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.net.logger.WithError(err).Warn("read failed")
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		had := len(msg)
		msg = stripRealtime(msg, c.net.cfg.Intercept)
		if had > 0 && len(msg) == 0 {
			continue
		}
		if n := len(msg); n == 0 || (msg[n-1] != '\n' && msg[n-1] != '\r') {
			msg = append(msg, '\n')
		}
		select {
		case c.net.raw <- msg:
		case <-c.done:
			return
		}
		if c.net.cfg.Notify != nil {
			c.net.cfg.Notify()
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		for {
			select {
			case msg := <-c.sendCh:
				c.net.queued.Add(-int64(len(msg)))
			default:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			c.net.queued.Add(-int64(len(msg)))
			if err != nil {
				c.net.logger.WithError(err).Warn("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
