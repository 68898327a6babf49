package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned by Send after the connection has closed.
	ErrClosed = errors.New("connection closed")
	// ErrBufferFull is returned when a slow peer's send buffer overflows;
	// the connection is closed as a side effect.
	ErrBufferFull = errors.New("connection buffer exceeded")
)

// CloseSlowConsumer is the close code sent to peers that cannot keep up.
const CloseSlowConsumer = 4008

// ConnOptions tunes a Conn. Zero values fall back to the defaults below.
type ConnOptions struct {
	SendBuffer      int
	WriteWait       time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 10 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = 2 * o.PingInterval
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	return o
}

// Conn wraps a websocket and serialises outbound writes through a bounded
// channel drained by a single write goroutine. Reads happen on the caller's
// goroutine via ReadMessage.
type Conn struct {
	id   string
	ws   *websocket.Conn
	opts ConnOptions

	send   chan []byte
	once   sync.Once
	done   chan struct{}
	closed chan struct{}
}

// NewConn wraps ws and installs the read limit and pong-driven deadline.
func NewConn(ws *websocket.Conn, opts ConnOptions) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	ws.SetReadLimit(opts.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Closed is closed after the close frame was attempted and the socket
// released.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// Start launches the write loop. It must be called exactly once.
func (c *Conn) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery without blocking. If the buffer is
// full the connection is closed with CloseSlowConsumer.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		wsSlowConsumers.Inc()
		c.Close(CloseSlowConsumer, "send buffer full")
		return ErrBufferFull
	}
}

// ReadMessage blocks for the next text or binary frame.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close marks the connection closed and tears the socket down on a
// separate goroutine, so it never waits on a stalled writer. It is
// idempotent; only the first code and reason are sent.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		go c.teardown(code, reason)
	})
}

// teardown waits at most WriteWait for the write lock held by a
// blocked writeLoop, then closes the socket, which unblocks that write.
func (c *Conn) teardown(code int, reason string) {
	defer close(c.closed)
	deadline := time.Now().Add(c.opts.WriteWait)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.ws.Close()
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

func (c *Conn) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}
