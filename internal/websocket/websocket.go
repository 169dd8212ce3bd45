// Package websocket wraps gorilla/websocket for actions that exchange
// messages with a WebSocket endpoint.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/symphoner/internal/metrics"
)

var (
	ErrNotConnected     = errors.New("websocket: not connected")
	ErrAlreadyConnected = errors.New("websocket: already connected")
)

const (
	TextMessage   = websocket.TextMessage
	BinaryMessage = websocket.BinaryMessage
)

// Message is a single frame to send or one that was received.
type Message struct {
	Type int
	Data []byte
}

// Stats counts traffic on one connection.
type Stats struct {
	ConnectionDuration time.Duration
	MessagesSent       int64
	MessagesReceived   int64
	BytesSent          int64
	BytesReceived      int64
	Errors             int64
}

type Config struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	// Metrics receives ws.* counters and timings. Optional.
	Metrics metrics.Sink
}

type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	sink   metrics.Sink

	mu          sync.Mutex
	conn        *websocket.Conn
	connectedAt time.Time
	stats       Stats
}

func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 1 << 20
	}
	sink := cfg.Metrics
	if sink == nil {
		sink = metrics.Nop{}
	}

	return &Client{
		cfg:  cfg,
		sink: sink,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	start := time.Now()
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.failLocked()
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.conn = conn
	c.connectedAt = time.Now()
	c.sink.Timing("ws.connect", c.connectedAt.Sub(start))
	return nil
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_ = c.conn.SetWriteDeadline(deadline(ctx, c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(msg.Type, msg.Data); err != nil {
		c.failLocked()
		return fmt.Errorf("write message: %w", err)
	}

	c.stats.MessagesSent++
	c.stats.BytesSent += int64(len(msg.Data))
	c.sink.Increment("ws.messages.sent")
	return nil
}

// Receive blocks until a frame arrives, the read timeout elapses or ctx is
// done. Cancelling ctx unblocks a pending read by expiring its deadline.
func (c *Client) Receive(ctx context.Context) (Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return Message{}, ErrNotConnected
	}

	_ = conn.SetReadDeadline(deadline(ctx, c.cfg.ReadTimeout))
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	msgType, data, err := conn.ReadMessage()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failLocked()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, ctxErr
		}
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	c.stats.MessagesReceived++
	c.stats.BytesReceived += int64(len(data))
	c.sink.Increment("ws.messages.received")
	return Message{Type: msgType, Data: data}, nil
}

// Close sends a normal close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)
	closeErr := c.conn.Close()
	c.conn = nil
	c.sink.Timing("ws.session", time.Since(c.connectedAt))

	if err != nil {
		return err
	}
	return closeErr
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	if !c.connectedAt.IsZero() {
		s.ConnectionDuration = time.Since(c.connectedAt)
	}
	return s
}

func (c *Client) failLocked() {
	c.stats.Errors++
	c.sink.Increment("ws.errors")
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}
