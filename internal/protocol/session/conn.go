package session

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/relayctl/internal/protocol"
)

var ErrSessionClosed = errors.New("session: connection closed")

// Conn is one framed connection. Send is safe for concurrent use;
// Receive must only be called from a single goroutine.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    Config

	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
}

// NewConn wraps an established network connection.
func NewConn(conn net.Conn, cfg Config) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		cfg:    cfg.WithDefaults(),
	}
}

// Send frames msg onto the connection.
func (c *Conn) Send(msg protocol.Message) error {
	if c.closed.Load() {
		return ErrSessionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return protocol.WriteMessage(c.conn, msg, c.cfg.Limits)
}

// Receive blocks until one full Message arrives.
func (c *Conn) Receive() (protocol.Message, error) {
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	return protocol.ReadMessage(c.reader, c.cfg.Limits)
}

// Close closes the underlying connection once; later calls return nil.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// SetWriteDeadline bounds the next Send when no WriteTimeout is configured.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Conn) LocalAddr() string {
	if addr := c.conn.LocalAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
