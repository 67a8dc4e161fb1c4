// Package network implements the shared TCP and UDP transport used by the
// login, search, list-retrieval and master services.
package network

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/battlespy-project/battlespy/internal/protocol"
)

// Connection wraps a client TCP connection and frames the byte stream into
// backslash-delimited messages terminated by \final\.
type Connection struct {
	mu     sync.Mutex
	conn   net.Conn
	logger zerolog.Logger

	// Partial data carried over between reads
	buffer  string
	pending []string

	// Timestamps
	connectedAt  time.Time
	lastActivity time.Time

	// State
	closed bool
}

// NewConnection wraps an existing net.Conn.
func NewConnection(conn net.Conn) *Connection {
	now := time.Now()
	return &Connection{
		conn:         conn,
		connectedAt:  now,
		lastActivity: now,
		logger:       log.With().Str("component", "connection").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// ReadMessage returns the next complete message without its terminator.
// Blocks until a message is available or timeout occurs.
func (c *Connection) ReadMessage(timeout time.Duration) (string, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()

	buf := make([]byte, 2048)
	for {
		if timeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(timeout))
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.lastActivity = time.Now()
		c.buffer += string(buf[:n])

		complete, rest := protocol.SplitMessages(c.buffer)
		c.buffer = rest
		if len(complete) > 0 {
			msg := complete[0]
			c.pending = append(c.pending, complete[1:]...)
			c.mu.Unlock()
			return msg, nil
		}
		c.mu.Unlock()
	}
}

// SendFrame writes a complete frame to the client.
func (c *Connection) SendFrame(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := c.conn.Write([]byte(frame)); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	c.lastActivity = time.Now()
	return nil
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Debug().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// RemoteIP returns the remote host without the port.
func (c *Connection) RemoteIP() net.IP {
	if addr, ok := c.conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP
	}
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return nil
	}
	return net.ParseIP(strings.TrimSpace(host))
}
