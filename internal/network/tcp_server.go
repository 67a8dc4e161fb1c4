package network

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/util"
)

// ConnectionHandler processes one accepted client connection. The handler
// owns the connection and must close it before returning.
type ConnectionHandler func(ctx context.Context, conn *Connection)

// TCPServer accepts client connections for one of the key/value services
// and dispatches each to its handler in a dedicated goroutine.
type TCPServer struct {
	name    string
	addr    string
	handler ConnectionHandler
	logger  zerolog.Logger

	// MaxClients caps concurrent connections; 0 means unlimited.
	// FullMessage, when set, is sent to clients rejected over the cap.
	MaxClients  int
	FullMessage string

	listener net.Listener
	active   atomic.Int64
}

// NewTCPServer creates a TCP server for the given bind address.
func NewTCPServer(name, addr string, handler ConnectionHandler) *TCPServer {
	return &TCPServer{
		name:    name,
		addr:    addr,
		handler: handler,
		logger:  util.ComponentLogger(name),
	}
}

// Start begins accepting connections. Blocks until the context is cancelled
// or the listener fails.
func (s *TCPServer) Start(ctx context.Context) error {
	// Use SO_REUSEADDR to allow immediate rebinding after restart
	lc := ReuseAddrListenConfig()
	var err error
	s.listener, err = lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start %s listener on %s: %w", s.name, s.addr, err)
	}

	s.logger.Info().Str("addr", s.addr).Msg("listener started")

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		rawConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("listener stopping")
				return nil
			default:
				s.logger.Error().Err(err).Msg("failed to accept connection")
				continue
			}
		}

		conn := NewConnection(rawConn)

		if s.MaxClients > 0 && s.active.Load() >= int64(s.MaxClients) {
			s.logger.Warn().
				Str("remote", rawConn.RemoteAddr().String()).
				Int("max", s.MaxClients).
				Msg("connection limit reached, rejecting client")
			if s.FullMessage != "" {
				conn.SendFrame(s.FullMessage)
			}
			conn.Close()
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Add(-1)
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Msg("connection handler panicked")
					conn.Close()
				}
			}()
			s.handler(ctx, conn)
		}()
	}
}

// ActiveConnections returns the number of handlers currently running.
func (s *TCPServer) ActiveConnections() int {
	return int(s.active.Load())
}

// Stop closes the listener.
func (s *TCPServer) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
