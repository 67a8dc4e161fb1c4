package network

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/util"
)

// maxDatagramSize bounds a single read; heartbeat payloads stay well under this.
const maxDatagramSize = 4096

// DatagramHandler processes one received datagram. reply sends a response
// datagram back to the sender.
type DatagramHandler func(ctx context.Context, data []byte, addr *net.UDPAddr, reply func([]byte))

// Datagram is one received packet queued for a worker.
type Datagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// UDPServer reads datagrams from a single socket and fans them out to a
// fixed pool of worker goroutines.
type UDPServer struct {
	name    string
	addr    string
	workers int
	handler DatagramHandler
	logger  zerolog.Logger

	conn *net.UDPConn
}

// NewUDPServer creates a UDP server with the given worker pool size.
func NewUDPServer(name, addr string, workers int, handler DatagramHandler) *UDPServer {
	if workers < 1 {
		workers = 1
	}
	return &UDPServer{
		name:    name,
		addr:    addr,
		workers: workers,
		handler: handler,
		logger:  util.ComponentLogger(name),
	}
}

// Start binds the socket and processes datagrams until the context is
// cancelled.
func (s *UDPServer) Start(ctx context.Context) error {
	// Use SO_REUSEADDR to allow immediate rebinding after restart
	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(ctx, "udp4", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start %s listener on %s: %w", s.name, s.addr, err)
	}
	s.conn = pc.(*net.UDPConn)

	s.logger.Info().Str("addr", s.addr).Int("workers", s.workers).Msg("listener started")

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	queue := make(chan Datagram, 256)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dg := range queue {
				s.dispatch(ctx, dg)
			}
		}()
	}

	buf := make([]byte, maxDatagramSize)
	for {
		n, remoteAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("listener stopping")
			default:
				s.logger.Error().Err(err).Msg("UDP read error")
			}
			close(queue)
			wg.Wait()
			return nil
		}

		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case queue <- Datagram{Data: data, Addr: remoteAddr}:
		default:
			s.logger.Warn().Str("remote", remoteAddr.String()).Msg("datagram queue full, dropping packet")
		}
	}
}

// dispatch runs the handler with panic recovery so one bad packet cannot
// take down the worker pool.
func (s *UDPServer) dispatch(ctx context.Context, dg Datagram) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str("remote", dg.Addr.String()).
				Msg("datagram handler panicked")
		}
	}()

	s.handler(ctx, dg.Data, dg.Addr, func(response []byte) {
		if _, err := s.conn.WriteToUDP(response, dg.Addr); err != nil {
			s.logger.Warn().Err(err).Str("remote", dg.Addr.String()).Msg("failed to send response")
		}
	})
}

// Stop closes the socket.
func (s *UDPServer) Stop() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
