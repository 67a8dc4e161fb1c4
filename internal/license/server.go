// Package license emulates the CD-key validation service. Every key the
// game presents is accepted; the service exists so clients get the answer
// they expect, not to enforce anything.
package license

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/network"
	"github.com/battlespy-project/battlespy/internal/protocol"
	"github.com/battlespy-project/battlespy/internal/util"
)

// Server answers XOR-obfuscated CD-key datagrams.
type Server struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
	udp     *network.UDPServer
}

// NewServer creates the CD-key service bound to addr.
func NewServer(addr string, workers int, m *metrics.Metrics) *Server {
	s := &Server{
		metrics: m,
		logger:  util.ComponentLogger("cdkey"),
	}
	s.udp = network.NewUDPServer("cdkey", addr, workers, s.handleDatagram)
	return s
}

// Start runs the service until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.udp.Start(ctx)
}

// Stop closes the socket.
func (s *Server) Stop() error {
	return s.udp.Stop()
}

func (s *Server) handleDatagram(ctx context.Context, data []byte, addr *net.UDPAddr, reply func([]byte)) {
	decrypted := string(protocol.XorCDKey(data))

	frame, err := protocol.ParseFrame(decrypted)
	if err != nil {
		s.logger.Debug().Str("remote", addr.String()).Msg("unparseable datagram")
		return
	}

	switch frame.Command {
	case "ka":
		// Keep-alive from game servers, nothing to do.
	case "auth":
		s.handleAuth(frame, addr, reply)
	case "disc":
		// Player left a server; key reuse is not tracked.
	default:
		s.logger.Debug().
			Str("remote", addr.String()).
			Str("message", decrypted).
			Msg("incomplete or invalid key packet")
	}
}

// handleAuth approves a key check. The reply echoes the first half of the
// response hash and the session key, obfuscated the same way as the request.
func (s *Server) handleAuth(frame *protocol.Frame, addr *net.UDPAddr, reply func([]byte)) {
	resp := frame.Get("resp")
	if !frame.Has("resp", "skey") || len(resp) < 32 {
		s.logger.Debug().Str("remote", addr.String()).Msg("incomplete or invalid key packet")
		return
	}

	s.metrics.LicenseAuths.Inc()
	s.logger.Debug().Str("remote", addr.String()).Msg("key check requested")

	answer := fmt.Sprintf(`\uok\\cd\%s\skey\%s`, resp[:32], frame.Get("skey"))
	reply(protocol.XorCDKey([]byte(answer)))
}
