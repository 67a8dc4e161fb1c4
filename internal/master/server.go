// Package master implements the game server directory: the UDP heartbeat
// and challenge exchange that admits servers into the list, and the TCP
// endpoint the in-game browser fetches the list from.
package master

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/geo"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/network"
	"github.com/battlespy-project/battlespy/internal/protocol"
	"github.com/battlespy-project/battlespy/internal/util"
)

// Options configures the directory service.
type Options struct {
	UDPAddr       string
	ListAddr      string
	Workers       int
	ServerTTL     time.Duration
	SweepInterval time.Duration
}

// Server runs the heartbeat listener, the expiry sweep and the list
// retrieval endpoint.
type Server struct {
	opts     Options
	registry *Registry
	store    *db.ServerStore
	geo      geo.Resolver
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	udp  *network.UDPServer
	list *network.TCPServer
}

// NewServer creates the directory service.
func NewServer(opts Options, store *db.ServerStore, resolver geo.Resolver, m *metrics.Metrics) *Server {
	s := &Server{
		opts:     opts,
		registry: NewRegistry(opts.ServerTTL, store, m),
		store:    store,
		geo:      resolver,
		metrics:  m,
		logger:   util.ComponentLogger("master"),
	}
	s.udp = network.NewUDPServer("master", opts.UDPAddr, opts.Workers, s.handleDatagram)
	s.list = network.NewTCPServer("serverlist", opts.ListAddr, s.handleListRequest)
	return s
}

// Registry exposes the live directory for the API and console.
func (s *Server) Registry() *Registry {
	return s.registry
}

// StartUDP runs the heartbeat listener and the expiry sweep until the
// context is cancelled.
func (s *Server) StartUDP(ctx context.Context) error {
	go s.registry.Start(ctx, s.opts.SweepInterval)
	return s.udp.Start(ctx)
}

// StartList runs the list retrieval endpoint until the context is cancelled.
func (s *Server) StartList(ctx context.Context) error {
	return s.list.Start(ctx)
}

// Stop closes both sockets.
func (s *Server) Stop() error {
	s.udp.Stop()
	return s.list.Stop()
}

func (s *Server) handleDatagram(ctx context.Context, data []byte, addr *net.UDPAddr, reply func([]byte)) {
	if len(data) < 5 {
		return
	}

	if protocol.IsAvailableProbe(data) {
		reply(protocol.AvailableReply())
		return
	}

	switch data[0] {
	case protocol.TagHeartbeat:
		s.metrics.Heartbeats.Inc()
		id := data[1 : 1+protocol.CorrelationIDLen]
		if !s.parseServerDetails(addr, data[5:]) {
			reply(protocol.ChallengePacket(id))
		}
	case protocol.TagChallengeResponse:
		id := data[1 : 1+protocol.CorrelationIDLen]
		if protocol.IsValidChallengeResponse(data[5:]) {
			reply(protocol.AckPacket(id))
			s.validateServer(addr)
		} else {
			s.logger.Debug().Str("remote", addr.String()).Msg("challenge response mismatch")
		}
	case protocol.TagPing:
		key := endpointKey(addr)
		if !s.registry.Touch(key, time.Now()) {
			s.logger.Debug().Str("server", key).Msg("ping from unvalidated server")
		}
	}
}

// parseServerDetails ingests a detail heartbeat. The return value reports
// whether the sender is already validated; unvalidated senders get the
// challenge. Malformed or incomplete packets also report true so nothing is
// sent back.
func (s *Server) parseServerDetails(addr *net.UDPAddr, payload []byte) bool {
	key := endpointKey(addr)

	pairs, err := ParseDetails(payload)
	if err != nil {
		s.logger.Debug().Err(err).Str("server", key).Msg("invalid detail packet")
		return true
	}

	server := NewGameServer(addr.IP, addr.Port)
	server.Country = geo.UnknownCountry
	if addr.IP.To4() != nil {
		server.Country = s.geo.CountryCode(addr.IP)
	}

	for _, pair := range pairs {
		server.SetAttribute(pair[0], pair[1])
	}

	// Policy fields never come from the packet. Every listed server counts
	// as ranked and pure, and the premium flag belongs to the server store.
	server.Ranked = true
	server.Pure = true
	plasma, err := s.store.GetLicenseFlag(addr.IP.String(), addr.Port)
	if err != nil {
		s.logger.Warn().Err(err).Str("server", key).Msg("license flag lookup failed")
	}
	server.Plasma = plasma

	if !server.Listable() {
		s.logger.Debug().Str("server", key).Msg("detail packet failed the listing gate")
		return true
	}

	now := time.Now()
	existing, ok := s.registry.Get(key)
	validated := ok && existing.Validated

	server.Validated = validated
	server.LastPing = now
	server.LastRefreshed = now
	s.registry.Put(server)

	return validated
}

// validateServer admits an endpoint that answered the challenge and records
// it in the server store.
func (s *Server) validateServer(addr *net.UDPAddr) {
	key := endpointKey(addr)

	server, ok := s.registry.Validate(key, time.Now())
	if !ok {
		s.logger.Warn().Str("server", key).Msg("challenge response from unknown server")
		return
	}

	s.metrics.ServersValidated.Inc()
	s.logger.Info().Str("server", key).Str("hostname", server.Hostname).Msg("game server validated")

	if err := s.store.AddOrUpdateServer(server.Hostname, server.IP.String(), server.HostPort, server.QueryPort); err != nil {
		s.logger.Error().Err(err).Str("server", key).Msg("server upsert failed")
	}
}

func endpointKey(addr *net.UDPAddr) string {
	return net.JoinHostPort(addr.IP.String(), strconv.Itoa(addr.Port))
}
