// Package search implements the profile search service. Clients query it
// for the account names registered under an email/password pair and for the
// numeric player id behind a nick.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/network"
	"github.com/battlespy-project/battlespy/internal/protocol"
	"github.com/battlespy-project/battlespy/internal/util"
)

const (
	msgInvalidQuery = "Invalid Query!"
	msgNoProfiles   = "Unable to get any associated profiles."
	msgStoreOffline = "Database service is Offline!"
)

// idleTimeout ends search sessions that stop sending queries.
const idleTimeout = 30 * time.Second

// Server runs the profile search service on its TCP port.
type Server struct {
	accounts *db.AccountStore
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	tcp      *network.TCPServer
}

// NewServer creates the search service bound to addr.
func NewServer(addr string, accounts *db.AccountStore, m *metrics.Metrics) *Server {
	s := &Server{
		accounts: accounts,
		metrics:  m,
		logger:   util.ComponentLogger("search"),
	}
	s.tcp = network.NewTCPServer("search", addr, s.handleConnection)
	return s
}

// Start runs the service until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.tcp.Start(ctx)
}

// Stop closes the listener.
func (s *Server) Stop() error {
	return s.tcp.Stop()
}

func (s *Server) handleConnection(ctx context.Context, conn *network.Connection) {
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		message, err := conn.ReadMessage(idleTimeout)
		if err != nil {
			return
		}

		frame, err := protocol.ParseFrame(message)
		if err != nil {
			continue
		}

		switch frame.Command {
		case "nicks":
			s.metrics.ProfileSearches.Inc()
			s.sendNicks(conn, frame)
		case "check":
			s.metrics.ProfileSearches.Inc()
			s.sendCheck(conn, frame)
		}
	}
}

// sendNicks answers with every account name registered under the given
// email and password. The password arrives in the clear or obfuscated.
func (s *Server) sendNicks(conn *network.Connection, frame *protocol.Frame) {
	if !frame.Has("email") || (!frame.Has("pass") && !frame.Has("passenc")) {
		conn.SendFrame(protocol.ErrorFrame(0, msgInvalidQuery))
		return
	}

	password := frame.Get("pass")
	if !frame.Has("pass") {
		decoded, err := protocol.DecodePassword(frame.Get("passenc"))
		if err != nil {
			conn.SendFrame(protocol.ErrorFrame(551, msgNoProfiles))
			return
		}
		password = decoded
	}

	accounts, err := s.accounts.GetAccountsByEmailPass(frame.Get("email"), password)
	if err != nil {
		s.logger.Error().Err(err).Msg("profile lookup failed")
		conn.SendFrame(protocol.ErrorFrame(551, msgNoProfiles))
		return
	}

	var response strings.Builder
	fmt.Fprintf(&response, `\nr\%d`, len(accounts))
	for _, account := range accounts {
		fmt.Fprintf(&response, `\nick\%s\uniquenick\%s`, account.Name, account.Name)
	}
	response.WriteString(`\ndone\` + protocol.FrameTerminator)

	conn.SendFrame(response.String())
}

// sendCheck answers with the player id behind a nick.
func (s *Server) sendCheck(conn *network.Connection, frame *protocol.Frame) {
	if !frame.Has("nick") {
		conn.SendFrame(protocol.ErrorFrame(0, msgInvalidQuery))
		return
	}

	nick := frame.Get("nick")
	id, err := s.accounts.GetAccountID(nick)
	if err != nil {
		s.logger.Error().Err(err).Str("nick", nick).Msg("player id lookup failed")
		conn.SendFrame(protocol.ErrorFrame(265, msgStoreOffline))
		return
	}
	if id == 0 {
		conn.SendFrame(protocol.ErrorFrame(265, fmt.Sprintf("Username [%s] doesn't exist!", nick)))
		return
	}

	conn.SendFrame(fmt.Sprintf(`\cur\0\pid\%d`+protocol.FrameTerminator, id))
}
