// Package login implements the client login service: the challenge/proof
// handshake, account creation, profile delivery and session keep-alives.
package login

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/geo"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/network"
	"github.com/battlespy-project/battlespy/internal/util"
)

// Options configures the login service.
type Options struct {
	Addr                string
	MaxClients          int
	FullMessage         string
	LoginTimeout        time.Duration
	KeepAliveInterval   time.Duration
	StatusFlushInterval time.Duration
}

// Server runs the login service on its TCP port and owns the session
// registry and the deferred status writer.
type Server struct {
	opts     Options
	accounts *db.AccountStore
	geo      geo.Resolver
	registry *Registry
	status   *StatusWriter
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	tcp        *network.TCPServer
	nextConnID atomic.Int64
}

// NewServer creates the login service.
func NewServer(opts Options, accounts *db.AccountStore, resolver geo.Resolver, m *metrics.Metrics) *Server {
	s := &Server{
		opts:     opts,
		accounts: accounts,
		geo:      resolver,
		registry: NewRegistry(),
		status:   NewStatusWriter(accounts, opts.StatusFlushInterval, m),
		metrics:  m,
		logger:   util.ComponentLogger("login"),
	}

	s.tcp = network.NewTCPServer("login", opts.Addr, s.handleConnection)
	s.tcp.MaxClients = opts.MaxClients
	s.tcp.FullMessage = opts.FullMessage
	return s
}

// Start runs the service until the context is cancelled, then disconnects
// every session, flushes the status queue and resets online flags.
func (s *Server) Start(ctx context.Context) error {
	go s.status.Start(ctx)
	go s.pollLoop(ctx)

	err := s.tcp.Start(ctx)
	s.shutdown()
	return err
}

// Stop closes the listener.
func (s *Server) Stop() error {
	return s.tcp.Stop()
}

func (s *Server) handleConnection(ctx context.Context, conn *network.Connection) {
	client := newClient(s, conn, s.nextConnID.Add(1))
	s.registry.Add(client)
	client.run(ctx)
	client.Disconnect(ReasonDisconnected)
}

// onLoginSuccess promotes the session and queues the online status write.
// Promotion happens first so that when an older session for the account is
// evicted, its offline update lands in the queue ahead of this one and the
// account ends the batch online.
func (s *Server) onLoginSuccess(c *Client) {
	s.metrics.Logins.WithLabelValues(metrics.LoginOK).Inc()
	s.metrics.SessionsActive.Inc()

	if evicted := s.registry.Promote(c); evicted != nil {
		s.logger.Info().
			Str("nick", c.Nick()).
			Int("account_id", c.AccountID()).
			Msg("newer login replaces existing session")
		evicted.Disconnect(ReasonNewLoginDetected)
	}

	remoteIP := ""
	if ip := c.conn.RemoteIP(); ip != nil {
		remoteIP = ip.String()
	}
	s.status.Enqueue(db.StatusUpdate{AccountID: c.AccountID(), Online: true, RemoteIP: remoteIP})
}

// pollLoop sends keep-alives to authenticated sessions and enforces the
// handshake timeout on sessions still processing.
func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range s.registry.AuthenticatedClients() {
				c.SendKeepAlive()
			}
			for _, c := range s.registry.ProcessingClients() {
				switch c.Phase() {
				case PhaseCompleted:
					s.registry.DropProcessing(c)
				case PhaseDisconnected:
					s.registry.Remove(c)
				default:
					if time.Since(c.ConnectedAt()) > s.opts.LoginTimeout {
						c.Disconnect(ReasonLoginTimedOut)
					}
				}
			}
		}
	}
}

func (s *Server) shutdown() {
	for _, c := range s.registry.AuthenticatedClients() {
		c.Disconnect(ReasonForcedServerShutdown)
	}
	for _, c := range s.registry.ProcessingClients() {
		c.Disconnect(ReasonForcedServerShutdown)
	}

	s.status.Flush()

	if err := s.accounts.ResetOnlineStatus(); err != nil {
		s.logger.Error().Err(err).Msg("online status reset failed")
	} else {
		s.logger.Info().Msg("online statuses reset")
	}
}

// Kick disconnects the authenticated session for an account, if present.
func (s *Server) Kick(accountID int) bool {
	c, ok := s.registry.Authenticated(accountID)
	if !ok {
		return false
	}
	c.Disconnect(ReasonForcedLogout)
	return true
}

// Sessions snapshots the authenticated sessions for the console and API.
func (s *Server) Sessions() []*Client {
	return s.registry.AuthenticatedClients()
}

// Counts returns the processing and authenticated session counts.
func (s *Server) Counts() (processing, authenticated int) {
	return s.registry.Counts()
}

// StatusPending returns the number of queued status updates.
func (s *Server) StatusPending() int {
	return s.status.Pending()
}
