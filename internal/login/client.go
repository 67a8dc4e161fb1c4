package login

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/network"
	"github.com/battlespy-project/battlespy/internal/protocol"
)

// Phase is the position of a session in the login state machine.
type Phase int

const (
	// PhaseConnected: accepted, challenge not yet sent.
	PhaseConnected Phase = iota
	// PhaseProcessing: challenge sent, awaiting login.
	PhaseProcessing
	// PhaseCompleted: authenticated.
	PhaseCompleted
	// PhaseDisconnected: session ended.
	PhaseDisconnected
)

// Exact response formats expected by the game client.
const (
	challengeFormat    = `\lc\1\challenge\%s\id\1\final\`
	loginSuccessFormat = `\lc\2\sesskey\%d\proof\%s\userid\%d\profileid\%d\uniquenick\%s\lt\%s\id\1\final\`
	profileFormat      = `\pi\\profileid\%d\nick\%s\userid\%d\email\%s\sig\%s\uniquenick\%s\pid\0\firstname\\lastname\` +
		`\countrycode\%s\birthday\16844722\lon\0.000000\lat\0.000000\loc\\id\%s\\final\`
	newUserFormat  = `\nur\\userid\%d\profileid\%d\id\1\final\`
	keepAliveFrame = `\ka\\final\`
)

// Client error messages, verbatim including the original's typos.
const (
	msgInvalidQuery = "Invalid Query!"
	msgUnknownNick  = "The uniquenick provided is incorrect!"
	msgBanned       = "You account has been permanently suspended."
	msgBadPassword  = "The password provided is incorrect."
	msgNickTaken    = "This account name is already in use!"
	msgCreateFailed = "Error creating account!"
)

// readPollInterval bounds a single blocking read so the session loop can
// observe shutdown; idle enforcement itself lives in the server poll loop.
const readPollInterval = 5 * time.Second

// Client is one login session. All protocol handling for a connection runs
// on its goroutine; the server poll loop only touches the thread-safe parts.
type Client struct {
	server *Server
	conn   *network.Connection
	connID int64
	logger zerolog.Logger

	mu              sync.Mutex
	phase           Phase
	serverChallenge string
	profileSent     bool

	accountID    int
	nick         string
	email        string
	country      string
	passwordHash string
	sessionKey   uint16
}

func newClient(server *Server, conn *network.Connection, connID int64) *Client {
	return &Client{
		server: server,
		conn:   conn,
		connID: connID,
		logger: server.logger.With().
			Int64("conn_id", connID).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// AccountID returns the authenticated account id, 0 before login.
func (c *Client) AccountID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountID
}

// Nick returns the authenticated nick, empty before login.
func (c *Client) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

// Phase returns the session phase.
func (c *Client) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ConnectedAt returns when the session was accepted.
func (c *Client) ConnectedAt() time.Time {
	return c.conn.ConnectedAt()
}

// RemoteAddr returns the session's remote address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// run drives the session: send the challenge, then process commands until
// the connection drops or the session is disconnected.
func (c *Client) run(ctx context.Context) {
	if err := c.sendChallenge(); err != nil {
		c.Disconnect(ReasonDisconnected)
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.Disconnect(ReasonForcedServerShutdown)
			return
		default:
		}

		message, err := c.conn.ReadMessage(readPollInterval)
		if err != nil {
			if c.conn.IsClosed() {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			c.Disconnect(ReasonDisconnected)
			return
		}

		frame, err := protocol.ParseFrame(message)
		if err != nil {
			c.conn.SendFrame(protocol.ErrorFrame(0, msgInvalidQuery))
			continue
		}

		switch frame.Command {
		case "login":
			c.handleLogin(frame)
		case "newuser":
			c.handleNewUser(frame)
		case "getprofile":
			c.sendProfile()
		case "updatepro":
			c.handleUpdatePro(frame)
		case "logout":
			c.Disconnect(ReasonNormalLogout)
			return
		default:
			// Unknown commands get an error but the connection stays open.
			c.conn.SendFrame(protocol.ErrorFrame(0, msgInvalidQuery))
		}

		if c.Phase() == PhaseDisconnected {
			return
		}
	}
}

// sendChallenge issues the server challenge. Issuing it twice on one
// session is a protocol violation.
func (c *Client) sendChallenge() error {
	c.mu.Lock()
	if c.phase != PhaseConnected {
		c.mu.Unlock()
		c.Disconnect(ReasonChallengeAlreadySent)
		return nil
	}
	c.serverChallenge = protocol.RandomChallenge()
	c.phase = PhaseProcessing
	challenge := c.serverChallenge
	c.mu.Unlock()

	return c.conn.SendFrame(fmt.Sprintf(challengeFormat, challenge))
}

func (c *Client) handleLogin(frame *protocol.Frame) {
	if !frame.Has("uniquenick", "challenge", "response") {
		c.server.metrics.Logins.WithLabelValues(metrics.LoginInvalidQuery).Inc()
		c.conn.SendFrame(protocol.ErrorFrame(0, msgInvalidQuery))
		c.Disconnect(ReasonInvalidLoginQuery)
		return
	}

	nick := frame.Get("uniquenick")
	clientChallenge := frame.Get("challenge")

	account, err := c.server.accounts.GetAccount(nick)
	if err != nil {
		c.logger.Error().Err(err).Str("nick", nick).Msg("account lookup failed")
		c.server.metrics.Logins.WithLabelValues(metrics.LoginStoreError).Inc()
		c.Disconnect(ReasonGeneralError)
		return
	}
	if account == nil {
		c.server.metrics.Logins.WithLabelValues(metrics.LoginUnknownNick).Inc()
		c.conn.SendFrame(protocol.ErrorFrame(265, msgUnknownNick))
		c.Disconnect(ReasonInvalidUsername)
		return
	}
	if account.Banned {
		c.server.metrics.Logins.WithLabelValues(metrics.LoginBanned).Inc()
		c.conn.SendFrame(protocol.ErrorFrame(265, msgBanned))
		c.Disconnect(ReasonPlayerIsBanned)
		return
	}

	c.mu.Lock()
	c.accountID = account.ID
	c.nick = nick
	c.email = account.Email
	c.country = account.Country
	c.passwordHash = strings.ToLower(account.Password)
	serverChallenge := c.serverChallenge
	passwordHash := c.passwordHash
	c.mu.Unlock()

	expected := protocol.GenerateProof(passwordHash, nick, clientChallenge, serverChallenge)
	if frame.Get("response") != expected {
		c.logger.Info().Str("nick", nick).Int("account_id", account.ID).Msg("failed login attempt")
		c.server.metrics.Logins.WithLabelValues(metrics.LoginBadPassword).Inc()
		c.conn.SendFrame(protocol.ErrorFrame(260, msgBadPassword))
		c.Disconnect(ReasonInvalidPassword)
		return
	}

	sessionKey := protocol.SessionKey(nick)
	c.mu.Lock()
	c.sessionKey = sessionKey
	c.phase = PhaseCompleted
	c.mu.Unlock()

	// Proof to the client uses the same construction with challenges reversed.
	err = c.conn.SendFrame(fmt.Sprintf(loginSuccessFormat,
		sessionKey,
		protocol.GenerateProof(passwordHash, nick, serverChallenge, clientChallenge),
		account.ID,
		account.ID,
		nick,
		protocol.RandomTicket(),
	))
	if err != nil {
		c.Disconnect(ReasonDisconnected)
		return
	}

	c.logger.Info().Str("nick", nick).Int("account_id", account.ID).Msg("client login")
	c.server.onLoginSuccess(c)
}

// sendProfile answers a getprofile request. The id field is "2" on the first
// profile sent, "5" afterwards; everything else is fixed filler the client
// expects to see.
func (c *Client) sendProfile() {
	c.mu.Lock()
	id := "2"
	if c.profileSent {
		id = "5"
	} else {
		c.profileSent = true
	}
	accountID, nick, email, country := c.accountID, c.nick, c.email, c.country
	c.mu.Unlock()

	c.conn.SendFrame(fmt.Sprintf(profileFormat,
		accountID, nick, accountID, email, protocol.RandomSignature(), nick, country, id))
}

func (c *Client) handleNewUser(frame *protocol.Frame) {
	if !frame.Has("nick", "email", "passwordenc") {
		c.conn.SendFrame(protocol.ErrorFrame(0, msgInvalidQuery))
		c.Disconnect(ReasonGeneralError)
		return
	}

	nick := frame.Get("nick")

	exists, err := c.server.accounts.AccountExists(nick)
	if err != nil {
		c.logger.Error().Err(err).Str("nick", nick).Msg("account existence check failed")
		c.conn.SendFrame(protocol.ErrorFrame(516, msgCreateFailed))
		c.Disconnect(ReasonGeneralError)
		return
	}
	if exists {
		c.conn.SendFrame(protocol.ErrorFrame(516, msgNickTaken))
		c.Disconnect(ReasonCreateFailedUsernameExists)
		return
	}

	password, err := protocol.DecodePassword(frame.Get("passwordenc"))
	if err != nil {
		c.logger.Warn().Err(err).Str("nick", nick).Msg("unable to decode password")
		c.conn.SendFrame(protocol.ErrorFrame(516, msgCreateFailed))
		c.Disconnect(ReasonGeneralError)
		return
	}

	country := "US"
	if ip := c.conn.RemoteIP(); ip != nil && ip.To4() != nil {
		country = c.server.geo.CountryCode(ip)
	}

	accountID, err := c.server.accounts.CreateAccount(nick, password, frame.Get("email"), country)
	if err != nil {
		c.logger.Error().Err(err).Str("nick", nick).Msg("account creation failed")
		c.conn.SendFrame(protocol.ErrorFrame(516, msgCreateFailed))
		c.Disconnect(ReasonCreateFailedDatabaseError)
		return
	}

	c.mu.Lock()
	c.accountID = accountID
	c.mu.Unlock()

	c.server.metrics.AccountsCreated.Inc()
	c.conn.SendFrame(fmt.Sprintf(newUserFormat, accountID, accountID))
}

// handleUpdatePro applies a country change. Failures are logged and
// swallowed; the client gets no response either way.
func (c *Client) handleUpdatePro(frame *protocol.Frame) {
	country, ok := frame.Keys["countrycode"]
	if !ok {
		return
	}

	if err := c.server.accounts.UpdateCountry(c.AccountID(), country); err != nil {
		c.logger.Warn().Err(err).Msg("country update failed")
	}
}

// SendKeepAlive pings an authenticated session. Delivery failure ends the
// session.
func (c *Client) SendKeepAlive() {
	if c.Phase() != PhaseCompleted {
		return
	}
	if err := c.conn.SendFrame(keepAliveFrame); err != nil {
		c.Disconnect(ReasonKeepAliveFailed)
	}
}

// Disconnect ends the session once; later calls are no-ops. Authenticated
// sessions are queued for an offline status write unless the whole service
// is shutting down, in which case the server resets statuses in bulk.
func (c *Client) Disconnect(reason DisconnectReason) {
	c.mu.Lock()
	if c.phase == PhaseDisconnected {
		c.mu.Unlock()
		return
	}
	wasCompleted := c.phase == PhaseCompleted
	c.phase = PhaseDisconnected
	accountID := c.accountID
	nick := c.nick
	c.mu.Unlock()

	c.conn.Close()
	c.server.registry.Remove(c)

	if wasCompleted {
		c.server.metrics.SessionsActive.Dec()
		if reason != ReasonForcedServerShutdown {
			c.server.status.Enqueue(db.StatusUpdate{AccountID: accountID, Online: false})
		}
	}

	if wasCompleted && reason == ReasonNormalLogout {
		c.logger.Info().Str("nick", nick).Int("account_id", accountID).Msg("client logout")
	} else {
		c.logger.Debug().Str("reason", reason.String()).Msg("session closed")
	}
}
