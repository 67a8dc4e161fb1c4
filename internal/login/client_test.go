package login

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/geo"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/network"
	"github.com/battlespy-project/battlespy/internal/protocol"
)

func newTestLoginServer(t *testing.T) (*Server, *db.AccountStore) {
	t.Helper()
	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "battlespy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	accounts, err := db.NewAccountStore(database)
	require.NoError(t, err)

	opts := Options{
		Addr:                "127.0.0.1:0",
		LoginTimeout:        20 * time.Second,
		KeepAliveInterval:   15 * time.Second,
		StatusFlushInterval: time.Second,
	}
	return NewServer(opts, accounts, geo.StaticResolver("DE"), metrics.New()), accounts
}

// dialSession wires a pipe into the connection handler, standing in for an
// accepted TCP client.
func dialSession(t *testing.T, s *Server) net.Conn {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	go s.handleConnection(ctx, network.NewConnection(serverConn))

	t.Cleanup(func() {
		clientConn.Close()
		cancel()
	})
	return clientConn
}

func readFrame(t *testing.T, conn net.Conn) *protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var data string
	buf := make([]byte, 2048)
	for !strings.Contains(data, protocol.FrameTerminator) {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		data += string(buf[:n])
	}

	messages, _ := protocol.SplitMessages(data)
	frame, err := protocol.ParseFrame(messages[0])
	require.NoError(t, err)
	return frame
}

func sendFrame(t *testing.T, conn net.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte(frame))
	require.NoError(t, err)
}

func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	_, err := conn.Read(buf)
	assert.Error(t, err)
}

// doLogin performs the full handshake for an existing account and returns
// the success frame.
func doLogin(t *testing.T, conn net.Conn, nick, password string) *protocol.Frame {
	t.Helper()

	challenge := readFrame(t, conn)
	require.Equal(t, "lc", challenge.Command)
	serverChallenge := challenge.Get("challenge")
	require.Len(t, serverChallenge, 10)

	clientChallenge := "0123456789"
	response := protocol.GenerateProof(protocol.MD5Hex(password), nick, clientChallenge, serverChallenge)
	sendFrame(t, conn, fmt.Sprintf(`\login\\challenge\%s\uniquenick\%s\response\%s\id\1\final\`,
		clientChallenge, nick, response))

	return readFrame(t, conn)
}

func TestLoginSuccess(t *testing.T) {
	server, accounts := newTestLoginServer(t)
	id, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)

	conn := dialSession(t, server)

	challenge := readFrame(t, conn)
	require.Equal(t, "lc", challenge.Command)
	serverChallenge := challenge.Get("challenge")
	require.Len(t, serverChallenge, 10)
	assert.Equal(t, strings.ToUpper(serverChallenge), serverChallenge)

	clientChallenge := "ABCDE12345"
	hash := protocol.MD5Hex("hunter2")
	response := protocol.GenerateProof(hash, "alice", clientChallenge, serverChallenge)
	sendFrame(t, conn, fmt.Sprintf(`\login\\challenge\%s\uniquenick\alice\response\%s\id\1\final\`,
		clientChallenge, response))

	success := readFrame(t, conn)
	require.Equal(t, "lc", success.Command)
	assert.Equal(t, strconv.Itoa(int(protocol.SessionKey("alice"))), success.Get("sesskey"))
	assert.Equal(t, protocol.GenerateProof(hash, "alice", serverChallenge, clientChallenge),
		success.Get("proof"))
	assert.Equal(t, strconv.Itoa(id), success.Get("userid"))
	assert.Equal(t, strconv.Itoa(id), success.Get("profileid"))
	assert.Equal(t, "alice", success.Get("uniquenick"))
	assert.Len(t, success.Get("lt"), 24)
	assert.True(t, strings.HasSuffix(success.Get("lt"), "__"))

	// The winner's online update is queued once the session is promoted.
	assert.Eventually(t, func() bool { return server.StatusPending() == 1 },
		time.Second, 10*time.Millisecond)
	_, authenticated := server.Counts()
	assert.Equal(t, 1, authenticated)
}

func TestLoginProfile(t *testing.T) {
	server, accounts := newTestLoginServer(t)
	id, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "DE")
	require.NoError(t, err)

	conn := dialSession(t, server)
	doLogin(t, conn, "alice", "hunter2")

	sendFrame(t, conn, `\getprofile\\sesskey\1\final\`)
	profile := readFrame(t, conn)
	require.Equal(t, "pi", profile.Command)
	assert.Equal(t, strconv.Itoa(id), profile.Get("profileid"))
	assert.Equal(t, "alice", profile.Get("nick"))
	assert.Equal(t, "a@b.c", profile.Get("email"))
	assert.Equal(t, "DE", profile.Get("countrycode"))
	assert.Len(t, profile.Get("sig"), 32)
	assert.Equal(t, "2", profile.Get("id"))

	sendFrame(t, conn, `\getprofile\\sesskey\1\final\`)
	profile = readFrame(t, conn)
	assert.Equal(t, "5", profile.Get("id"))
}

func TestLoginUnknownNick(t *testing.T) {
	server, _ := newTestLoginServer(t)

	conn := dialSession(t, server)
	response := doLogin(t, conn, "ghost", "whatever")

	require.Equal(t, "error", response.Command)
	assert.Equal(t, "265", response.Get("err"))
	assert.Equal(t, msgUnknownNick, response.Get("errmsg"))
	assert.True(t, response.Has("fatal"))
	expectClosed(t, conn)
}

func TestLoginBadPassword(t *testing.T) {
	server, accounts := newTestLoginServer(t)
	_, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)

	conn := dialSession(t, server)
	response := doLogin(t, conn, "alice", "wrong")

	require.Equal(t, "error", response.Command)
	assert.Equal(t, "260", response.Get("err"))
	assert.Equal(t, msgBadPassword, response.Get("errmsg"))
	expectClosed(t, conn)
}

func TestLoginBanned(t *testing.T) {
	server, accounts := newTestLoginServer(t)
	_, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)
	require.NoError(t, accounts.SetBanned("alice", true))

	conn := dialSession(t, server)
	response := doLogin(t, conn, "alice", "hunter2")

	require.Equal(t, "error", response.Command)
	assert.Equal(t, "265", response.Get("err"))
	assert.Equal(t, msgBanned, response.Get("errmsg"))
	expectClosed(t, conn)
}

func TestLoginMissingKeysDisconnects(t *testing.T) {
	server, _ := newTestLoginServer(t)

	conn := dialSession(t, server)
	readFrame(t, conn)

	sendFrame(t, conn, `\login\\uniquenick\alice\final\`)
	response := readFrame(t, conn)
	require.Equal(t, "error", response.Command)
	assert.Equal(t, "0", response.Get("err"))
	assert.Equal(t, msgInvalidQuery, response.Get("errmsg"))
	expectClosed(t, conn)
}

func TestUnknownCommandKeepsConnection(t *testing.T) {
	server, accounts := newTestLoginServer(t)
	_, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)

	conn := dialSession(t, server)

	challenge := readFrame(t, conn)
	serverChallenge := challenge.Get("challenge")

	sendFrame(t, conn, `\bogus\\key\value\final\`)
	response := readFrame(t, conn)
	require.Equal(t, "error", response.Command)
	assert.Equal(t, "0", response.Get("err"))

	// The session survives an unknown command.
	clientChallenge := "XYZXYZXYZX"
	proof := protocol.GenerateProof(protocol.MD5Hex("hunter2"), "alice", clientChallenge, serverChallenge)
	sendFrame(t, conn, fmt.Sprintf(`\login\\challenge\%s\uniquenick\alice\response\%s\id\1\final\`,
		clientChallenge, proof))

	success := readFrame(t, conn)
	assert.Equal(t, "lc", success.Command)
	assert.True(t, success.Has("sesskey", "proof"))
}

func TestNewUser(t *testing.T) {
	server, accounts := newTestLoginServer(t)

	conn := dialSession(t, server)
	readFrame(t, conn)

	sendFrame(t, conn, fmt.Sprintf(`\newuser\\nick\bob\email\B@c.d\passwordenc\%s\final\`,
		encodePassword("secret")))

	created := readFrame(t, conn)
	require.Equal(t, "nur", created.Command)
	assert.Equal(t, created.Get("userid"), created.Get("profileid"))

	account, err := accounts.GetAccount("bob")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, protocol.MD5Hex("secret"), account.Password)
	assert.Equal(t, "b@c.d", account.Email)
	// Pipe peers carry no IPv4 address, so the fallback country applies.
	assert.Equal(t, "US", account.Country)

	// The connection stays open after a successful registration.
	sendFrame(t, conn, `\bogus\\final\`)
	response := readFrame(t, conn)
	assert.Equal(t, "error", response.Command)
}

func TestNewUserNickTaken(t *testing.T) {
	server, accounts := newTestLoginServer(t)
	_, err := accounts.CreateAccount("bob", "pw", "b@c.d", "US")
	require.NoError(t, err)

	conn := dialSession(t, server)
	readFrame(t, conn)

	sendFrame(t, conn, fmt.Sprintf(`\newuser\\nick\bob\email\b@c.d\passwordenc\%s\final\`,
		encodePassword("secret")))

	response := readFrame(t, conn)
	require.Equal(t, "error", response.Command)
	assert.Equal(t, "516", response.Get("err"))
	assert.Equal(t, msgNickTaken, response.Get("errmsg"))
	expectClosed(t, conn)
}

func TestSecondLoginEvictsFirst(t *testing.T) {
	server, accounts := newTestLoginServer(t)
	_, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)

	first := dialSession(t, server)
	success := doLogin(t, first, "alice", "hunter2")
	require.Equal(t, "lc", success.Command)

	second := dialSession(t, server)
	success = doLogin(t, second, "alice", "hunter2")
	require.Equal(t, "lc", success.Command)

	expectClosed(t, first)

	_, authenticated := server.Counts()
	assert.Equal(t, 1, authenticated)

	// Offline for the evicted session precedes the winner's online update.
	assert.Eventually(t, func() bool { return server.StatusPending() == 3 },
		time.Second, 10*time.Millisecond)
}

func TestKick(t *testing.T) {
	server, accounts := newTestLoginServer(t)
	id, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)

	conn := dialSession(t, server)
	doLogin(t, conn, "alice", "hunter2")

	assert.True(t, server.Kick(id))
	expectClosed(t, conn)
	assert.False(t, server.Kick(id))
}

// encodePassword mirrors the client-side obfuscation so decoding can be
// exercised end to end.
func encodePassword(password string) string {
	data := []byte(password)
	num := passwordSeedForTest
	for i := range data {
		num = gsNextForTest(num)
		data[i] ^= byte(num % 0xff)
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return strings.NewReplacer("/", "_", "+", "[", "=", "]").Replace(encoded)
}

const passwordSeedForTest int32 = 0x79707367

func gsNextForTest(num int32) int32 {
	c := (num >> 16) & 0xffff
	a := num & 0xffff
	c *= 0x41a7
	a *= 0x41a7
	a += (c & 0x7fff) << 16
	if a < 0 {
		a &= 0x7fffffff
		a++
	}
	a += c >> 15
	if a < 0 {
		a &= 0x7fffffff
		a++
	}
	return a
}
