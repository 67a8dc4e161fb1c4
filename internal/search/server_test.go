package search

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/network"
	"github.com/battlespy-project/battlespy/internal/protocol"
)

func newTestSearchServer(t *testing.T) (*Server, *db.AccountStore) {
	t.Helper()
	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "battlespy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	accounts, err := db.NewAccountStore(database)
	require.NoError(t, err)

	return NewServer("127.0.0.1:0", accounts, metrics.New()), accounts
}

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

func readMessage(t *testing.T, conn net.Conn) string {
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
	return messages[0]
}

func sendFrame(t *testing.T, conn net.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte(frame))
	require.NoError(t, err)
}

func TestNicks(t *testing.T) {
	server, accounts := newTestSearchServer(t)
	_, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)
	_, err = accounts.CreateAccount("alice2", "hunter2", "a@b.c", "US")
	require.NoError(t, err)
	_, err = accounts.CreateAccount("other", "different", "a@b.c", "US")
	require.NoError(t, err)

	conn := dialSession(t, server)
	sendFrame(t, conn, `\nicks\\email\A@B.C\pass\hunter2\final\`)

	response := readMessage(t, conn)
	assert.True(t, strings.HasPrefix(response, `\nr\2`))
	assert.Contains(t, response, `\nick\alice\uniquenick\alice`)
	assert.Contains(t, response, `\nick\alice2\uniquenick\alice2`)
	assert.True(t, strings.HasSuffix(response, `\ndone\`))
}

func TestNicksNoMatches(t *testing.T) {
	server, _ := newTestSearchServer(t)

	conn := dialSession(t, server)
	sendFrame(t, conn, `\nicks\\email\none@none\pass\pw\final\`)

	response := readMessage(t, conn)
	assert.Equal(t, `\nr\0\ndone\`, response)
}

func TestNicksMissingKeys(t *testing.T) {
	server, _ := newTestSearchServer(t)

	conn := dialSession(t, server)
	sendFrame(t, conn, `\nicks\\email\a@b.c\final\`)

	frame, err := protocol.ParseFrame(readMessage(t, conn))
	require.NoError(t, err)
	assert.Equal(t, "error", frame.Command)
	assert.Equal(t, "0", frame.Get("err"))
	assert.Equal(t, msgInvalidQuery, frame.Get("errmsg"))
}

func TestCheck(t *testing.T) {
	server, accounts := newTestSearchServer(t)
	id, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)

	conn := dialSession(t, server)
	sendFrame(t, conn, `\check\\nick\alice\final\`)

	response := readMessage(t, conn)
	assert.Equal(t, fmt.Sprintf(`\cur\0\pid\%d`, id), response)
}

func TestCheckUnknownNick(t *testing.T) {
	server, _ := newTestSearchServer(t)

	conn := dialSession(t, server)
	sendFrame(t, conn, `\check\\nick\ghost\final\`)

	frame, err := protocol.ParseFrame(readMessage(t, conn))
	require.NoError(t, err)
	assert.Equal(t, "error", frame.Command)
	assert.Equal(t, "265", frame.Get("err"))
	assert.Equal(t, "Username [ghost] doesn't exist!", frame.Get("errmsg"))
}

func TestSessionServesMultipleQueries(t *testing.T) {
	server, accounts := newTestSearchServer(t)
	id, err := accounts.CreateAccount("alice", "hunter2", "a@b.c", "US")
	require.NoError(t, err)

	conn := dialSession(t, server)

	sendFrame(t, conn, `\nicks\\email\a@b.c\pass\hunter2\final\`)
	assert.True(t, strings.HasPrefix(readMessage(t, conn), `\nr\1`))

	sendFrame(t, conn, `\check\\nick\alice\final\`)
	assert.Equal(t, fmt.Sprintf(`\cur\0\pid\%d`, id), readMessage(t, conn))
}
