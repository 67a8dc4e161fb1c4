package login

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/metrics"
)

func newTestStatusWriter(t *testing.T) (*StatusWriter, *db.AccountStore, *db.Database) {
	t.Helper()
	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "battlespy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	accounts, err := db.NewAccountStore(database)
	require.NoError(t, err)

	return NewStatusWriter(accounts, time.Second, metrics.New()), accounts, database
}

func TestStatusWriterFlush(t *testing.T) {
	writer, accounts, _ := newTestStatusWriter(t)

	id, err := accounts.CreateAccount("alice", "pw", "a@b.c", "US")
	require.NoError(t, err)

	writer.Enqueue(db.StatusUpdate{AccountID: id, Online: true, RemoteIP: "10.0.0.1"})
	assert.Equal(t, 1, writer.Pending())

	writer.Flush()
	assert.Zero(t, writer.Pending())

	account, err := accounts.GetAccount("alice")
	require.NoError(t, err)
	assert.True(t, account.Online)
	assert.Equal(t, "10.0.0.1", account.LastIP)
}

func TestStatusWriterPreservesOrder(t *testing.T) {
	writer, accounts, _ := newTestStatusWriter(t)

	id, err := accounts.CreateAccount("alice", "pw", "a@b.c", "US")
	require.NoError(t, err)

	// Offline for the evicted session queued ahead of the winner's online
	// update leaves the account online after the batch.
	writer.Enqueue(db.StatusUpdate{AccountID: id, Online: false})
	writer.Enqueue(db.StatusUpdate{AccountID: id, Online: true, RemoteIP: "10.0.0.2"})
	writer.Flush()

	account, err := accounts.GetAccount("alice")
	require.NoError(t, err)
	assert.True(t, account.Online)
}

func TestStatusWriterSkipsZeroAccountID(t *testing.T) {
	writer, _, _ := newTestStatusWriter(t)

	writer.Enqueue(db.StatusUpdate{AccountID: 0, Online: true})
	assert.Zero(t, writer.Pending())
}

func TestStatusWriterDropsFailedBatch(t *testing.T) {
	writer, accounts, database := newTestStatusWriter(t)

	id, err := accounts.CreateAccount("alice", "pw", "a@b.c", "US")
	require.NoError(t, err)

	require.NoError(t, database.Close())

	writer.Enqueue(db.StatusUpdate{AccountID: id, Online: true, RemoteIP: "10.0.0.1"})
	writer.Flush()

	assert.Zero(t, writer.Pending())
}
