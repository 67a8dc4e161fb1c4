package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/battlespy-project/battlespy/internal/protocol"
)

// AccountStore manages player accounts for the login and search services.
type AccountStore struct {
	db *Database
}

// Account is a player record as stored in the player table.
// Password holds the lowercase hex MD5 of the plaintext password.
type Account struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Password   string `json:"-"`
	Email      string `json:"email"`
	Country    string `json:"country"`
	Banned     bool   `json:"banned"`
	Online     bool   `json:"online"`
	LastIP     string `json:"last_ip"`
	LastOnline int64  `json:"last_online"`
}

// StatusUpdate is one deferred online/offline transition for an account.
type StatusUpdate struct {
	AccountID int
	Online    bool
	RemoteIP  string
}

// NewAccountStore creates the account store and migrates its schema.
func NewAccountStore(database *Database) (*AccountStore, error) {
	store := &AccountStore{db: database}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate account schema: %w", err)
	}
	return store, nil
}

func (s *AccountStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS player (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT 'US',
			permban INTEGER NOT NULL DEFAULT 0,
			online INTEGER NOT NULL DEFAULT 0,
			lastip TEXT NOT NULL DEFAULT '',
			lastonline INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_player_email ON player(email);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// GetAccount fetches an account by name. Returns (nil, nil) when no such
// account exists.
func (s *AccountStore) GetAccount(name string) (*Account, error) {
	row := s.db.QueryRow(
		`SELECT id, name, password, email, country, permban, online, lastip, lastonline
		 FROM player WHERE name = ?`, name)
	return scanAccount(row)
}

// GetAccountsByEmailPass returns every account registered under the given
// email and password combination, used by the profile search service.
func (s *AccountStore) GetAccountsByEmailPass(email, password string) ([]Account, error) {
	rows, err := s.db.Query(
		`SELECT id, name, password, email, country, permban, online, lastip, lastonline
		 FROM player WHERE LOWER(email) = ? AND password = ?`,
		strings.ToLower(email), protocol.MD5Hex(password))
	if err != nil {
		return nil, fmt.Errorf("account lookup by email failed: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var banned, online int
		if err := rows.Scan(&a.ID, &a.Name, &a.Password, &a.Email, &a.Country,
			&banned, &online, &a.LastIP, &a.LastOnline); err != nil {
			return nil, err
		}
		a.Banned = banned != 0
		a.Online = online != 0
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AccountExists reports whether an account with the given name exists.
func (s *AccountStore) AccountExists(name string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM player WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AccountIDExists reports whether an account with the given id exists.
func (s *AccountStore) AccountIDExists(id int) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM player WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetAccountID resolves a name to its account id, 0 when unknown.
func (s *AccountStore) GetAccountID(name string) (int, error) {
	var id int
	err := s.db.QueryRow(`SELECT id FROM player WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateAccount inserts a new account and returns its id. The password is
// stored as its MD5 digest and the email is lowercased.
func (s *AccountStore) CreateAccount(name, password, email, country string) (int, error) {
	result, err := s.db.Exec(
		`INSERT INTO player (name, password, email, country) VALUES (?, ?, ?, ?)`,
		name, protocol.MD5Hex(password), strings.ToLower(email), country)
	if err != nil {
		return 0, fmt.Errorf("account insert failed: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	log.Info().Str("name", name).Int64("id", id).Msg("account created")
	return int(id), nil
}

// UpdateCountry sets the country code for an account.
func (s *AccountStore) UpdateCountry(id int, country string) error {
	_, err := s.db.Exec(`UPDATE player SET country = ? WHERE id = ?`, country, id)
	return err
}

// SetBanned sets or clears the permanent ban flag for an account.
func (s *AccountStore) SetBanned(name string, banned bool) error {
	result, err := s.db.Exec(`UPDATE player SET permban = ? WHERE name = ?`, banned, name)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("no account named %q", name)
	}
	return nil
}

// SetAccountID reassigns an account's id, used by the operator console to
// align ids with an external stats database.
func (s *AccountStore) SetAccountID(name string, newID int) error {
	exists, err := s.AccountIDExists(newID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("account id %d is already taken", newID)
	}

	result, err := s.db.Exec(`UPDATE player SET id = ? WHERE name = ?`, newID, name)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("no account named %q", name)
	}
	return nil
}

// DeleteAccount removes an account by name.
func (s *AccountStore) DeleteAccount(name string) error {
	result, err := s.db.Exec(`DELETE FROM player WHERE name = ?`, name)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("no account named %q", name)
	}
	return nil
}

// NumAccounts returns the total number of registered accounts.
func (s *AccountStore) NumAccounts() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM player`).Scan(&count)
	return count, err
}

// UpdateStatusBatch applies a batch of online status transitions in a single
// transaction, preserving the order the updates were enqueued in.
func (s *AccountStore) UpdateStatusBatch(updates []StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *sql.Tx) error {
		for _, u := range updates {
			if u.AccountID == 0 {
				continue
			}
			if u.Online {
				_, err := tx.Exec(
					`UPDATE player SET online = 1, lastip = ?, lastonline = ? WHERE id = ?`,
					u.RemoteIP, time.Now().Unix(), u.AccountID)
				if err != nil {
					return fmt.Errorf("status update for account %d failed: %w", u.AccountID, err)
				}
			} else {
				_, err := tx.Exec(`UPDATE player SET online = 0 WHERE id = ?`, u.AccountID)
				if err != nil {
					return fmt.Errorf("status update for account %d failed: %w", u.AccountID, err)
				}
			}
		}
		return nil
	})
}

// ResetOnlineStatus marks every account offline. Called once during shutdown
// so a restart does not leave phantom online players behind.
func (s *AccountStore) ResetOnlineStatus() error {
	_, err := s.db.Exec(`UPDATE player SET online = 0 WHERE online != 0`)
	return err
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var banned, online int
	err := row.Scan(&a.ID, &a.Name, &a.Password, &a.Email, &a.Country,
		&banned, &online, &a.LastIP, &a.LastOnline)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account scan failed: %w", err)
	}
	a.Banned = banned != 0
	a.Online = online != 0
	return &a, nil
}
