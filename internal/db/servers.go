package db

import (
	"database/sql"
	"fmt"
	"time"
)

// ServerStore manages the directory of registered game servers.
type ServerStore struct {
	db *Database
}

// ServerRecord is one row of the server directory.
type ServerRecord struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	QueryPort  int    `json:"queryport"`
	LastUpdate int64  `json:"lastupdate"`
	Authorized bool   `json:"authorized"`
	Online     bool   `json:"online"`
	Plasma     bool   `json:"plasma"`
}

// NewServerStore creates the server store and migrates its schema.
func NewServerStore(database *Database) (*ServerStore, error) {
	store := &ServerStore{db: database}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate server schema: %w", err)
	}
	return store, nil
}

func (s *ServerStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS server (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			ip TEXT NOT NULL,
			port INTEGER NOT NULL,
			queryport INTEGER NOT NULL DEFAULT 0,
			lastupdate INTEGER NOT NULL DEFAULT 0,
			authorized INTEGER NOT NULL DEFAULT 0,
			online INTEGER NOT NULL DEFAULT 0,
			plasma INTEGER NOT NULL DEFAULT 0,
			UNIQUE (ip, port)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// AddOrUpdateServer upserts a validated game server keyed by ip and game
// port, marking it online and refreshing its name, query port and timestamp.
func (s *ServerStore) AddOrUpdateServer(name, ip string, port, queryPort int) error {
	_, err := s.db.Exec(`
		INSERT INTO server (name, ip, port, queryport, lastupdate, online)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (ip, port) DO UPDATE SET
			name = excluded.name,
			queryport = excluded.queryport,
			lastupdate = excluded.lastupdate,
			online = 1`,
		name, ip, port, queryPort, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("server upsert failed: %w", err)
	}
	return nil
}

// ServerEndpoint identifies a server for offline marking.
type ServerEndpoint struct {
	IP        string
	QueryPort int
}

// MarkServersOffline flags a batch of expired servers offline in a single
// transaction.
func (s *ServerStore) MarkServersOffline(endpoints []ServerEndpoint) error {
	if len(endpoints) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *sql.Tx) error {
		for _, ep := range endpoints {
			_, err := tx.Exec(
				`UPDATE server SET online = 0 WHERE ip = ? AND queryport = ?`,
				ep.IP, ep.QueryPort)
			if err != nil {
				return fmt.Errorf("offline update for %s:%d failed: %w", ep.IP, ep.QueryPort, err)
			}
		}
		return nil
	})
}

// GetLicenseFlag returns whether the server at ip/queryport carries the
// premium license flag. Unknown servers are unlicensed.
func (s *ServerStore) GetLicenseFlag(ip string, queryPort int) (bool, error) {
	var plasma int
	err := s.db.QueryRow(
		`SELECT plasma FROM server WHERE ip = ? AND queryport = ?`,
		ip, queryPort).Scan(&plasma)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return plasma != 0, nil
}

// ListServers returns every directory row, newest update first.
func (s *ServerStore) ListServers() ([]ServerRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, name, ip, port, queryport, lastupdate, authorized, online, plasma
		FROM server ORDER BY lastupdate DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []ServerRecord
	for rows.Next() {
		var r ServerRecord
		var authorized, online, plasma int
		if err := rows.Scan(&r.ID, &r.Name, &r.IP, &r.Port, &r.QueryPort,
			&r.LastUpdate, &authorized, &online, &plasma); err != nil {
			return nil, err
		}
		r.Authorized = authorized != 0
		r.Online = online != 0
		r.Plasma = plasma != 0
		servers = append(servers, r)
	}
	return servers, rows.Err()
}
