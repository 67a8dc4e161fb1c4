package master

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/util"
)

// Registry holds the live server directory and expires entries whose pings
// have stopped.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*GameServer

	ttl     time.Duration
	store   *db.ServerStore
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRegistry creates the directory with the given entry TTL.
func NewRegistry(ttl time.Duration, store *db.ServerStore, m *metrics.Metrics) *Registry {
	return &Registry{
		servers: make(map[string]*GameServer),
		ttl:     ttl,
		store:   store,
		metrics: m,
		logger:  util.ComponentLogger("directory"),
	}
}

// Get returns the entry for an endpoint key.
func (r *Registry) Get(key string) (*GameServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	server, ok := r.servers[key]
	return server, ok
}

// Put inserts or replaces the entry for the server's endpoint.
func (r *Registry) Put(server *GameServer) {
	r.mu.Lock()
	r.servers[server.Key()] = server
	count := len(r.servers)
	r.mu.Unlock()

	r.metrics.ServersListed.Set(float64(count))
}

// Touch refreshes the ping timestamp for a validated entry. Pings from
// endpoints that never validated are ignored.
func (r *Registry) Touch(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	server, ok := r.servers[key]
	if !ok || !server.Validated {
		return false
	}
	server.LastPing = now
	return true
}

// Validate marks the entry for an endpoint as challenge-validated.
func (r *Registry) Validate(key string, now time.Time) (*GameServer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	server, ok := r.servers[key]
	if !ok {
		return nil, false
	}
	server.Validated = true
	server.LastPing = now
	server.LastRefreshed = now
	return server, true
}

// Snapshot returns the validated entries sorted by hostname.
func (r *Registry) Snapshot() []*GameServer {
	r.mu.RLock()
	servers := make([]*GameServer, 0, len(r.servers))
	for _, server := range r.servers {
		if server.Validated {
			servers = append(servers, server)
		}
	}
	r.mu.RUnlock()

	sort.Slice(servers, func(i, j int) bool { return servers[i].Hostname < servers[j].Hostname })
	return servers
}

// Len returns the number of entries, validated or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// Start sweeps expired entries on a timer until the context is cancelled.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep removes entries whose last ping is older than the TTL and marks
// them offline in the server store in one transaction. Entries stay removed
// from the directory even when the store update fails.
func (r *Registry) Sweep(now time.Time) {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var expired []db.ServerEndpoint
	for key, server := range r.servers {
		if server.LastPing.Before(cutoff) {
			delete(r.servers, key)
			expired = append(expired, db.ServerEndpoint{
				IP:        server.IP.String(),
				QueryPort: server.QueryPort,
			})
			r.logger.Debug().Str("server", key).Msg("expired from directory")
		}
	}
	count := len(r.servers)
	r.mu.Unlock()

	r.metrics.ServersListed.Set(float64(count))

	if len(expired) == 0 {
		return
	}

	if err := r.store.MarkServersOffline(expired); err != nil {
		r.logger.Error().Err(err).Int("servers", len(expired)).Msg("offline update failed")
	}
}
