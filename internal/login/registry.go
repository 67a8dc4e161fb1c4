package login

import "sync"

// Registry tracks login sessions in two views: every live connection by its
// connection id, and authenticated sessions by account id. An account holds
// at most one authenticated session; a newer login evicts the older one.
type Registry struct {
	mu            sync.RWMutex
	processing    map[int64]*Client
	authenticated map[int]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		processing:    make(map[int64]*Client),
		authenticated: make(map[int]*Client),
	}
}

// Add registers a freshly accepted connection.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processing[c.connID] = c
}

// Promote moves a client into the authenticated view after a successful
// login. The new session always wins: it is inserted and any previous
// session for the same account is returned for the caller to disconnect.
func (r *Registry) Promote(c *Client) (evicted *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.authenticated[c.AccountID()]
	if old == c {
		return nil
	}
	r.authenticated[c.AccountID()] = c
	return old
}

// Remove drops a client from both views. Pointer comparison guards the
// authenticated slot so an evicted session cannot remove its successor.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.processing, c.connID)
	if r.authenticated[c.AccountID()] == c {
		delete(r.authenticated, c.AccountID())
	}
}

// DropProcessing removes a client from the processing view only, once the
// poll loop has observed it authenticated.
func (r *Registry) DropProcessing(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processing[c.connID] == c {
		delete(r.processing, c.connID)
	}
}

// ProcessingClients snapshots the pre-authentication view.
func (r *Registry) ProcessingClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.processing))
	for _, c := range r.processing {
		clients = append(clients, c)
	}
	return clients
}

// AuthenticatedClients snapshots the authenticated view.
func (r *Registry) AuthenticatedClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.authenticated))
	for _, c := range r.authenticated {
		clients = append(clients, c)
	}
	return clients
}

// Authenticated returns the live session for an account, if any.
func (r *Registry) Authenticated(accountID int) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.authenticated[accountID]
	return c, ok
}

// Counts returns the processing and authenticated session counts.
func (r *Registry) Counts() (processing, authenticated int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processing), len(r.authenticated)
}
