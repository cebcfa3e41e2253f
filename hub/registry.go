package hub

import (
	"sync"
	"time"

	"github.com/agent-hud/hub/protocol"
)

// UnknownAgentName is used when an agent registers without a name or a
// request arrives from a connection with no attached profile.
const UnknownAgentName = "Unknown Agent"

// Registry is the arena of live connections. All access to connection
// state and agent profiles goes through it; nothing else mutates a Conn
// after registration.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register adds a connection under its id with the given role. The
// role is assigned under the registry lock, and only once: a repeat
// register frame on a live connection fails with ErrDuplicateConn and
// leaves the existing role untouched.
func (r *Registry) Register(c *Conn, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID]; ok {
		return ErrDuplicateConn
	}
	c.Role = role
	r.conns[c.ID] = c
	return nil
}

// AttachProfile binds an agent profile to a registered connection.
// Returns false when the connection is not registered.
func (r *Registry) AttachProfile(id string, p *protocol.AgentProfile) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.Profile = p
	return true
}

// Unregister atomically removes and returns the connection, or nil if
// it was already removed. Exactly one caller observes a non-nil return
// per connection, which gates the disconnect fanout.
func (r *Registry) Unregister(id string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	delete(r.conns, id)
	return c
}

// Lookup returns the live connection for id, or nil.
func (r *Registry) Lookup(id string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// ListByRole snapshots the connections currently holding the given role.
// Sends to the snapshot happen outside the registry lock; a connection
// that closes in between fails its Send harmlessly.
func (r *Registry) ListByRole(role Role) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// TouchAgent marks an agent active and bumps its last-activity clock,
// returning a copy of the updated profile. Returns nil when the
// connection is unknown or has no profile.
func (r *Registry) TouchAgent(id string, now time.Time) *protocol.AgentProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok || c.Profile == nil {
		return nil
	}
	c.Profile.Status = protocol.AgentActive
	c.Profile.LastActivity = now
	snap := *c.Profile
	return &snap
}

// AgentName returns the registered name for an agent connection,
// falling back to UnknownAgentName.
func (r *Registry) AgentName(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok && c.Profile != nil && c.Profile.Name != "" {
		return c.Profile.Name
	}
	return UnknownAgentName
}

// Agents snapshots the profiles of all connected agents.
func (r *Registry) Agents() []protocol.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.AgentProfile, 0, len(r.conns))
	for _, c := range r.conns {
		if c.Role == RoleAgent && c.Profile != nil {
			out = append(out, *c.Profile)
		}
	}
	return out
}

// Len reports how many connections are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
