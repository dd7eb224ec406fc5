package realtime

import (
	"sync"

	"github.com/quickbite/delivery-core/internal/domain/user"
)

// binding is the identity a session announced after connecting.
type binding struct {
	userID string
	role   user.Role
}

// Registry maps live transport sessions to user identities, partitioned by
// user and by role. It is purely in-memory: a process restart clears it and
// clients re-register on reconnect. Multiple sessions per user are expected
// (multi-device); fan-out targets all of them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]binding
	byUser   map[string]map[string]struct{}
	byRole   map[user.Role]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]binding),
		byUser:   make(map[string]map[string]struct{}),
		byRole:   make(map[user.Role]map[string]struct{}),
	}
}

// Register binds a session to a user and role. Re-registering an existing
// session overwrites its previous binding.
func (r *Registry) Register(sessionID, userID string, role user.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[sessionID]; ok {
		r.removeLocked(sessionID, prev)
	}

	r.sessions[sessionID] = binding{userID: userID, role: role}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][sessionID] = struct{}{}
	if r.byRole[role] == nil {
		r.byRole[role] = make(map[string]struct{})
	}
	r.byRole[role][sessionID] = struct{}{}
}

// Unregister removes one session; other sessions of the same user stay live.
// Unknown sessions are ignored.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	r.removeLocked(sessionID, b)
}

func (r *Registry) removeLocked(sessionID string, b binding) {
	delete(r.sessions, sessionID)
	if set := r.byUser[b.userID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byUser, b.userID)
		}
	}
	if set := r.byRole[b.role]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byRole, b.role)
		}
	}
}

// SessionsFor returns all live session ids for a user.
func (r *Registry) SessionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.byUser[userID])
}

// SessionsForRole returns all live session ids for a role.
func (r *Registry) SessionsForRole(role user.Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.byRole[role])
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func keys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
