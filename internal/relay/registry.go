package relay

import "sync"

// Registry holds the authoritative set of live sessions, keyed by
// session id. Pure bookkeeping, no I/O. An id is present if and only
// if the session is currently live; removal is idempotent so racing
// teardown triggers can all call Unregister safely.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register inserts a session.
func (r *Registry) Register(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

// Unregister removes a session if present, else no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Count returns the current live-session count.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ForEach visits every registered session. The visitor runs on a
// snapshot taken under the lock, so a blocking visitor cannot stall
// concurrent registry mutations.
func (r *Registry) ForEach(visitor func(*Session)) {
	for _, s := range r.Sessions() {
		visitor(s)
	}
}

// Sessions returns a snapshot of all registered sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	return snapshot
}
