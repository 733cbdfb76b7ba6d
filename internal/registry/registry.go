// Package registry holds every live debug session, allocates the TCP
// ports owned sessions listen on, and coordinates bulk shutdown.
package registry

import (
	"context"
	"sync"

	"github.com/debugbridge/server/internal/bridgeerr"
	"github.com/debugbridge/server/internal/debugsession"
)

// DefaultAttachPort is reserved for external, user-controlled adapters
// (debugpy's own default). AllocatePort never hands it out when the port
// base is above it, as the default base (startingOwnedPort) is; the
// counter does not skip it for a lower base.
const DefaultAttachPort = 5678

// startingOwnedPort is the first port AllocatePort hands to an owned
// (server-spawned) adapter.
const startingOwnedPort = 5679

// Registry maps session id to Session and owns the monotonic port
// counter for owned sessions. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*debugsession.Session
	nextPort int
}

// New returns an empty Registry whose port counter starts at portBase
// (bridgeconfig.Config.ListenPortBase). A non-positive portBase falls
// back to startingOwnedPort.
func New(portBase int) *Registry {
	if portBase <= 0 {
		portBase = startingOwnedPort
	}
	return &Registry{
		sessions: make(map[string]*debugsession.Session),
		nextPort: portBase,
	}
}

// AllocatePort returns the next monotonic port for an owned session.
// Ports are never reused within the process lifetime.
func (r *Registry) AllocatePort() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	port := r.nextPort
	r.nextPort++
	return port
}

// Add registers session under its id and wires eviction: when the
// session reaches a terminal state, it removes itself from the Registry.
func (r *Registry) Add(session *debugsession.Session) {
	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	session.SetOnTerminal(func(s *debugsession.Session) {
		r.mu.Lock()
		delete(r.sessions, s.ID())
		r.mu.Unlock()
	})
}

// Get returns the session registered under id, or an invalid-argument
// error if none exists.
func (r *Registry) Get(id string) (*debugsession.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, bridgeerr.InvalidArgumentf("session_lookup", "no session with id %q", id)
	}
	return s, nil
}

// Remove evicts id without terminating it; used after a caller has
// already terminated the session directly.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Summary is one row of List's result, matching the list_debug_sessions
// tool's result shape.
type Summary struct {
	ID     string `json:"id"`
	Script string `json:"script"`
	State  string `json:"state"`
	Port   int    `json:"port"`
}

// List returns a summary of every live session plus an aggregate count
// by state.
func (r *Registry) List() ([]Summary, map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.sessions))
	counts := make(map[string]int)
	for _, s := range r.sessions {
		state := s.State().String()
		out = append(out, Summary{ID: s.ID(), Script: s.ScriptPath(), State: state, Port: s.Port()})
		counts[state]++
	}
	return out, counts
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown terminates every live session concurrently and waits for
// all of them to finish.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	sessions := make([]*debugsession.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(sessions))
	for _, s := range sessions {
		go func(s *debugsession.Session) {
			defer wg.Done()
			s.Terminate(ctx)
		}(s)
	}
	wg.Wait()
}
