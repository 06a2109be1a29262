package session

import (
	"context"
	"sync"
)

// Handle pairs a running session with the log of its events.
type Handle struct {
	Session *Session
	Events  *EventLog
}

// Registry holds at most one session per user.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Handle
	logSize  int
}

// NewRegistry creates an empty Registry whose event logs keep logSize events.
func NewRegistry(logSize int) *Registry {
	return &Registry{sessions: make(map[string]Handle), logSize: logSize}
}

// Start begins a session for userID, cancelling any session the user
// already has. Events go to the handle's log and then to opts.Sink, if set.
func (r *Registry) Start(ctx context.Context, userID string, opts Options) (Handle, Transition, error) {
	events := NewEventLog(r.logSize)
	next := opts.Sink
	opts.Sink = func(e Event) {
		events.Sink(e)
		if next != nil {
			next(e)
		}
	}

	s, t, err := Start(ctx, opts)
	if err != nil {
		return Handle{}, Transition{}, err
	}

	h := Handle{Session: s, Events: events}
	r.mu.Lock()
	prev, ok := r.sessions[userID]
	r.sessions[userID] = h
	r.mu.Unlock()

	if ok {
		prev.Session.Cancel()
	}
	return h, t, nil
}

// Get returns the user's current session.
func (r *Registry) Get(userID string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sessions[userID]
	return h, ok
}

// Remove cancels and forgets the user's session. It reports whether one existed.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	h, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if ok {
		h.Session.Cancel()
	}
	return ok
}

// Release forgets the user's session only if it is still s, without
// cancelling it. Hosts call it after a session completes.
func (r *Registry) Release(userID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.sessions[userID]; ok && h.Session == s {
		delete(r.sessions, userID)
	}
}
