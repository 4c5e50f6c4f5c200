// Package auth holds the identity the sync engine works for. Identity
// providers live outside this module; they report sign-in and sign-out to
// the Gate and the engine reacts to its state.
package auth

import (
	"errors"
	"strings"
	"sync"
)

// ErrInvalidIdentity is returned when an identity has no uid.
var ErrInvalidIdentity = errors.New("identity must have a uid")

// Identity is an authenticated user.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// State is a point-in-time view of the gate. Until Resolved is true the
// identity provider has not answered yet and the engine stays inert.
type State struct {
	Identity *Identity `json:"identity"`
	Resolved bool      `json:"resolved"`
}

// SignedIn reports whether a concrete identity is present.
func (s State) SignedIn() bool {
	return s.Resolved && s.Identity != nil
}

// UID returns the identity's uid or "".
func (s State) UID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.UID
}

// Gate tracks the current identity and notifies subscribers of every
// transition, in order, on the goroutine that caused it.
type Gate struct {
	mu    sync.Mutex
	state State

	notifyMu     sync.Mutex
	listenersMu  sync.RWMutex
	listeners    map[int]func(State)
	nextListener int
}

// NewGate returns a gate in the unresolved state.
func NewGate() *Gate {
	return &Gate{listeners: make(map[int]func(State))}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyState(g.state)
}

// Subscribe registers fn and returns a function that removes it.
func (g *Gate) Subscribe(fn func(State)) func() {
	g.listenersMu.Lock()
	id := g.nextListener
	g.nextListener++
	g.listeners[id] = fn
	g.listenersMu.Unlock()

	return func() {
		g.listenersMu.Lock()
		delete(g.listeners, id)
		g.listenersMu.Unlock()
	}
}

// SignIn resolves the gate with id. Signing in again with the same uid
// still notifies subscribers; they decide whether anything changed.
func (g *Gate) SignIn(id Identity) error {
	id.UID = strings.TrimSpace(id.UID)
	if id.UID == "" {
		return ErrInvalidIdentity
	}
	g.set(State{Identity: &id, Resolved: true})
	return nil
}

// SignOut resolves the gate with no identity.
func (g *Gate) SignOut() {
	g.set(State{Resolved: true})
}

// ResolveAnonymous marks the provider as answered with no signed-in user,
// e.g. on startup without a stored session.
func (g *Gate) ResolveAnonymous() {
	g.set(State{Resolved: true})
}

func (g *Gate) set(next State) {
	g.mu.Lock()
	g.state = next
	snapshot := copyState(next)

	g.notifyMu.Lock()
	g.mu.Unlock()
	defer g.notifyMu.Unlock()

	g.listenersMu.RLock()
	fns := make([]func(State), 0, len(g.listeners))
	for id := 0; id < g.nextListener; id++ {
		if fn, ok := g.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	g.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func copyState(s State) State {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}
