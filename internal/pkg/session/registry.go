// Package session holds the per-viewer state table.
package session

import (
	"context"
	"sync"

	"github.com/endorses/mtmon/internal/pkg/rate"
	"github.com/endorses/mtmon/internal/pkg/source"
)

// State is a copy of one viewer's entry.
type State struct {
	ID        string
	Interface *source.Interface
	Previous  *rate.Sample
	Polling   bool

	// Generation increases on every interface selection. A poller stores
	// a sample only if the generation it read under is still current.
	Generation uint64

	// Owner is the claim token of the poller holding Polling, zero when
	// none does. Tokens are unique across the registry.
	Owner uint64
}

type entry struct {
	state  State
	ctx    context.Context
	cancel context.CancelFunc
}

// Registry maps session ids to their state. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	claims   uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Create adds a session with no interface selected. The session context is
// derived from parent and cancelled when the session is removed. An
// existing entry with the same id is replaced and its context cancelled.
func (r *Registry) Create(parent context.Context, id string) State {
	ctx, cancel := context.WithCancel(parent)
	e := &entry{state: State{ID: id}, ctx: ctx, cancel: cancel}

	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = e
	r.mu.Unlock()

	if old != nil {
		old.cancel()
	}
	return e.state
}

// Get returns a copy of the session state.
func (r *Registry) Get(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return State{}, false
	}
	return e.state.copy(), true
}

// Has reports whether the session exists.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Context returns the session context, cancelled on removal.
func (r *Registry) Context(id string) (context.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.ctx, true
}

// Select sets the session interface (nil clears it), clears its baseline
// and claims the polling flag. owner is non-zero only for the caller that
// moved the flag from false to true; that caller must start the poller and
// hand it the token. ok is false when the session does not exist.
func (r *Registry) Select(id string, iface *source.Interface) (owner uint64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return 0, false
	}
	e.state.Interface = nil
	if iface != nil {
		selected := *iface
		e.state.Interface = &selected
	}
	e.state.Previous = nil
	e.state.Generation++
	if e.state.Polling {
		return 0, true
	}
	r.claims++
	e.state.Polling = true
	e.state.Owner = r.claims
	return r.claims, true
}

// StorePrevious records sample as the session baseline if the session still
// exists and no selection happened since generation was read.
func (r *Registry) StorePrevious(id string, generation uint64, sample rate.Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.state.Generation != generation {
		return false
	}
	e.state.Previous = &sample
	return true
}

// Release clears the polling flag if owner still holds it. A poller whose
// claim was cleared and taken over by a newer one releases nothing.
func (r *Registry) Release(id string, owner uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok && e.state.Polling && e.state.Owner == owner {
		e.state.Polling = false
		e.state.Owner = 0
	}
}

// Remove deletes the session and cancels its context.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		e.cancel()
	}
	return ok
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the current session ids in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s State) copy() State {
	if s.Interface != nil {
		iface := *s.Interface
		s.Interface = &iface
	}
	if s.Previous != nil {
		prev := *s.Previous
		s.Previous = &prev
	}
	return s
}
