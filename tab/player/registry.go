package player

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the set of online player sessions. Iteration order is join
// order, which keeps packet fan-out deterministic across viewers.
type Registry struct {
	mu      sync.RWMutex
	ordered []*Player
	byID    map[uuid.UUID]*Player
}

// NewRegistry creates an empty player registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[uuid.UUID]*Player{}}
}

// Add inserts a player session into the registry. A session with the same
// UUID is replaced in place, keeping its original position.
func (r *Registry) Add(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.UUID()]; ok {
		for i, existing := range r.ordered {
			if existing.UUID() == p.UUID() {
				r.ordered[i] = p
				break
			}
		}
	} else {
		r.ordered = append(r.ordered, p)
	}
	r.byID[p.UUID()] = p
}

// Remove deletes the session with the given identifier and reports if it was
// present.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, p := range r.ordered {
		if p.UUID() == id {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return true
}

// Lookup returns the session with the given identifier.
func (r *Registry) Lookup(id uuid.UUID) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// All returns a snapshot of all sessions in join order. The returned slice is
// owned by the caller.
func (r *Registry) All() []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Player, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of sessions currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
