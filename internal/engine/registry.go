package engine

import (
	"sort"
	"sync"

	"github.com/talgya/mini-city/internal/social"
)

// Slot guards one settlement. Every read-then-write against the settlement
// goes through Do, so a tick can never interleave with a construction.
type Slot struct {
	mu         sync.Mutex
	settlement *social.Settlement
}

// Do runs fn with exclusive access to the settlement. The lock is released on
// every return path, including a panic in fn.
func (sl *Slot) Do(fn func(s *social.Settlement) error) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return fn(sl.settlement)
}

// Read runs fn with exclusive access to the settlement, for work that cannot
// fail.
func (sl *Slot) Read(fn func(s *social.Settlement)) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fn(sl.settlement)
}

// Registry maps owner IDs to settlements. Its own mutex covers only the map;
// work on a settlement holds just that settlement's lock, so different owners
// never contend.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*Slot)}
}

// GetOrCreate returns the owner's slot, calling create to found the
// settlement on first access. Concurrent first accesses from the same owner
// create exactly one settlement. create runs under the registry lock and must
// not block. The bool reports whether the settlement was created by this call.
func (r *Registry) GetOrCreate(owner string, create func() *social.Settlement) (*Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sl, ok := r.slots[owner]; ok {
		return sl, false
	}
	sl := &Slot{settlement: create()}
	r.slots[owner] = sl
	return sl, true
}

// Lookup returns the owner's slot if the settlement exists.
func (r *Registry) Lookup(owner string) (*Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sl, ok := r.slots[owner]
	return sl, ok
}

// Owners returns all owner IDs, sorted.
func (r *Registry) Owners() []string {
	r.mu.Lock()
	owners := make([]string, 0, len(r.slots))
	for id := range r.slots {
		owners = append(owners, id)
	}
	r.mu.Unlock()

	sort.Strings(owners)
	return owners
}

// Len returns the number of settlements.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
