package call

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps call ids to their state. It is safe for concurrent use and is
// the only state shared between calls.
type Registry struct {
	calls map[string]*State
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		calls: make(map[string]*State),
	}
}

// Create inserts a new call in PREPARING and returns it. An empty id is
// replaced by a generated one.
func (r *Registry) Create(callID string, opts ...Option) (*State, error) {
	s := NewState(callID, opts...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.calls[s.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrCallExists, s.ID)
	}
	r.calls[s.ID] = s
	return s, nil
}

// Get returns a call by id.
func (r *Registry) Get(callID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.calls[callID]
	return s, ok
}

// Lookup is Get returning ErrCallNotFound for unknown ids.
func (r *Registry) Lookup(callID string) (*State, error) {
	s, ok := r.Get(callID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	return s, nil
}

// Remove deletes a call. It reports whether the call was present.
func (r *Registry) Remove(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.calls[callID]; !ok {
		return false
	}
	delete(r.calls, callID)
	return true
}

// Complete removes the call once every subscriber has received its terminal
// event. The returned channel is closed after the removal.
func (r *Registry) Complete(s *State) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-s.Events().Drained()
		r.Remove(s.ID)
	}()
	return done
}

// Len returns the number of registered calls.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// IDs returns the registered call ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.calls))
	for callID := range r.calls {
		ids = append(ids, callID)
	}
	sort.Strings(ids)
	return ids
}
