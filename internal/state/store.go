package state

import (
	"strings"
	"sync"

	"github.com/terrapin-dev/terrapin/internal/ir"
)

// Store provides scoped, concurrency-safe access to state records during an
// apply. Access is serialized per resource address: two operations on the
// same record never interleave, while operations on different records do not
// contend. A record is committed only after the corresponding provider
// operation reported success, so the store never reflects a resource that
// does not exist remotely.
type Store struct {
	mu    sync.Mutex
	st    *ir.State
	index map[string]int
	locks map[string]*sync.Mutex
}

// NewStore wraps an in-memory state for the duration of an apply.
func NewStore(st *ir.State) *Store {
	s := &Store{
		st:    st,
		index: make(map[string]int),
		locks: make(map[string]*sync.Mutex),
	}
	for i, res := range st.Resources {
		s.index[res.Addr()] = i
	}
	return s
}

// LockRecord acquires the per-record lock for an address and returns the
// unlock function.
func (s *Store) LockRecord(addr string) func() {
	s.mu.Lock()
	l, ok := s.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		s.locks[addr] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns the state record for an address, if present.
func (s *Store) Get(addr string) (*ir.ResourceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[addr]
	if !ok {
		return nil, false
	}
	return s.st.Resources[idx], true
}

// Commit inserts or replaces a record. Call only after the provider
// operation succeeded.
func (s *Store) Commit(rec *ir.ResourceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := rec.Addr()
	if idx, ok := s.index[addr]; ok {
		s.st.Resources[idx] = rec
		return
	}
	s.index[addr] = len(s.st.Resources)
	s.st.Resources = append(s.st.Resources, rec)
}

// Remove deletes a record after a successful destroy.
func (s *Store) Remove(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[addr]
	if !ok {
		return
	}
	s.st.Resources = append(s.st.Resources[:idx], s.st.Resources[idx+1:]...)
	// Rebuild index after removal
	s.index = make(map[string]int, len(s.st.Resources))
	for i, res := range s.st.Resources {
		s.index[res.Addr()] = i
	}
}

// State returns the underlying state.
func (s *Store) State() *ir.State {
	return s.st
}

// ResolveReferences walks a property value and substitutes every
// ref://type/name/attribute string with the referenced record's output (or
// input) attribute. Unresolvable references are left as-is.
func (s *Store) ResolveReferences(v any) any {
	switch val := v.(type) {
	case string:
		if resolved, ok := s.resolveRef(val); ok {
			return resolved
		}
		return val
	case map[string]any:
		newMap := make(map[string]any, len(val))
		for k, item := range val {
			newMap[k] = s.ResolveReferences(item)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, item := range val {
			newSlice[i] = s.ResolveReferences(item)
		}
		return newSlice
	default:
		return v
	}
}

func (s *Store) resolveRef(ref string) (any, bool) {
	if !strings.HasPrefix(ref, "ref://") {
		return nil, false
	}
	parts := strings.SplitN(ref[len("ref://"):], "/", 3)
	if len(parts) < 3 {
		return nil, false
	}
	addr := parts[0] + "." + parts[1]
	attr := parts[2]

	rec, ok := s.Get(addr)
	if !ok {
		return nil, false
	}
	if val, ok := rec.Outputs[attr]; ok {
		return val, true
	}
	if val, ok := rec.Inputs[attr]; ok {
		return val, true
	}
	return nil, false
}
