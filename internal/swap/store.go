package swap

import (
	"sort"
	"sync"
)

// Store is the in-memory swap set. Each entry carries its own lock so one
// swap's chain round trips never block operations on another swap, while
// per-swap mutations stay single-writer.
type Store struct {
	mu    sync.RWMutex
	swaps map[[32]byte]*storeEntry
}

type storeEntry struct {
	mu   sync.Mutex
	swap *Swap
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{swaps: make(map[[32]byte]*storeEntry)}
}

// Put inserts a new swap. Inserting an id twice is a programming error and
// returns ErrInvalidParameters.
func (st *Store) Put(s *Swap) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.swaps[s.ID]; ok {
		return ErrInvalidParameters
	}
	st.swaps[s.ID] = &storeEntry{swap: s}
	return nil
}

// Get returns a snapshot of the swap. The snapshot is a shallow copy;
// callers must not mutate it.
func (st *Store) Get(id [32]byte) (*Swap, error) {
	st.mu.RLock()
	e, ok := st.swaps[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSwapNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := *e.swap
	return &snapshot, nil
}

// List returns snapshots of all swaps, newest first.
func (st *Store) List() []*Swap {
	st.mu.RLock()
	entries := make([]*storeEntry, 0, len(st.swaps))
	for _, e := range st.swaps {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]*Swap, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snapshot := *e.swap
		e.mu.Unlock()
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Rekey moves a swap from a provisional id to its final contract id. Used
// when the claimer side creates its record before the counterparty funds
// the contract.
func (st *Store) Rekey(oldID, newID [32]byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.swaps[oldID]
	if !ok {
		return ErrSwapNotFound
	}
	if _, ok := st.swaps[newID]; ok {
		return ErrInvalidParameters
	}
	delete(st.swaps, oldID)
	st.swaps[newID] = e
	return nil
}

// WithSwap runs fn with exclusive access to the swap. All mutations,
// including chain calls whose outcome decides the next status, happen
// inside fn so concurrent operations on the same swap serialise.
func (st *Store) WithSwap(id [32]byte, fn func(*Swap) error) error {
	st.mu.RLock()
	e, ok := st.swaps[id]
	st.mu.RUnlock()
	if !ok {
		return ErrSwapNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.swap)
}
