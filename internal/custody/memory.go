package custody

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store. Contents are lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]*Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: make(map[string][]*Entry)}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, s Submission) (*Entry, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chain := m.chains[s.EvidenceID]
	var prev *Entry
	if len(chain) > 0 {
		prev = chain[len(chain)-1]
	}
	e := newEntry(s, prev)
	m.chains[s.EvidenceID] = append(chain, e)

	cp := *e
	return &cp, nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(_ context.Context, evidenceID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[evidenceID]
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, evidenceID)
	}
	cp := *chain[len(chain)-1]
	return &cp, nil
}

// History implements Store.
func (m *MemoryStore) History(_ context.Context, evidenceID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[evidenceID]
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, evidenceID)
	}
	out := make([]*Entry, len(chain))
	for i, e := range chain {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

// All implements Store.
func (m *MemoryStore) All(_ context.Context) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Entry, 0, len(m.chains))
	for _, chain := range m.chains {
		cp := *chain[len(chain)-1]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].EvidenceID, out[j].EvidenceID) < 0
	})
	return out, nil
}

// Verify implements Store.
func (m *MemoryStore) Verify(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, chain := range m.chains {
		var v chainVerifier
		for _, e := range chain {
			if err := v.next(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Identifiers: len(m.chains)}
	for _, chain := range m.chains {
		st.Versions += len(chain)
	}
	return st, nil
}
