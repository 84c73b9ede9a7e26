package persist

import (
	"context"
	"sync"

	"github.com/harborlock/credvault"
)

// MemoryStore is an in-process Store for tests and ephemeral tooling. Rows
// survive soft deletion exactly like in a durable backend, so audit
// retention semantics can be exercised without touching disk.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*credvault.Credential
}

var _ credvault.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*credvault.Credential)}
}

func (m *MemoryStore) Save(ctx context.Context, cred *credvault.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[cred.ID]; exists {
		return &ConflictError{ID: cred.ID}
	}

	m.records[cred.ID] = cloneCredential(cred)
	return nil
}

func (m *MemoryStore) FindOne(ctx context.Context, id string, owner credvault.Owner) (*credvault.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.records[id]
	if !ok || !cred.IsActive || !cred.Owner.Equals(owner) {
		return nil, credvault.ErrNotFound
	}
	return cloneCredential(cred), nil
}

func (m *MemoryStore) FindMany(ctx context.Context, owner credvault.Owner, provider credvault.Provider) ([]*credvault.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*credvault.Credential
	for _, cred := range m.records {
		if !cred.IsActive || !cred.Owner.Equals(owner) {
			continue
		}
		if provider != "" && cred.Provider != provider {
			continue
		}
		out = append(out, cloneCredential(cred))
	}
	sortByCreatedAt(out)
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, owner credvault.Owner, patch credvault.StorePatch) (*credvault.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.records[id]
	if !ok || !cred.IsActive || !cred.Owner.Equals(owner) {
		return nil, credvault.ErrNotFound
	}

	patch.Apply(cred)
	return cloneCredential(cred), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) GetType() string {
	return string(StoreTypeMemory)
}

// Dump returns every stored record regardless of tenancy or active state.
// Test helper; not part of the Store interface.
func (m *MemoryStore) Dump() []*credvault.Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*credvault.Credential, 0, len(m.records))
	for _, cred := range m.records {
		out = append(out, cloneCredential(cred))
	}
	return out
}
