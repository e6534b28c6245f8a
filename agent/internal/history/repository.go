package history

import (
	"slices"
	"sync"
	"time"

	"github.com/linkscope/linkscope/pkg/types"
)

// Repository stores history entries in the order they were appended.
type Repository interface {
	Append(e types.HistoryEntry) error
	// List returns every entry, oldest first.
	List() ([]types.HistoryEntry, error)
	// Remove deletes the first entry whose timestamp equals ts and reports
	// whether one was found.
	Remove(ts time.Time) (bool, error)
	Clear() error
}

// MemoryStore is an in-process Repository.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []types.HistoryEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(e types.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) List() ([]types.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries), nil
}

func (m *MemoryStore) Remove(ts time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ok bool
	m.entries, ok = removeOne(m.entries, ts)
	return ok, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

// removeOne drops the first entry stamped ts.
func removeOne(entries []types.HistoryEntry, ts time.Time) ([]types.HistoryEntry, bool) {
	i := slices.IndexFunc(entries, func(e types.HistoryEntry) bool {
		return e.Timestamp.Equal(ts)
	})
	if i < 0 {
		return entries, false
	}
	return slices.Delete(entries, i, i+1), true
}
