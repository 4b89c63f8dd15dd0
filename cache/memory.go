package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory tier store.
type MemoryStore struct {
	mu    sync.RWMutex
	tiers map[string]*memoryTier
}

type memoryTier struct {
	name    string
	mu      sync.RWMutex
	entries map[string]Entry
	deleted bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tiers: make(map[string]*memoryTier),
	}
}

// Open returns the named tier, creating it if needed.
func (s *MemoryStore) Open(_ context.Context, name string) (Tier, error) {
	if err := ValidateTierName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tiers[name]
	if !ok {
		t = &memoryTier{name: name, entries: make(map[string]Entry)}
		s.tiers[name] = t
	}
	return t, nil
}

// Lookup returns the named tier if it exists.
func (s *MemoryStore) Lookup(_ context.Context, name string) (Tier, bool) {
	s.mu.RLock()
	t, ok := s.tiers[name]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return t, true
}

// Names lists all tiers in sorted order.
func (s *MemoryStore) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.tiers))
	for name := range s.tiers {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names, nil
}

// Delete removes the named tier. Handles already obtained for it miss on
// every subsequent read.
func (s *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	t, ok := s.tiers[name]
	delete(s.tiers, name)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}

	t.mu.Lock()
	t.deleted = true
	t.entries = nil
	t.mu.Unlock()
	return true, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func (t *memoryTier) Name() string {
	return t.name
}

func (t *memoryTier) Get(_ context.Context, key string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.deleted {
		return Entry{}, false
	}
	entry, ok := t.entries[key]
	if !ok {
		return Entry{}, false
	}
	return entry.Clone(), true
}

func (t *memoryTier) Put(_ context.Context, entry Entry) error {
	if err := ValidateKey(entry.Key); err != nil {
		return err
	}
	if entry.WrittenAt.IsZero() {
		entry.WrittenAt = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.deleted {
		return ErrTierNotFound
	}
	t.entries[entry.Key] = entry.Clone()
	return nil
}

func (t *memoryTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	if !t.deleted {
		delete(t.entries, key)
	}
	t.mu.Unlock()
	return nil
}

func (t *memoryTier) Keys(_ context.Context) ([]string, error) {
	t.mu.RLock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
