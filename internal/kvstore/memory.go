package kvstore

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process KV. It is durable only for the process
// lifetime.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]string
	quota int64
	used  int64

	// FailReads / FailWrites inject errors, used to exercise degraded paths.
	FailReads  error
	FailWrites error
}

// NewMemory returns an empty MemoryStore. quota <= 0 disables the quota.
func NewMemory(quota int64) *MemoryStore {
	return &MemoryStore{data: make(map[string]string), quota: quota}
}

// Get implements KV.
func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return "", false, m.FailReads
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements KV.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	delta := entrySize(key, value)
	if old, ok := m.data[key]; ok {
		delta -= entrySize(key, old)
	}
	if m.quota > 0 && delta > 0 && m.used+delta > m.quota {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.used += delta
	return nil
}

// Delete implements KV.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= entrySize(key, old)
		delete(m.data, key)
	}
	return nil
}

// Scan implements KV.
func (m *MemoryStore) Scan(prefix string, fn func(key, value string) error) error {
	m.mu.Lock()
	if m.FailReads != nil {
		m.mu.Unlock()
		return m.FailReads
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = m.data[k]
	}
	m.mu.Unlock()

	for i, k := range keys {
		if err := fn(k, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
