// Copyright 2026 fanjia1024
// In-memory secret store for tests and local runs

package secrets

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore 内存凭据源；Put 仅供测试与本地装配
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore 以 seed 初始化（key 同 Ref.Key）
func NewMemoryStore(seed map[string]string) *MemoryStore {
	s := &MemoryStore{secrets: make(map[string]string, len(seed))}
	maps.Copy(s.secrets, seed)
	return s
}

// Put 写入 secret
func (m *MemoryStore) Put(key, value string) {
	m.mu.Lock()
	m.secrets[key] = value
	m.mu.Unlock()
}

func (m *MemoryStore) Get(ctx context.Context, ref string) (string, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.secrets[r.Key()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return value, nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for _, key := range slices.Sorted(maps.Keys(m.secrets)) {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
