// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore 内存暂存区，路径规则与 FileStore 一致；用于测试与单进程部署
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	data      []byte
	metadata  map[string]string
	createdAt time.Time
}

// NewMemoryStore 创建内存暂存区
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

// normalize 去掉前导 "/" 与 "."、".." 片段；空路径非法
func normalize(p string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+p), "/")
	if clean == "" {
		return "", fmt.Errorf("非法对象路径: %q", p)
	}
	return clean, nil
}

// Put 覆盖写入；size 仅作容量提示
func (s *MemoryStore) Put(ctx context.Context, p string, data io.Reader, size int64, metadata map[string]string) error {
	key, err := normalize(p)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, data); err != nil {
		return fmt.Errorf("读取对象 %s 失败: %w", key, err)
	}

	s.mu.Lock()
	s.entries[key] = memEntry{data: buf.Bytes(), metadata: maps.Clone(metadata), createdAt: s.now()}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) lookup(p string) (string, memEntry, error) {
	key, err := normalize(p)
	if err != nil {
		return "", memEntry{}, err
	}
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return key, memEntry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return key, e, nil
}

// Get 返回对象内容的只读副本
func (s *MemoryStore) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	_, e, err := s.lookup(p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

// Delete 删除对象
func (s *MemoryStore) Delete(ctx context.Context, p string) error {
	key, _, err := s.lookup(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// List 按路径字典序返回 prefix 下的对象
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ObjectInfo
	for _, key := range slices.Sorted(maps.Keys(s.entries)) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		e := s.entries[key]
		out = append(out, &ObjectInfo{
			Path:      key,
			Size:      int64(len(e.data)),
			Metadata:  maps.Clone(e.metadata),
			CreatedAt: e.createdAt.Unix(),
		})
	}
	return out, nil
}

// Exists 对象是否存在
func (s *MemoryStore) Exists(ctx context.Context, p string) (bool, error) {
	_, _, err := s.lookup(p)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetMetadata 元数据副本
func (s *MemoryStore) GetMetadata(ctx context.Context, p string) (map[string]string, error) {
	_, e, err := s.lookup(p)
	if err != nil {
		return nil, err
	}
	return maps.Clone(e.metadata), nil
}

// Close 无资源需要释放
func (s *MemoryStore) Close() error { return nil }
