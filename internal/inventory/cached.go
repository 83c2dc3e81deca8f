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

package inventory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/storage/cache"
)

// CachedService 在 inner 前加一层缓存；缓存故障只记录日志并回源
type CachedService struct {
	inner  Service
	cache  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedService 创建带缓存的 InventoryService
func NewCachedService(inner Service, store cache.Store, ttl time.Duration, logger *slog.Logger) *CachedService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedService{inner: inner, cache: store, ttl: ttl, logger: logger}
}

func cacheKey(key ingestion.IntegrationKey) string {
	return "inventory:" + key.TenantID + ":" + key.IntegrationID
}

// GetIntegration 实现 Service
func (s *CachedService) GetIntegration(ctx context.Context, key ingestion.IntegrationKey) (*Integration, error) {
	var cached Integration
	err := s.cache.Get(ctx, cacheKey(key), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.logger.Warn("读取集成缓存失败，回源查询", "integration", key.String(), "error", err)
	}
	integ, err := s.inner.GetIntegration(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cacheKey(key), integ, s.ttl); err != nil {
		s.logger.Warn("写入集成缓存失败", "integration", key.String(), "error", err)
	}
	return integ, nil
}
