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

package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 缓存未命中（不存在或已过期）
var ErrNotFound = errors.New("cache: not found")

// Store 以 JSON 保存值的 KV 缓存；ttl<=0 表示不过期
type Store interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get 未命中返回 ErrNotFound
	Get(ctx context.Context, key string, dest interface{}) error
	// Delete key 不存在时不报错
	Delete(ctx context.Context, key string) error
	Close() error
}
