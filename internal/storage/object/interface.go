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
	"context"
	"errors"
	"io"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object: not found")

// IsNotFound 判断是否为对象不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store 暂存区对象存储；artifact 以 JSON 对象写入，路径以 "/" 分隔
type Store interface {
	Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	// List 返回 prefix 下的对象，按路径排序
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
	GetMetadata(ctx context.Context, path string) (map[string]string, error)
	Close() error
}

// ObjectInfo 对象信息
type ObjectInfo struct {
	Path      string            `json:"path"`
	Size      int64             `json:"size"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt int64             `json:"created_at"` // unix 秒
}
