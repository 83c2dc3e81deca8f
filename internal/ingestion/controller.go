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

package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DataController 将类型化的 Query 绑定到摄取行为
type DataController[Q any] interface {
	Ingest(ctx context.Context, jc JobContext, query Q) (Result, error)
	ParseQuery(raw any) (Q, error)
}

// PaginationStrategy 将一次逻辑拉取转换为 1..N 次 sink 写入
type PaginationStrategy[Q any] interface {
	IngestAllPages(ctx context.Context, jc JobContext, key IntegrationKey, query Q) (Result, error)
}

// Validator 可选的 Query 校验
type Validator interface {
	Validate() error
}

// DecodeQuery 将任意未类型化负载（json.RawMessage、[]byte、string、map、结构体）转换为 Q
func DecodeQuery[Q any](raw any) (Q, error) {
	var q Q
	var data []byte
	switch v := raw.(type) {
	case nil:
		return q, &ParseError{What: "query", Err: errors.New("query 为空")}
	case Q:
		q = v
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return q, &ParseError{What: "query", Err: err}
		}
		data = b
	}
	if data != nil {
		if err := json.Unmarshal(bytes.TrimSpace(data), &q); err != nil {
			return q, &ParseError{What: "query", Err: err}
		}
	}
	if v, ok := any(&q).(Validator); ok {
		if err := v.Validate(); err != nil {
			return q, &ParseError{What: "query", Err: err}
		}
	}
	return q, nil
}

// IntegrationController 一个控制器对应一个 (integration type, data type)，委托给唯一的分页策略
type IntegrationController[Q any] struct {
	strategy PaginationStrategy[Q]
}

// NewIntegrationController 创建委托给 strategy 的控制器
func NewIntegrationController[Q any](strategy PaginationStrategy[Q]) *IntegrationController[Q] {
	return &IntegrationController[Q]{strategy: strategy}
}

// Ingest 实现 DataController
func (c *IntegrationController[Q]) Ingest(ctx context.Context, jc JobContext, query Q) (Result, error) {
	return c.strategy.IngestAllPages(ctx, jc, jc.IntegrationKey, query)
}

// ParseQuery 实现 DataController
func (c *IntegrationController[Q]) ParseQuery(raw any) (Q, error) {
	return DecodeQuery[Q](raw)
}

// Controller 去除 Query 类型参数后的控制器，供注册表与 Worker 使用
type Controller interface {
	IngestRaw(ctx context.Context, jc JobContext, rawQuery any) (Result, error)
}

type erased[Q any] struct {
	inner DataController[Q]
}

func (e erased[Q]) IngestRaw(ctx context.Context, jc JobContext, rawQuery any) (Result, error) {
	q, err := e.inner.ParseQuery(rawQuery)
	if err != nil {
		return Result{}, err
	}
	return e.inner.Ingest(ctx, jc, q)
}

// Erase 包装类型化控制器
func Erase[Q any](c DataController[Q]) Controller {
	return erased[Q]{inner: c}
}

// ErrControllerNotFound 注册表中不存在该名称
var ErrControllerNotFound = errors.New("ingestion: controller not found")

// Registry 控制器名称 -> Controller
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]Controller
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]Controller)}
}

// Register 注册控制器，重名返回错误
func (r *Registry) Register(name string, c Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.controllers[name]; ok {
		return fmt.Errorf("controller %q 已注册", name)
	}
	r.controllers[name] = c
	return nil
}

// Get 按名称查找
func (r *Registry) Get(name string) (Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrControllerNotFound, name)
	}
	return c, nil
}

// Names 已注册名称（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.controllers))
	for n := range r.controllers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
