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

package pagination

import (
	"context"
	"iter"
)

// Page 一页有序条目及其页码/游标；条目对核心层不透明
type Page[T any] struct {
	Items      []T
	Number     int
	NextCursor string
}

// SingleSource 一次调用返回全部结果
type SingleSource[T, Q any] interface {
	FetchOne(ctx context.Context, query Q) (T, error)
}

// PagedSource 按 query 中的页码返回一页
type PagedSource[T, Q any] interface {
	FetchMany(ctx context.Context, query Q) (Page[T], error)
}

// StreamSource 返回一个惰性、不可重启、有限的条目序列
type StreamSource[T, Q any] interface {
	Stream(ctx context.Context, query Q) (iter.Seq2[T, error], error)
}

// SingleSourceFunc 函数适配 SingleSource
type SingleSourceFunc[T, Q any] func(ctx context.Context, query Q) (T, error)

func (f SingleSourceFunc[T, Q]) FetchOne(ctx context.Context, query Q) (T, error) { return f(ctx, query) }

// PagedSourceFunc 函数适配 PagedSource
type PagedSourceFunc[T, Q any] func(ctx context.Context, query Q) (Page[T], error)

func (f PagedSourceFunc[T, Q]) FetchMany(ctx context.Context, query Q) (Page[T], error) {
	return f(ctx, query)
}

// StreamSourceFunc 函数适配 StreamSource
type StreamSourceFunc[T, Q any] func(ctx context.Context, query Q) (iter.Seq2[T, error], error)

func (f StreamSourceFunc[T, Q]) Stream(ctx context.Context, query Q) (iter.Seq2[T, error], error) {
	return f(ctx, query)
}

// SliceStream 将切片包装为序列
func SliceStream[T any](items []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// CursorStream 惰性跟随游标拉取，直到 NextCursor 为空或某页为空；
// 下一页只在消费者读完当前页后才请求
func CursorStream[T any](ctx context.Context, fetch func(ctx context.Context, cursor string) (Page[T], error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		cursor := ""
		for {
			if err := ctx.Err(); err != nil {
				var zero T
				yield(zero, err)
				return
			}
			page, err := fetch(ctx, cursor)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, it := range page.Items {
				if !yield(it, nil) {
					return
				}
			}
			if page.NextCursor == "" || len(page.Items) == 0 || page.NextCursor == cursor {
				return
			}
			cursor = page.NextCursor
		}
	}
}

// FlatMap 对外层序列的每个元素展开一个内层序列（如：每个仓库 -> 其全部 PR）
func FlatMap[A, B any](outer iter.Seq2[A, error], inner func(A) iter.Seq2[B, error]) iter.Seq2[B, error] {
	return func(yield func(B, error) bool) {
		for a, err := range outer {
			if err != nil {
				var zero B
				yield(zero, err)
				return
			}
			for b, err := range inner(a) {
				if !yield(b, err) || err != nil {
					return
				}
			}
		}
	}
}
