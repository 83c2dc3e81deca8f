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

	"ingest-platform/internal/ingestion"
	"ingest-platform/pkg/metrics"
)

// SinglePage 一次调用取回全部结果，至多写入一次
type SinglePage[T, Q any] struct {
	opts   Options[T]
	source SingleSource[T, Q]
}

// NewSinglePage 创建单页策略；未指定 EmptyPagePredicate 时 nil、空集合与零值视为空
func NewSinglePage[T, Q any](source SingleSource[T, Q], opts Options[T]) *SinglePage[T, Q] {
	if opts.EmptyPagePredicate == nil {
		opts.EmptyPagePredicate = func(batch []T) bool {
			for _, it := range batch {
				if !isZeroItem(it) {
					return false
				}
			}
			return true
		}
	}
	opts.OutputPageSize = 1
	return &SinglePage[T, Q]{opts: opts, source: source}
}

// IngestAllPages 实现 ingestion.PaginationStrategy
func (s *SinglePage[T, Q]) IngestAllPages(ctx context.Context, jc ingestion.JobContext, key ingestion.IntegrationKey, query Q) (ingestion.Result, error) {
	logger := s.opts.logger().With("job_id", jc.JobID, "integration_id", key.IntegrationID)
	b := newBatcher(s.opts, jc)
	item, err := s.source.FetchOne(ctx, query)
	if err != nil {
		logger.Error("拉取失败", "error", err)
		return ingestion.Result{}, b.fetchFailure(ctx, err)
	}
	metrics.PagesFetched.WithLabelValues(s.opts.IntegrationType, s.opts.DataType).Inc()
	if err := b.write(ctx, []T{item}); err != nil {
		return ingestion.Result{}, err
	}
	return b.result(), nil
}
