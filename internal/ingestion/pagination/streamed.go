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

// Streamed 消费一次 DataSource 调用返回的惰性序列，贪婪切分为 OutputPageSize 的批次
type Streamed[T, Q any] struct {
	opts   Options[T]
	source StreamSource[T, Q]
}

// NewStreamed 创建流式分页策略
func NewStreamed[T, Q any](source StreamSource[T, Q], opts Options[T]) *Streamed[T, Q] {
	return &Streamed[T, Q]{opts: opts, source: source}
}

// IngestAllPages 实现 ingestion.PaginationStrategy
func (s *Streamed[T, Q]) IngestAllPages(ctx context.Context, jc ingestion.JobContext, key ingestion.IntegrationKey, query Q) (ingestion.Result, error) {
	logger := s.opts.logger().With("job_id", jc.JobID, "integration_id", key.IntegrationID)
	b := newBatcher(s.opts, jc)
	seq, err := s.source.Stream(ctx, query)
	if err != nil {
		logger.Error("打开数据流失败", "error", err)
		return ingestion.Result{}, b.fetchFailure(ctx, err)
	}
	metrics.PagesFetched.WithLabelValues(s.opts.IntegrationType, s.opts.DataType).Inc()
	items := 0
	for item, err := range seq {
		if err != nil {
			logger.Error("数据流中断", "items", items, "error", err)
			return ingestion.Result{}, b.fetchFailure(ctx, err)
		}
		items++
		if err := b.add(ctx, item); err != nil {
			return ingestion.Result{}, err
		}
	}
	if err := b.finish(ctx); err != nil {
		return ingestion.Result{}, err
	}
	logger.Info("流式摄取完成", "items", items, "artifacts", len(b.handles))
	return b.result(), nil
}
