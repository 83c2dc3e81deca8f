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
	"ingest-platform/pkg/tracing"
)

// PageQueryFunc 将 query 映射为第 page 页（从 0 开始）的请求
type PageQueryFunc[Q any] func(query Q, page, pageSize int) Q

// Numbered 按页码逐页请求，遇到条目数少于页大小的页即停止
type Numbered[T, Q any] struct {
	opts      Options[T]
	source    PagedSource[T, Q]
	pageQuery PageQueryFunc[Q]
	pageSize  int
	maxPages  int
}

// NumberedOption Numbered 选项
type NumberedOption func(*numberedConfig)

type numberedConfig struct {
	pageSize int
	maxPages int
}

// WithPageSize 上游页大小
func WithPageSize(n int) NumberedOption {
	return func(c *numberedConfig) { c.pageSize = n }
}

// WithMaxPages 最多请求的页数，0 表示不限
func WithMaxPages(n int) NumberedOption {
	return func(c *numberedConfig) { c.maxPages = n }
}

// NewNumbered 创建页码分页策略
func NewNumbered[T, Q any](source PagedSource[T, Q], pageQuery PageQueryFunc[Q], opts Options[T], options ...NumberedOption) *Numbered[T, Q] {
	cfg := numberedConfig{pageSize: DefaultPageSize}
	for _, o := range options {
		o(&cfg)
	}
	if cfg.pageSize <= 0 {
		cfg.pageSize = DefaultPageSize
	}
	return &Numbered[T, Q]{opts: opts, source: source, pageQuery: pageQuery, pageSize: cfg.pageSize, maxPages: cfg.maxPages}
}

// IngestAllPages 实现 ingestion.PaginationStrategy；第 K+1 页只在第 K 页的批次写完后请求
func (s *Numbered[T, Q]) IngestAllPages(ctx context.Context, jc ingestion.JobContext, key ingestion.IntegrationKey, query Q) (ingestion.Result, error) {
	logger := s.opts.logger().With("job_id", jc.JobID, "integration_id", key.IntegrationID)
	b := newBatcher(s.opts, jc)
	page := 0
	for {
		if s.maxPages > 0 && page >= s.maxPages {
			logger.Warn("达到最大页数限制，停止分页", "max_pages", s.maxPages)
			break
		}
		if err := ctx.Err(); err != nil {
			return ingestion.Result{}, b.fetchFailure(ctx, err)
		}
		pctx, span := tracing.StartPageSpan(ctx, s.opts.DataType, page)
		p, err := s.source.FetchMany(pctx, s.pageQuery(query, page, s.pageSize))
		tracing.EndSpan(span, err)
		if err != nil {
			logger.Error("拉取分页失败", "page", page, "error", err)
			return ingestion.Result{}, b.fetchFailure(ctx, err)
		}
		metrics.PagesFetched.WithLabelValues(s.opts.IntegrationType, s.opts.DataType).Inc()
		if err := b.add(ctx, p.Items...); err != nil {
			return ingestion.Result{}, err
		}
		logger.Debug("已拉取分页", "page", page, "items", len(p.Items))
		if len(p.Items) < s.pageSize {
			break
		}
		page++
	}
	if err := b.finish(ctx); err != nil {
		return ingestion.Result{}, err
	}
	logger.Info("分页摄取完成", "pages", page+1, "artifacts", len(b.handles))
	return b.result(), nil
}
