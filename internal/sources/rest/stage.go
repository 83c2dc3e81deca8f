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

package rest

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestion/pagination"
	"ingest-platform/internal/inventory"
)

// StageOptions 多阶段扫描中单个 REST 数据类型控制器的输出配置
type StageOptions struct {
	IntegrationType string
	DataType        string
	Scheme          AuthScheme
	Sink            ingestion.StorageSink
	OutputPageSize  int
	// PageSize 仅对 PagedStage 生效
	PageSize int
	Logger   *slog.Logger
}

func (o StageOptions) pagination() pagination.Options[json.RawMessage] {
	return pagination.Options[json.RawMessage]{
		IntegrationType:    o.IntegrationType,
		DataType:           o.DataType,
		Sink:               o.Sink,
		OutputPageSize:     o.OutputPageSize,
		SkipEmptyResults:   true,
		UniqueOutputFiles:  true,
		ResumableOnFailure: true,
		Logger:             o.Logger,
	}
}

// OpenFunc 打开一个数据类型的惰性条目序列
type OpenFunc[Q any] func(ctx context.Context, c *Client, integ *inventory.Integration, q Q) iter.Seq2[json.RawMessage, error]

// PageFunc 拉取第 page 页（从 0 开始）
type PageFunc[Q any] func(ctx context.Context, c *Client, integ *inventory.Integration, q Q, page, size int) ([]json.RawMessage, error)

// StreamStage 以 Streamed 策略消费 open 返回的序列
func StreamStage[Q any](clients *ClientFactory, o StageOptions, open OpenFunc[Q]) ingestion.DataController[Q] {
	return &streamStage[Q]{clients: clients, opts: o, open: open}
}

type streamStage[Q any] struct {
	clients *ClientFactory
	opts    StageOptions
	open    OpenFunc[Q]
}

func (s *streamStage[Q]) Ingest(ctx context.Context, jc ingestion.JobContext, q Q) (ingestion.Result, error) {
	client, integ, err := s.clients.ForIntegration(ctx, jc.IntegrationKey, s.opts.Scheme)
	if err != nil {
		return ingestion.Result{}, err
	}
	source := pagination.StreamSourceFunc[json.RawMessage, Q](func(ctx context.Context, q Q) (iter.Seq2[json.RawMessage, error], error) {
		return s.open(ctx, client, integ, q), nil
	})
	return ingestion.NewIntegrationController[Q](pagination.NewStreamed[json.RawMessage, Q](source, s.opts.pagination())).Ingest(ctx, jc, q)
}

func (s *streamStage[Q]) ParseQuery(raw any) (Q, error) {
	return ingestion.DecodeQuery[Q](raw)
}

// PagedStage 以 Numbered 策略逐页调用 fetch
func PagedStage[Q any](clients *ClientFactory, o StageOptions, fetch PageFunc[Q]) ingestion.DataController[Q] {
	return &pagedStage[Q]{clients: clients, opts: o, fetch: fetch}
}

type pagedStage[Q any] struct {
	clients *ClientFactory
	opts    StageOptions
	fetch   PageFunc[Q]
}

// pageOf 将页码附加到任意 query 上
type pageOf[Q any] struct {
	Query Q
	Page  int
	Size  int
}

func (s *pagedStage[Q]) Ingest(ctx context.Context, jc ingestion.JobContext, q Q) (ingestion.Result, error) {
	client, integ, err := s.clients.ForIntegration(ctx, jc.IntegrationKey, s.opts.Scheme)
	if err != nil {
		return ingestion.Result{}, err
	}
	source := pagination.PagedSourceFunc[json.RawMessage, pageOf[Q]](func(ctx context.Context, pq pageOf[Q]) (pagination.Page[json.RawMessage], error) {
		items, err := s.fetch(ctx, client, integ, pq.Query, pq.Page, pq.Size)
		return pagination.Page[json.RawMessage]{Items: items, Number: pq.Page}, err
	})
	withPage := func(pq pageOf[Q], page, size int) pageOf[Q] {
		pq.Page, pq.Size = page, size
		return pq
	}
	strategy := pagination.NewNumbered[json.RawMessage, pageOf[Q]](source, withPage, s.opts.pagination(), pagination.WithPageSize(s.opts.PageSize))
	return ingestion.NewIntegrationController[pageOf[Q]](strategy).Ingest(ctx, jc, pageOf[Q]{Query: q})
}

func (s *pagedStage[Q]) ParseQuery(raw any) (Q, error) {
	return ingestion.DecodeQuery[Q](raw)
}
