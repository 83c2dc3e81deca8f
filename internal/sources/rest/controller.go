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
	"fmt"
	"log/slog"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestion/pagination"
	"ingest-platform/pkg/config"
)

// Controller 配置驱动的单数据类型 REST 控制器
type Controller struct {
	cfg            config.RestControllerConfig
	clients        *ClientFactory
	sink           ingestion.StorageSink
	outputPageSize int
	logger         *slog.Logger
}

// NewController 校验配置并创建控制器
func NewController(cfg config.RestControllerConfig, clients *ClientFactory, sink ingestion.StorageSink, outputPageSize int, logger *slog.Logger) (*Controller, error) {
	if cfg.Name == "" || cfg.Path == "" || cfg.DataType == "" {
		return nil, fmt.Errorf("rest controller 需要 name、path 与 data_type")
	}
	switch cfg.Pagination {
	case "", "page", "offset", "single":
	default:
		return nil, fmt.Errorf("rest controller %s: 不支持的分页方式 %q", cfg.Name, cfg.Pagination)
	}
	if cfg.IntegrationType == "" {
		cfg.IntegrationType = "rest"
	}
	return &Controller{cfg: cfg, clients: clients, sink: sink, outputPageSize: outputPageSize, logger: logger}, nil
}

// Ingest 实现 ingestion.DataController
func (c *Controller) Ingest(ctx context.Context, jc ingestion.JobContext, q Query) (ingestion.Result, error) {
	client, _, err := c.clients.ForIntegration(ctx, jc.IntegrationKey, AuthBearer)
	if err != nil {
		return ingestion.Result{}, err
	}
	opts := pagination.Options[json.RawMessage]{
		IntegrationType:   c.cfg.IntegrationType,
		DataType:          c.cfg.DataType,
		Sink:              c.sink,
		OutputPageSize:    c.outputPageSize,
		SkipEmptyResults:  true,
		UniqueOutputFiles: true,
		Logger:            c.logger,
	}
	var strategy ingestion.PaginationStrategy[Query]
	switch c.cfg.Pagination {
	case "single":
		strategy = pagination.NewSinglePage[[]json.RawMessage, Query](SingleSource(client, c.cfg.Path, c.cfg.ItemsField),
			pagination.Options[[]json.RawMessage]{
				IntegrationType: opts.IntegrationType, DataType: opts.DataType, Sink: opts.Sink,
				SkipEmptyResults: true, UniqueOutputFiles: true, Logger: c.logger,
			})
	default:
		style := PageStyle{
			Offset:    c.cfg.Pagination == "offset",
			PageParam: c.cfg.PageParam,
			SizeParam: c.cfg.SizeParam,
			FirstPage: c.cfg.FirstPage,
		}
		if style.PageParam == "" {
			style.PageParam = "page"
		}
		if style.SizeParam == "" {
			style.SizeParam = "per_page"
		}
		strategy = pagination.NewNumbered[json.RawMessage, Query](NumberedSource(client, c.cfg.Path, style, c.cfg.ItemsField),
			WithPage, opts, pagination.WithPageSize(c.cfg.PageSize))
	}
	return ingestion.NewIntegrationController[Query](strategy).Ingest(ctx, jc, q)
}

// ParseQuery 实现 ingestion.DataController
func (c *Controller) ParseQuery(raw any) (Query, error) {
	return ingestion.DecodeQuery[Query](raw)
}

// Name 注册名
func (c *Controller) Name() string { return c.cfg.Name }
