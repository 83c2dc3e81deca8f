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

package sqlsource

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestion/pagination"
	"ingest-platform/pkg/config"
)

// Controller 配置驱动的单数据类型 SQL 控制器，结果以 Streamed 策略分批写出
type Controller struct {
	cfg            config.SQLControllerConfig
	connect        func(ctx context.Context) (Querier, error)
	sink           ingestion.StorageSink
	outputPageSize int
	logger         *slog.Logger
}

// NewController 校验配置并创建控制器；连接池从 pools 按 DSN 取得
func NewController(cfg config.SQLControllerConfig, pools *Pools, sink ingestion.StorageSink, outputPageSize int, logger *slog.Logger) (*Controller, error) {
	if pools == nil {
		return nil, fmt.Errorf("sql controller %s: 缺少连接池", cfg.Name)
	}
	return newController(cfg, func(ctx context.Context) (Querier, error) {
		return pools.Get(ctx, cfg.DSN)
	}, sink, outputPageSize, logger)
}

func newController(cfg config.SQLControllerConfig, connect func(ctx context.Context) (Querier, error), sink ingestion.StorageSink, outputPageSize int, logger *slog.Logger) (*Controller, error) {
	if cfg.Name == "" || cfg.DataType == "" || cfg.Query == "" {
		return nil, fmt.Errorf("sql controller 需要 name、data_type 与 query")
	}
	if cfg.IntegrationType == "" {
		cfg.IntegrationType = "sql"
	}
	if _, err := BindArgs(cfg.Args, ingestion.JobContext{}, Query{}); err != nil {
		return nil, fmt.Errorf("sql controller %s: %w", cfg.Name, err)
	}
	return &Controller{cfg: cfg, connect: connect, sink: sink, outputPageSize: outputPageSize, logger: logger}, nil
}

// Ingest 实现 ingestion.DataController
func (c *Controller) Ingest(ctx context.Context, jc ingestion.JobContext, q Query) (ingestion.Result, error) {
	source := pagination.StreamSourceFunc[Row, Query](func(ctx context.Context, q Query) (iter.Seq2[Row, error], error) {
		args, err := BindArgs(c.cfg.Args, jc, q)
		if err != nil {
			return nil, err
		}
		db, err := c.connect(ctx)
		if err != nil {
			return nil, err
		}
		return Stream(ctx, db, c.cfg.Query, args...)
	})
	strategy := pagination.NewStreamed[Row, Query](source, pagination.Options[Row]{
		IntegrationType:    c.cfg.IntegrationType,
		DataType:           c.cfg.DataType,
		Sink:               c.sink,
		OutputPageSize:     c.outputPageSize,
		SkipEmptyResults:   true,
		UniqueOutputFiles:  true,
		ResumableOnFailure: true,
		Logger:             c.logger,
	})
	return ingestion.NewIntegrationController[Query](strategy).Ingest(ctx, jc, q)
}

// ParseQuery 实现 ingestion.DataController
func (c *Controller) ParseQuery(raw any) (Query, error) {
	return ingestion.DecodeQuery[Query](raw)
}

// Name 注册名
func (c *Controller) Name() string { return c.cfg.Name }
