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

package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestqueue"
	"ingest-platform/internal/runtime/jobstore"
	"ingest-platform/internal/sources/sqlsource"
	"ingest-platform/pkg/config"
	pkgerrors "ingest-platform/pkg/errors"
	"ingest-platform/pkg/log"
)

// Bootstrap 统一初始化：供 api 与 worker 复用，避免在 cmd 内组装存储与控制器
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	Queue    ingestqueue.Queue
	Events   jobstore.JobStore
	Registry *ingestion.Registry

	sqlPool *sqlsource.Pools
}

// NewBootstrap 根据配置创建队列、事件存储与控制器注册表
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "初始化日志失败")
	}
	b := &Bootstrap{Config: cfg, Logger: logger, sqlPool: sqlsource.NewPools()}

	if err := b.initQueue(ctx); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.initEvents(ctx); err != nil {
		b.Close()
		return nil, err
	}
	b.Registry, err = NewControllerRegistry(cfg, b.sqlPool, logger.Logger)
	if err != nil {
		b.Close()
		return nil, pkgerrors.Wrap(err, "初始化控制器失败")
	}
	return b, nil
}

func (b *Bootstrap) initQueue(ctx context.Context) error {
	switch b.Config.Queue.Type {
	case "", "memory":
		b.Queue = ingestqueue.NewMemoryQueue()
	case "postgres":
		pool, err := b.connect(ctx, b.Config.Queue.DSN)
		if err != nil {
			return pkgerrors.Wrap(err, "初始化摄取队列(postgres) 失败")
		}
		if err := ingestqueue.Migrate(ctx, pool); err != nil {
			return pkgerrors.Wrap(err, "创建 ingest_jobs 表失败")
		}
		b.Queue = ingestqueue.NewPostgresQueue(pool)
	default:
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "不支持的队列类型 %q", b.Config.Queue.Type)
	}
	return nil
}

func (b *Bootstrap) initEvents(ctx context.Context) error {
	switch b.Config.JobStore.Type {
	case "", "memory":
		b.Events = jobstore.NewMemoryStore()
	case "postgres":
		pool, err := b.connect(ctx, b.Config.JobStore.DSN)
		if err != nil {
			return pkgerrors.Wrap(err, "初始化 JobStore 事件(postgres) 失败")
		}
		if err := jobstore.Migrate(ctx, pool); err != nil {
			return pkgerrors.Wrap(err, "创建事件表失败")
		}
		b.Events = jobstore.NewPostgresStore(pool)
	default:
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "不支持的 jobstore 类型 %q", b.Config.JobStore.Type)
	}
	return nil
}

// connect 同一 DSN 的队列与事件存储共用连接池
func (b *Bootstrap) connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "postgres 需要配置 dsn")
	}
	pool, err := b.sqlPool.Get(ctx, dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, err
	}
	return pool, nil
}

// Close 关闭连接池与日志文件
func (b *Bootstrap) Close() {
	b.sqlPool.Close()
	_ = b.Logger.Close()
}
