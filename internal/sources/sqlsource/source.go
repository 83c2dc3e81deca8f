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

// Package sqlsource 以 pgx 逐行流式读取 Postgres 查询结果作为 DataSource
package sqlsource

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ingest-platform/internal/ingestion"
)

// Querier pgxpool.Pool 与 pgx.Conn 共有的查询接口
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Row 一行结果：列名 -> 值
type Row map[string]any

// Query 时间窗口查询
type Query struct {
	IntegrationID string     `json:"integration_id,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
}

// Validate 实现 ingestion.Validator
func (q *Query) Validate() error {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return fmt.Errorf("to (%s) 早于 from (%s)", q.To.Format(time.RFC3339), q.From.Format(time.RFC3339))
	}
	return nil
}

// BindArgs 按名称生成位置参数
func BindArgs(names []string, jc ingestion.JobContext, q Query) ([]any, error) {
	if len(names) == 0 {
		names = []string{"from", "to"}
	}
	args := make([]any, 0, len(names))
	for _, n := range names {
		switch n {
		case "from":
			args = append(args, q.From)
		case "to":
			args = append(args, q.To)
		case "tenant_id":
			args = append(args, jc.IntegrationKey.TenantID)
		case "integration_id":
			args = append(args, jc.IntegrationKey.IntegrationID)
		default:
			return nil, fmt.Errorf("未知的查询参数 %q", n)
		}
	}
	return args, nil
}

// Stream 执行查询并返回惰性行序列；序列结束或消费者提前退出时关闭 rows
func Stream(ctx context.Context, db Querier, sql string, args ...any) (iter.Seq2[Row, error], error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return func(yield func(Row, error) bool) {
		defer rows.Close()
		fields := rows.FieldDescriptions()
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				yield(nil, err)
				return
			}
			row := make(Row, len(fields))
			for i, f := range fields {
				if i < len(values) {
					row[f.Name] = normalize(values[i])
				}
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}, nil
}

// normalize 将 pgx 的原生类型转换为可读的 JSON 值
func normalize(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}

// Pools 按 DSN 复用连接池
type Pools struct {
	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewPools 创建连接池集合
func NewPools() *Pools {
	return &Pools{pools: make(map[string]*pgxpool.Pool)}
}

// Get 返回 dsn 对应的连接池，首次使用时创建
func (p *Pools) Get(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[dsn]; ok {
		return pool, nil
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.pools[dsn] = pool
	return pool, nil
}

// Close 关闭全部连接池
func (p *Pools) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for dsn, pool := range p.pools {
		pool.Close()
		delete(p.pools, dsn)
	}
}
