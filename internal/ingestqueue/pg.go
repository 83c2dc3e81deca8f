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

package ingestqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ingest-platform/internal/ingestion"
)

// Schema ingest_jobs 表结构。query 与 intermediate_state 存为 TEXT：
// JSONB 会重排键、去掉空白，检查点需原样回传给下一次调用
const Schema = `
CREATE TABLE IF NOT EXISTS ingest_jobs (
  id                 TEXT PRIMARY KEY,
  tenant_id          TEXT NOT NULL,
  integration_id     TEXT NOT NULL,
  controller         TEXT NOT NULL,
  query              TEXT NOT NULL DEFAULT 'null',
  intermediate_state TEXT,
  result             JSONB NOT NULL DEFAULT '{"kind":"empty"}',
  attempt            INT NOT NULL DEFAULT 0,
  status             TEXT NOT NULL DEFAULT 'pending',
  error              TEXT,
  worker_id          TEXT,
  available_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  completed_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS ingest_jobs_ready_idx ON ingest_jobs (status, available_at);
`

var jobColumnList = []string{
	"id", "tenant_id", "integration_id", "controller", "query", "intermediate_state", "result",
	"attempt", "status", "error", "worker_id", "available_at", "created_at", "updated_at", "completed_at",
}

var jobColumns = strings.Join(jobColumnList, ", ")

// queuePg PostgreSQL 实现 Queue，使用 ingest_jobs 表
type queuePg struct {
	pool *pgxpool.Pool
}

// NewPostgresQueue 创建基于 PostgreSQL 的摄取队列；pool 可与事件存储共用
func NewPostgresQueue(pool *pgxpool.Pool) Queue {
	return &queuePg{pool: pool}
}

// Migrate 创建 ingest_jobs 表（幂等）
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}

func (q *queuePg) Enqueue(ctx context.Context, nj NewJob) (string, error) {
	if err := nj.Validate(); err != nil {
		return "", err
	}
	id := uuid.New().String()
	query := nj.Query
	if len(query) == 0 {
		query = json.RawMessage("null")
	}
	_, err := q.pool.Exec(ctx,
		`INSERT INTO ingest_jobs (id, tenant_id, integration_id, controller, query, status) VALUES ($1, $2, $3, $4, $5, 'pending')`,
		id, nj.TenantID, nj.IntegrationID, nj.Controller, string(query),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ClaimOne 原子认领一条到期的 pending 任务
func (q *queuePg) ClaimOne(ctx context.Context, workerID string) (*Job, error) {
	row := q.pool.QueryRow(ctx,
		`WITH sel AS (
  SELECT id FROM ingest_jobs WHERE status = 'pending' AND available_at <= now()
  ORDER BY available_at, created_at LIMIT 1 FOR UPDATE SKIP LOCKED
)
UPDATE ingest_jobs SET status = 'claimed', worker_id = $1, attempt = ingest_jobs.attempt + 1, updated_at = now()
FROM sel WHERE ingest_jobs.id = sel.id
RETURNING `+qualified(),
		workerID,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (q *queuePg) MarkCompleted(ctx context.Context, jobID string, result ingestion.Result) error {
	return q.transition(ctx, jobID, func(j *Job) (string, []any) {
		merged := accumulate(j.Result, result)
		return `UPDATE ingest_jobs SET status = 'completed', result = $2, error = NULL, updated_at = now(), completed_at = now() WHERE id = $1`,
			[]any{jobID, mustJSON(merged)}
	})
}

func (q *queuePg) MarkResumable(ctx context.Context, jobID string, partial ingestion.Result, state json.RawMessage, errMsg string, delay time.Duration) error {
	return q.transition(ctx, jobID, func(j *Job) (string, []any) {
		merged := accumulate(j.Result, partial)
		st := keepState(j.IntermediateState, state)
		var stArg any
		if len(st) > 0 {
			stArg = string(st)
		}
		return `UPDATE ingest_jobs SET status = 'pending', result = $2, intermediate_state = $3, error = $4, worker_id = NULL,
  available_at = now() + make_interval(secs => $5), updated_at = now() WHERE id = $1`,
			[]any{jobID, mustJSON(merged), stArg, errMsg, delay.Seconds()}
	})
}

func (q *queuePg) MarkFailed(ctx context.Context, jobID string, partial ingestion.Result, errMsg string) error {
	return q.transition(ctx, jobID, func(j *Job) (string, []any) {
		merged := accumulate(j.Result, partial)
		return `UPDATE ingest_jobs SET status = 'failed', result = $2, error = $3, updated_at = now(), completed_at = now() WHERE id = $1`,
			[]any{jobID, mustJSON(merged), errMsg}
	})
}

func (q *queuePg) Get(ctx context.Context, jobID string) (*Job, error) {
	job, err := scanJob(q.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// transition 在事务内锁定任务行、校验状态为 claimed，再执行 build 生成的更新
func (q *queuePg) transition(ctx context.Context, jobID string, build func(j *Job) (string, []any)) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1 FOR UPDATE`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrJobNotFound
		}
		return err
	}
	if job.Status != StatusClaimed {
		return ErrInvalidTransition
	}
	sql, args := build(job)
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j                 Job
		res               []byte
		query, status     string
		state             *string
		errText, workerID *string
		completedAt       *time.Time
	)
	err := row.Scan(&j.ID, &j.TenantID, &j.IntegrationID, &j.Controller, &query, &state, &res,
		&j.Attempt, &status, &errText, &workerID, &j.AvailableAt, &j.CreatedAt, &j.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.Query = json.RawMessage(query)
	if state != nil && *state != "" {
		j.IntermediateState = json.RawMessage(*state)
	}
	if len(res) > 0 {
		if err := json.Unmarshal(res, &j.Result); err != nil {
			return nil, fmt.Errorf("解析任务 %s 的 result 失败: %w", j.ID, err)
		}
	} else {
		j.Result = ingestion.Empty()
	}
	if errText != nil {
		j.Error = *errText
	}
	if workerID != nil {
		j.WorkerID = *workerID
	}
	j.CompletedAt = completedAt
	return &j, nil
}

// qualified 为 UPDATE ... FROM 的 RETURNING 子句加表名前缀
func qualified() string {
	cols := make([]string, len(jobColumnList))
	for i, c := range jobColumnList {
		cols[i] = "ingest_jobs." + c
	}
	return strings.Join(cols, ", ")
}

func mustJSON(r ingestion.Result) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"kind":"empty"}`)
	}
	return data
}
