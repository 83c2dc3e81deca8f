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

package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const watchPollInterval = 500 * time.Millisecond

// Schema ingest_job_events 表结构；(job_id, version) 唯一约束兜底并发追加
const Schema = `
CREATE TABLE IF NOT EXISTS ingest_job_events (
  id         TEXT PRIMARY KEY,
  job_id     TEXT NOT NULL,
  version    INT NOT NULL,
  type       TEXT NOT NULL,
  payload    JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (job_id, version)
);
`

// pgStore PostgreSQL 实现 JobStore
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 基于已有连接池创建事件存储
func NewPostgresStore(pool *pgxpool.Pool) JobStore {
	return &pgStore{pool: pool}
}

// Migrate 创建事件表（幂等）
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}

func (s *pgStore) ListEvents(ctx context.Context, jobID string) ([]JobEvent, int, error) {
	return s.listFrom(ctx, jobID, 0)
}

func (s *pgStore) listFrom(ctx context.Context, jobID string, afterVersion int) ([]JobEvent, int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, version, type, payload, created_at FROM ingest_job_events WHERE job_id = $1 AND version > $2 ORDER BY version`,
		jobID, afterVersion)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var events []JobEvent
	version := afterVersion
	for rows.Next() {
		var e JobEvent
		var typeStr string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.JobID, &e.Version, &typeStr, &payload, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Type = EventType(typeStr)
		if len(payload) > 0 {
			e.Payload = payload
		}
		version = e.Version
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return events, version, nil
}

// appendSQL 单语句 CAS：当前最大 version 等于 $2 时才插入 $2+1，否则不插入任何行
const appendSQL = `
INSERT INTO ingest_job_events (id, job_id, version, type, payload, created_at)
SELECT $1, $3, $2 + 1, $4, $5, $6
WHERE (SELECT COALESCE(MAX(version), 0) FROM ingest_job_events WHERE job_id = $3) = $2
`

func (s *pgStore) Append(ctx context.Context, jobID string, expectedVersion int, event JobEvent) (int, error) {
	if jobID == "" {
		return 0, ErrEmptyJobID
	}
	if event.ID == "" {
		event.ID = "ev-" + uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	var payload []byte
	if len(event.Payload) > 0 {
		payload = event.Payload
	}
	tag, err := s.pool.Exec(ctx, appendSQL, event.ID, expectedVersion, jobID, string(event.Type), payload, event.CreatedAt)
	if err != nil {
		// 并发插入同一 version 时由唯一约束拒绝
		if isUniqueViolation(err) {
			return 0, ErrVersionMismatch
		}
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrVersionMismatch
	}
	return expectedVersion + 1, nil
}

// Watch 轮询新事件；终态事件送出后结束
func (s *pgStore) Watch(ctx context.Context, jobID string) (<-chan JobEvent, error) {
	_, lastVersion, err := s.ListEvents(ctx, jobID)
	if err != nil {
		return nil, err
	}
	ch := make(chan JobEvent, watchChanBuffer)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(watchPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				events, version, err := s.listFrom(ctx, jobID, lastVersion)
				if err != nil {
					return
				}
				for _, e := range events {
					select {
					case ch <- e:
					case <-ctx.Done():
						return
					}
					if e.Type.Terminal() {
						return
					}
				}
				lastVersion = version
			}
		}
	}()
	return ch, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
