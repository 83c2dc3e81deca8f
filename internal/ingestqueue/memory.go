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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ingest-platform/internal/ingestion"
)

// memoryQueue 进程内实现，供单机运行与测试
type memoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue() Queue {
	return newMemoryQueue(time.Now)
}

func newMemoryQueue(now func() time.Time) *memoryQueue {
	return &memoryQueue{jobs: make(map[string]*Job), now: now}
}

func (q *memoryQueue) Enqueue(ctx context.Context, nj NewJob) (string, error) {
	if err := nj.Validate(); err != nil {
		return "", err
	}
	now := q.now()
	job := &Job{
		ID:            uuid.New().String(),
		TenantID:      nj.TenantID,
		IntegrationID: nj.IntegrationID,
		Controller:    nj.Controller,
		Query:         cloneRaw(nj.Query),
		Result:        ingestion.Empty(),
		Status:        StatusPending,
		AvailableAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()
	return job.ID, nil
}

func (q *memoryQueue) ClaimOne(ctx context.Context, workerID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var ready []*Job
	for _, j := range q.jobs {
		if j.Status == StatusPending && !j.AvailableAt.After(now) {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}
	sort.Slice(ready, func(a, b int) bool {
		if !ready[a].AvailableAt.Equal(ready[b].AvailableAt) {
			return ready[a].AvailableAt.Before(ready[b].AvailableAt)
		}
		return ready[a].CreatedAt.Before(ready[b].CreatedAt)
	})
	j := ready[0]
	j.Status = StatusClaimed
	j.WorkerID = workerID
	j.Attempt++
	j.UpdatedAt = now
	return copyJob(j), nil
}

func (q *memoryQueue) MarkCompleted(ctx context.Context, jobID string, result ingestion.Result) error {
	return q.update(jobID, func(j *Job, now time.Time) {
		j.Result = accumulate(j.Result, result)
		j.Status = StatusCompleted
		j.Error = ""
		j.CompletedAt = &now
	})
}

func (q *memoryQueue) MarkResumable(ctx context.Context, jobID string, partial ingestion.Result, state json.RawMessage, errMsg string, delay time.Duration) error {
	return q.update(jobID, func(j *Job, now time.Time) {
		j.Result = accumulate(j.Result, partial)
		j.IntermediateState = cloneRaw(keepState(j.IntermediateState, state))
		j.Status = StatusPending
		j.Error = errMsg
		j.WorkerID = ""
		j.AvailableAt = now.Add(delay)
	})
}

func (q *memoryQueue) MarkFailed(ctx context.Context, jobID string, partial ingestion.Result, errMsg string) error {
	return q.update(jobID, func(j *Job, now time.Time) {
		j.Result = accumulate(j.Result, partial)
		j.Status = StatusFailed
		j.Error = errMsg
		j.CompletedAt = &now
	})
}

func (q *memoryQueue) Get(ctx context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyJob(j), nil
}

// update 只允许对已认领的任务回写结局
func (q *memoryQueue) update(jobID string, fn func(j *Job, now time.Time)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusClaimed {
		return ErrInvalidTransition
	}
	now := q.now()
	fn(j, now)
	j.UpdatedAt = now
	return nil
}

func copyJob(j *Job) *Job {
	c := *j
	c.Query = cloneRaw(j.Query)
	c.IntermediateState = cloneRaw(j.IntermediateState)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
