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
	"time"

	"ingest-platform/internal/ingestion"
	pkgerrors "ingest-platform/pkg/errors"
)

var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = pkgerrors.Wrap(pkgerrors.ErrNotFound, "ingestqueue: job")
	// ErrInvalidTransition 任务当前状态不允许该操作（如对已完成任务再次标记）
	ErrInvalidTransition = pkgerrors.Wrap(pkgerrors.ErrConflict, "ingestqueue: invalid status transition")
)

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job 一个摄取任务：某个集成上某个 controller 的一次（可多次尝试的）调用
type Job struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	IntegrationID string          `json:"integration_id"`
	Controller    string          `json:"controller"`
	Query         json.RawMessage `json:"query"`
	// IntermediateState 上一次可恢复失败留下的 checkpoint，下次认领时原样交给 controller
	IntermediateState json.RawMessage  `json:"intermediate_state,omitempty"`
	Result            ingestion.Result `json:"result"`
	// Attempt 已认领次数，认领时递增
	Attempt     int        `json:"attempt"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	WorkerID    string     `json:"worker_id,omitempty"`
	AvailableAt time.Time  `json:"available_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobContext 由任务行构造本次调用的 JobContext
func (j *Job) JobContext() ingestion.JobContext {
	return ingestion.JobContext{
		JobID:             j.ID,
		TenantID:          j.TenantID,
		IntegrationKey:    ingestion.IntegrationKey{TenantID: j.TenantID, IntegrationID: j.IntegrationID},
		Attempt:           j.Attempt,
		IntermediateState: j.IntermediateState,
	}
}

// Terminal 是否已进入终态
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// NewJob 入队参数
type NewJob struct {
	TenantID      string          `json:"tenant_id"`
	IntegrationID string          `json:"integration_id"`
	Controller    string          `json:"controller"`
	Query         json.RawMessage `json:"query"`
}

// Validate 校验入队参数
func (n NewJob) Validate() error {
	switch {
	case n.TenantID == "":
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "tenant_id 不能为空")
	case n.IntegrationID == "":
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "integration_id 不能为空")
	case n.Controller == "":
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "controller 不能为空")
	}
	return nil
}

// Queue 摄取任务队列：API 入队，Worker 认领、执行并回写结局
type Queue interface {
	// Enqueue 入队，返回 job id
	Enqueue(ctx context.Context, job NewJob) (string, error)
	// ClaimOne 原子认领一条 available_at 已到期的 pending 任务；无任务时返回 nil, nil
	ClaimOne(ctx context.Context, workerID string) (*Job, error)
	// MarkCompleted 成功：把 result 合并进已累积的结果并进入终态
	MarkCompleted(ctx context.Context, jobID string, result ingestion.Result) error
	// MarkResumable 可恢复失败：合并部分结果、保存 checkpoint，delay 后重新变为 pending
	MarkResumable(ctx context.Context, jobID string, partial ingestion.Result, state json.RawMessage, errMsg string, delay time.Duration) error
	// MarkFailed 致命失败：合并部分结果并进入终态
	MarkFailed(ctx context.Context, jobID string, partial ingestion.Result, errMsg string) error
	// Get 查询任务
	Get(ctx context.Context, jobID string) (*Job, error)
}

// accumulate 重试之间的结果累积；首个非空结果原样保存
func accumulate(prev, next ingestion.Result) ingestion.Result {
	if prev.Kind == "" || (prev.Kind != ingestion.ResultComposite && prev.IsEmpty()) {
		if next.Kind == "" {
			return ingestion.Empty()
		}
		return next
	}
	return ingestion.MergeResults(prev, next)
}

// keepState 可恢复失败未携带 checkpoint 时保留上一次的
func keepState(prev, next json.RawMessage) json.RawMessage {
	if len(next) == 0 {
		return prev
	}
	return next
}
