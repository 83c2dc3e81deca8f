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

	pkgerrors "ingest-platform/pkg/errors"
)

var (
	// ErrVersionMismatch Append 时当前 version 与 expectedVersion 不一致
	ErrVersionMismatch = pkgerrors.Wrap(pkgerrors.ErrConflict, "jobstore: version mismatch on append")
	// ErrEmptyJobID Append 未指定 job
	ErrEmptyJobID = pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "jobstore: empty job id")
)

const maxAppendRetries = 5

// JobStore 摄取任务事件存储：按 job 的只追加事件流，供运维查看执行历史
type JobStore interface {
	// ListEvents 返回该 job 的完整事件列表（按序）及当前 version（事件条数；0 表示尚无事件）
	ListEvents(ctx context.Context, jobID string) ([]JobEvent, int, error)
	// Append 仅当 expectedVersion 等于当前 version 时追加，返回 newVersion；否则返回 ErrVersionMismatch
	Append(ctx context.Context, jobID string, expectedVersion int, event JobEvent) (newVersion int, err error)
	// Watch 订阅该 job 的新事件，ctx 结束时关闭 channel
	Watch(ctx context.Context, jobID string) (<-chan JobEvent, error)
}

// Record 读取当前 version 后追加；并发追加导致版本冲突时重读重试
func Record(ctx context.Context, store JobStore, jobID string, event JobEvent) (int, error) {
	var lastErr error
	for range maxAppendRetries {
		_, version, err := store.ListEvents(ctx, jobID)
		if err != nil {
			return 0, err
		}
		newVersion, err := store.Append(ctx, jobID, version, event)
		if err == nil {
			return newVersion, nil
		}
		if !errors.Is(err, ErrVersionMismatch) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}
