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
	"encoding/json"
	"time"
)

// EventType 摄取任务事件类型
type EventType string

const (
	JobCreated       EventType = "job_created"
	AttemptStarted   EventType = "attempt_started"
	AttemptResumable EventType = "attempt_resumable"
	JobCompleted     EventType = "job_completed"
	JobFailed        EventType = "job_failed"
)

// Terminal 是否为终态事件
func (t EventType) Terminal() bool {
	return t == JobCompleted || t == JobFailed
}

// JobEvent 任务事件流中的一条记录
type JobEvent struct {
	ID        string    `json:"id"`     // 单条事件唯一 ID；Append 时为空由实现生成
	JobID     string    `json:"job_id"` // 所属任务
	Version   int       `json:"version"`
	Type      EventType `json:"type"`
	Payload   []byte    `json:"payload,omitempty"` // JSON，见 AttemptPayload
	CreatedAt time.Time `json:"created_at"`
}

// AttemptPayload 尝试级事件的负载
type AttemptPayload struct {
	Controller      string   `json:"controller,omitempty"`
	Attempt         int      `json:"attempt,omitempty"`
	WorkerID        string   `json:"worker_id,omitempty"`
	Artifacts       int      `json:"artifacts,omitempty"`
	CompletedStages []string `json:"completed_stages,omitempty"`
	Error           string   `json:"error,omitempty"`
	DurationMs      int64    `json:"duration_ms,omitempty"`
}

// NewEvent 以 JSON 负载构造事件
func NewEvent(t EventType, payload any) (JobEvent, error) {
	ev := JobEvent{Type: t}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ev, err
	}
	ev.Payload = data
	return ev, nil
}
