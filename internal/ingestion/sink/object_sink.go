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

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/storage/object"
)

// ObjectSink 以 JSON 对象形式将批次写入对象存储
type ObjectSink struct {
	store  object.Store
	prefix string
	now    func() time.Time
	newID  func() string
}

// Option ObjectSink 选项
type Option func(*ObjectSink)

// WithPrefix 对象路径前缀
func WithPrefix(prefix string) Option {
	return func(s *ObjectSink) { s.prefix = prefix }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *ObjectSink) { s.now = now }
}

// NewObjectSink 创建基于 object.Store 的 StorageSink
func NewObjectSink(store object.Store, opts ...Option) *ObjectSink {
	s := &ObjectSink{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Write 实现 ingestion.StorageSink
func (s *ObjectSink) Write(ctx context.Context, req ingestion.WriteRequest) (ingestion.ArtifactHandle, error) {
	data, err := json.Marshal(req.Batch)
	if err != nil {
		return ingestion.ArtifactHandle{}, fmt.Errorf("序列化批次失败: %w", err)
	}
	p := s.objectPath(req)
	metadata := map[string]string{
		"tenant_id":        req.Job.TenantID,
		"integration_id":   req.Job.IntegrationKey.IntegrationID,
		"integration_type": req.IntegrationType,
		"data_type":        req.DataType,
		"job_id":           req.Job.JobID,
		"item_count":       strconv.Itoa(req.ItemCount),
		"content_type":     "application/json",
	}
	if err := s.store.Put(ctx, p, bytes.NewReader(data), int64(len(data)), metadata); err != nil {
		return ingestion.ArtifactHandle{}, fmt.Errorf("写入 artifact %s 失败: %w", p, err)
	}
	return ingestion.ArtifactHandle{
		IntegrationType: req.IntegrationType,
		DataType:        req.DataType,
		Path:            p,
		ItemCount:       req.ItemCount,
		Size:            int64(len(data)),
		WrittenAt:       s.now().UTC(),
	}, nil
}

// objectPath {prefix}/{tenant}/{integration}/{type}/{data_type}/{job}/{data_type}.{seq}[.{uuid}].json
func (s *ObjectSink) objectPath(req ingestion.WriteRequest) string {
	name := fmt.Sprintf("%s.%d", req.DataType, req.Sequence)
	if req.Unique {
		name += "." + s.newID()
	}
	jobID := req.Job.JobID
	if jobID == "" {
		jobID = "adhoc"
	}
	return path.Join(s.prefix, req.Job.IntegrationKey.TenantID, req.Job.IntegrationKey.IntegrationID,
		req.IntegrationType, req.DataType, jobID, name+".json")
}
