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

package ingestion

import "context"

// WriteRequest 一次批量写入
type WriteRequest struct {
	Job             JobContext
	IntegrationType string
	DataType        string
	// Batch 为待写入的条目切片，核心层从不解释其内容
	Batch     any
	ItemCount int
	// Sequence 本次策略调用内的写入序号，从 0 开始
	Sequence int
	// Unique 为 true 时每次写入都得到独立可寻址的 artifact，重试不会覆盖之前的写入
	Unique bool
}

// StorageSink 将一批条目持久化为可寻址的 artifact
type StorageSink interface {
	Write(ctx context.Context, req WriteRequest) (ArtifactHandle, error)
}
