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

import (
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactHandle 暂存区中一个已写入批次的定位信息
type ArtifactHandle struct {
	IntegrationType string    `json:"integration_type"`
	DataType        string    `json:"data_type"`
	Path            string    `json:"path"`
	ItemCount       int       `json:"item_count"`
	Size            int64     `json:"size"`
	WrittenAt       time.Time `json:"written_at"`
}

// ResultKind IngestionResult 的三种形态
type ResultKind string

const (
	ResultEmpty     ResultKind = "empty"
	ResultArtifacts ResultKind = "artifacts"
	ResultComposite ResultKind = "composite"
)

// Result 摄取结果的标签联合：Empty | Artifacts | Composite
type Result struct {
	Kind      ResultKind       `json:"kind"`
	Artifacts []ArtifactHandle `json:"artifacts,omitempty"`
	Results   []Result         `json:"results,omitempty"`
	// MergeStrategy 仅 Composite 使用，为下游消费者解析的符号标签
	MergeStrategy string `json:"merge_strategy,omitempty"`
}

// Empty 显式的空结果
func Empty() Result { return Result{Kind: ResultEmpty} }

// Artifacts 由写入顺序的 artifact 列表构成的结果；列表为空时返回 Empty
func Artifacts(handles ...ArtifactHandle) Result {
	if len(handles) == 0 {
		return Empty()
	}
	return Result{Kind: ResultArtifacts, Artifacts: append([]ArtifactHandle(nil), handles...)}
}

// Composite 组合结果，strategy 为空时使用默认合并策略
func Composite(strategy string, results []Result) Result {
	if strategy == "" {
		strategy = MergeStorageResultsList
	}
	return Result{Kind: ResultComposite, Results: append([]Result(nil), results...), MergeStrategy: strategy}
}

// IsEmpty 递归判断是否没有任何 artifact
func (r Result) IsEmpty() bool {
	switch r.Kind {
	case ResultArtifacts:
		return len(r.Artifacts) == 0
	case ResultComposite:
		for _, sub := range r.Results {
			if !sub.IsEmpty() {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// AllArtifacts 按顺序展开全部 artifact
func (r Result) AllArtifacts() []ArtifactHandle {
	var out []ArtifactHandle
	r.walk(func(h ArtifactHandle) { out = append(out, h) })
	return out
}

func (r Result) walk(fn func(ArtifactHandle)) {
	switch r.Kind {
	case ResultArtifacts:
		for _, h := range r.Artifacts {
			fn(h)
		}
	case ResultComposite:
		for _, sub := range r.Results {
			sub.walk(fn)
		}
	}
}

func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Kind {
	case "":
		p.Kind = ResultEmpty
	case ResultEmpty, ResultArtifacts, ResultComposite:
	default:
		return fmt.Errorf("未知的 result kind: %q", p.Kind)
	}
	*r = Result(p)
	return nil
}
