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
	"fmt"
	"sync"
)

const (
	// MergeStorageResultsList 按顺序拼接全部 artifact，复合结果的默认标签
	MergeStorageResultsList = "storage_results_list"
	// MergeLatestPerDataType 每个数据类型只保留最后一次写入的 artifact 列表
	MergeLatestPerDataType = "latest_per_data_type"
)

// MergeFunc 下游消费者对 Composite 子结果的合并逻辑
type MergeFunc func(results []Result) Result

var (
	mergeMu         sync.RWMutex
	mergeStrategies = map[string]MergeFunc{
		MergeStorageResultsList: mergeConcat,
		MergeLatestPerDataType:  mergeLatestPerDataType,
	}
)

// RegisterMergeStrategy 注册（或覆盖）命名合并策略
func RegisterMergeStrategy(name string, fn MergeFunc) {
	mergeMu.Lock()
	defer mergeMu.Unlock()
	mergeStrategies[name] = fn
}

// MergeResults 重试时拼接上一次与本次结果：不去重，幂等性依赖唯一的 artifact 命名
func MergeResults(prev, next Result) Result {
	var items []Result
	items = append(items, topLevel(prev)...)
	items = append(items, topLevel(next)...)
	if len(items) == 0 {
		return Empty()
	}
	strategy := next.MergeStrategy
	if strategy == "" {
		strategy = prev.MergeStrategy
	}
	return Composite(strategy, items)
}

func topLevel(r Result) []Result {
	switch r.Kind {
	case ResultComposite:
		return r.Results
	case ResultArtifacts:
		if len(r.Artifacts) == 0 {
			return nil
		}
		return []Result{r}
	default:
		return nil
	}
}

// ApplyMergeStrategy 按 Composite 的标签解析出扁平的 Artifacts 结果
func ApplyMergeStrategy(r Result) (Result, error) {
	if r.Kind != ResultComposite {
		return r, nil
	}
	mergeMu.RLock()
	fn, ok := mergeStrategies[r.MergeStrategy]
	mergeMu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("未知的合并策略: %q", r.MergeStrategy)
	}
	return fn(r.Results), nil
}

func mergeConcat(results []Result) Result {
	var all []ArtifactHandle
	for _, r := range results {
		all = append(all, r.AllArtifacts()...)
	}
	return Artifacts(all...)
}

func mergeLatestPerDataType(results []Result) Result {
	var order []string
	latest := make(map[string][]ArtifactHandle)
	var leaves []Result
	for _, r := range results {
		leaves = appendLeaves(leaves, r)
	}
	for _, leaf := range leaves {
		byType := make(map[string][]ArtifactHandle)
		var seen []string
		for _, h := range leaf.Artifacts {
			if _, ok := byType[h.DataType]; !ok {
				seen = append(seen, h.DataType)
			}
			byType[h.DataType] = append(byType[h.DataType], h)
		}
		for _, dt := range seen {
			if _, ok := latest[dt]; !ok {
				order = append(order, dt)
			}
			latest[dt] = byType[dt]
		}
	}
	var out []ArtifactHandle
	for _, dt := range order {
		out = append(out, latest[dt]...)
	}
	return Artifacts(out...)
}

func appendLeaves(dst []Result, r Result) []Result {
	switch r.Kind {
	case ResultArtifacts:
		return append(dst, r)
	case ResultComposite:
		for _, sub := range r.Results {
			dst = appendLeaves(dst, sub)
		}
	}
	return dst
}
