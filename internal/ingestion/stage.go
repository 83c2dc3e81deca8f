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
	"slices"
)

// Stage 多阶段扫描中可独立 checkpoint 的子任务名（由各数据源定义封闭枚举）
type Stage string

// StageSet 已完成阶段的不可变集合；按完成顺序保存，With 返回新值
type StageSet struct {
	stages []Stage
}

// NewStageSet 由若干阶段构造集合，重复项只保留第一次出现
func NewStageSet(stages ...Stage) StageSet {
	var s StageSet
	for _, st := range stages {
		s = s.With(st)
	}
	return s
}

// Contains 是否已包含 stage
func (s StageSet) Contains(stage Stage) bool {
	return slices.Contains(s.stages, stage)
}

// With 返回追加 stage 后的新集合；已包含时返回自身
func (s StageSet) With(stage Stage) StageSet {
	if s.Contains(stage) {
		return s
	}
	next := make([]Stage, len(s.stages), len(s.stages)+1)
	copy(next, s.stages)
	return StageSet{stages: append(next, stage)}
}

// Len 阶段数量
func (s StageSet) Len() int { return len(s.stages) }

// Stages 返回按完成顺序排列的副本
func (s StageSet) Stages() []Stage {
	return slices.Clone(s.stages)
}

// IsSupersetOf 是否包含 other 的全部阶段
func (s StageSet) IsSupersetOf(other StageSet) bool {
	for _, st := range other.stages {
		if !s.Contains(st) {
			return false
		}
	}
	return true
}

func (s StageSet) MarshalJSON() ([]byte, error) {
	if s.stages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.stages)
}

func (s *StageSet) UnmarshalJSON(data []byte) error {
	var raw []Stage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewStageSet(raw...)
	return nil
}
