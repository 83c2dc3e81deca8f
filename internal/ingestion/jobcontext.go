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
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// IntegrationKey 唯一定位一个租户下的集成
type IntegrationKey struct {
	TenantID      string `json:"tenant_id"`
	IntegrationID string `json:"integration_id"`
}

func (k IntegrationKey) String() string {
	return k.TenantID + "/" + k.IntegrationID
}

// JobContext 单次调用的检查点记录；由调度方创建，调用返回后即丢弃
type JobContext struct {
	JobID          string         `json:"job_id"`
	TenantID       string         `json:"tenant_id"`
	IntegrationKey IntegrationKey `json:"integration_key"`
	Attempt        int            `json:"attempt"`
	// IntermediateState 不透明 JSON 文档，阶段完成时整体替换
	IntermediateState json.RawMessage `json:"intermediate_state,omitempty"`
}

// WithIntermediateState 返回替换了 IntermediateState 的副本
func (jc JobContext) WithIntermediateState(state json.RawMessage) JobContext {
	jc.IntermediateState = state
	return jc
}

// IntermediateState 所有多阶段扫描共享的检查点字段；数据源私有字段通过嵌入扩展
type IntermediateState struct {
	CompletedStages StageSet `json:"completed_stages"`
	ResumeCursor    string   `json:"resume_cursor,omitempty"`
	// Extra 检查点中本结构体不认识的顶层字段，EncodeState 时原样写回
	Extra map[string]json.RawMessage `json:"-"`
}

// Checkpoint 任何嵌入 IntermediateState 的结构体指针都满足此接口
type Checkpoint interface {
	Base() *IntermediateState
}

func (s *IntermediateState) Base() *IntermediateState { return s }

// DecodeState 将 JobContext 中的状态解析到 dst；空文档保持 dst 零值
func DecodeState(raw json.RawMessage, dst Checkpoint) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return &ParseError{What: "intermediate state", Err: err}
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &all); err != nil {
		return &ParseError{What: "intermediate state", Err: err}
	}
	known, err := encodedKeys(dst)
	if err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range all {
		if _, ok := known[k]; !ok {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		dst.Base().Extra = extra
	}
	return nil
}

func encodedKeys(state Checkpoint) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("序列化 intermediate state 失败: %w", err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("intermediate state 须为 JSON 对象: %w", err)
	}
	return keys, nil
}

// EncodeState 序列化检查点；Extra 中且结构体未输出的字段按键名顺序追加在末尾
func EncodeState(state Checkpoint) (json.RawMessage, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("序列化 intermediate state 失败: %w", err)
	}
	extra := state.Base().Extra
	if len(extra) == 0 {
		return data, nil
	}
	present, err := encodedKeys(state)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	wrote := len(present) > 0
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		if _, ok := present[k]; ok {
			continue
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		if wrote {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(extra[k])
		wrote = true
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CompletedStagesOf 仅解析 completed_stages，供不关心数据源私有字段的调用方使用
func CompletedStagesOf(raw json.RawMessage) (StageSet, error) {
	var st IntermediateState
	if err := DecodeState(raw, &st); err != nil {
		return StageSet{}, err
	}
	return st.CompletedStages, nil
}
