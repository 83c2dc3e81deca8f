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

package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Redacted redact 模式下的替换值
const Redacted = "***REDACTED***"

// Engine 对 API 输出的 JSON（任务 query、事件 payload）做字段脱敏；nil Engine 原样返回
type Engine struct {
	policy *Policy
}

// NewEngine 创建脱敏引擎；policy 为 nil 时返回 nil
func NewEngine(policy *Policy) *Engine {
	if policy == nil {
		return nil
	}
	return &Engine{policy: policy}
}

// Apply 对 data 应用 target 的规则；非 JSON object 原样返回
func (e *Engine) Apply(target string, data []byte) ([]byte, error) {
	if e == nil || len(data) == 0 {
		return data, nil
	}
	masks := e.policy.masksFor(target)
	if len(masks) == 0 {
		return data, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return data, err
	}
	for _, m := range masks {
		applyMask(obj, m)
	}
	return json.Marshal(obj)
}

func applyMask(obj map[string]interface{}, mask FieldMask) {
	parts := strings.Split(mask.Path, ".")
	current := obj
	for _, p := range parts[:len(parts)-1] {
		next, ok := current[p].(map[string]interface{})
		if !ok {
			return
		}
		current = next
	}
	last := parts[len(parts)-1]
	value, ok := current[last]
	if !ok {
		return
	}
	switch mask.Mode {
	case ModeHash:
		current[last] = hashValue(fmt.Sprintf("%v", value), mask.Salt)
	case ModeRemove:
		delete(current, last)
	default:
		current[last] = Redacted
	}
}

func hashValue(value, salt string) string {
	h := sha256.New()
	h.Write([]byte(value))
	if salt != "" {
		h.Write([]byte(salt))
	}
	return "hash:" + hex.EncodeToString(h.Sum(nil))
}
