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

// Mode 脱敏方式
type Mode string

const (
	ModeRedact Mode = "redact" // 替换为 "***REDACTED***"
	ModeHash   Mode = "hash"   // 替换为加盐 SHA256
	ModeRemove Mode = "remove" // 删除字段
)

// TargetQuery 作用于任务的原始 query；其余 target 为事件类型
const TargetQuery = "query"

// FieldMask 单个字段的脱敏规则，Path 以 "." 分隔，如 "filters.jql"
type FieldMask struct {
	Path string `mapstructure:"path"`
	Mode Mode   `mapstructure:"mode"`
	Salt string `mapstructure:"salt"`
}

// Rule 某个 target 的规则集合
type Rule struct {
	Target string      `mapstructure:"target"`
	Fields []FieldMask `mapstructure:"fields"`
}

// Config 脱敏配置
type Config struct {
	Enable bool        `mapstructure:"enable"`
	Global []FieldMask `mapstructure:"global"`
	Rules  []Rule      `mapstructure:"rules"`
}

// Policy 按 target 索引后的规则
type Policy struct {
	targets map[string][]FieldMask
	global  []FieldMask
}

// NewPolicy 由配置构建策略；未启用时返回 nil
func NewPolicy(cfg Config) *Policy {
	if !cfg.Enable {
		return nil
	}
	p := &Policy{targets: make(map[string][]FieldMask), global: cfg.Global}
	for _, r := range cfg.Rules {
		p.targets[r.Target] = append(p.targets[r.Target], r.Fields...)
	}
	return p
}

func (p *Policy) masksFor(target string) []FieldMask {
	masks := make([]FieldMask, 0, len(p.targets[target])+len(p.global))
	masks = append(masks, p.targets[target]...)
	return append(masks, p.global...)
}
