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
	"strconv"
	"strings"
	"time"
)

// FlagEnabled 合并集成元数据与 query 中的 ingestion_flags：任一处显式 false 即禁用；
// 两处都未设置时返回 def
func FlagEnabled(metadata, queryFlags map[string]any, key string, def bool) bool {
	m, mok := flagValue(metadata, key)
	q, qok := flagValue(queryFlags, key)
	switch {
	case (mok && !m) || (qok && !q):
		return false
	case mok || qok:
		return true
	default:
		return def
	}
}

func flagValue(values map[string]any, key string) (bool, bool) {
	if values == nil {
		return false, false
	}
	v, ok := values[key]
	if !ok || v == nil {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// OnboardingWindow 首次扫描（from 为空）时的回溯起点
func OnboardingWindow(now time.Time, from *time.Time, onboardingDays int) (time.Time, bool) {
	if from != nil {
		return *from, false
	}
	return now.AddDate(0, 0, -onboardingDays), true
}
