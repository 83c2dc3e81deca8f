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
	"errors"
	"fmt"
)

var (
	ErrParse         = errors.New("ingestion: parse error")
	ErrFetch         = errors.New("ingestion: fetch error")
	ErrResumable     = errors.New("ingestion: resumable error")
	ErrConfiguration = errors.New("ingestion: configuration error")
)

// ParseError Query 或检查点格式错误；本层从不重试
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("解析 %s 失败: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// FetchError DataSource 调用失败
type FetchError struct {
	IntegrationType string
	DataType        string
	Err             error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("拉取 %s/%s 失败: %v", e.IntegrationType, e.DataType, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// ConfigurationError 集成元数据缺失或非法（如凭据无法解析）
type ConfigurationError struct {
	Key     IntegrationKey
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("集成 %s 配置错误: %s: %v", e.Key, e.Message, e.Err)
	}
	return fmt.Sprintf("集成 %s 配置错误: %s", e.Key, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ResumableError 可重试且保留进度：携带部分结果与恢复检查点，调用方需持久化检查点后重新调用
type ResumableError struct {
	Partial           Result
	IntermediateState json.RawMessage
	Cause             error
}

func (e *ResumableError) Error() string {
	return fmt.Sprintf("可恢复的摄取失败（已写入 %d 个 artifact）: %v", len(e.Partial.AllArtifacts()), e.Cause)
}

func (e *ResumableError) Unwrap() error { return e.Cause }

func (e *ResumableError) Is(target error) bool { return target == ErrResumable }

// AsResumable 取出错误链上的 *ResumableError
func AsResumable(err error) (*ResumableError, bool) {
	var re *ResumableError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// OutcomeKind 一次调用的三种结局
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeResumable OutcomeKind = "resumable"
	OutcomeFatal     OutcomeKind = "fatal"
)

// Outcome Success(result) | Resumable(partial, state, cause) | Fatal(cause)
type Outcome struct {
	Kind              OutcomeKind
	Result            Result
	IntermediateState json.RawMessage
	Err               error
}

// Resolve 将控制器的 (Result, error) 归类为 Outcome
func Resolve(result Result, err error) Outcome {
	if err == nil {
		if result.Kind == "" {
			result = Empty()
		}
		return Outcome{Kind: OutcomeSuccess, Result: result}
	}
	if re, ok := AsResumable(err); ok {
		return Outcome{
			Kind:              OutcomeResumable,
			Result:            re.Partial,
			IntermediateState: re.IntermediateState,
			Err:               re.Cause,
		}
	}
	return Outcome{Kind: OutcomeFatal, Result: Empty(), Err: err}
}
