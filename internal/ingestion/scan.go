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
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"ingest-platform/pkg/metrics"
	"ingest-platform/pkg/tracing"
)

// Step 多阶段扫描中的一个阶段
type Step struct {
	Stage Stage
	// Enabled 由集成配置决定；禁用的阶段无条件跳过，且不标记为已完成
	Enabled bool
	// BestEffort 辅助阶段：I/O 类失败被记录并跳过，不阻塞主阶段
	BestEffort bool
	// SkipWhenNothingFetched 本次扫描前面的阶段都没有产出数据时跳过该阶段，整体返回 Empty
	SkipWhenNothingFetched bool
	Run                    func(ctx context.Context, jc JobContext) (Result, error)
}

// ScanRunner 按声明顺序串行执行各阶段，并在失败时按恢复规则包装错误
type ScanRunner struct {
	IntegrationType string
	MergeStrategy   string
	// DisablePromotion 为 true 时非可恢复错误原样返回，即使已有阶段成功
	DisablePromotion bool
	Logger           *slog.Logger
}

// Run 执行 steps。state 为调用方从 jc.IntermediateState 解析出的检查点，
// 阶段成功时其 CompletedStages 被整体替换并回写到 JobContext
func (r *ScanRunner) Run(ctx context.Context, jc JobContext, state Checkpoint, steps []Step) (Result, error) {
	logger := r.logger().With("job_id", jc.JobID, "integration_id", jc.IntegrationKey.IntegrationID, "integration", r.IntegrationType)
	resumedFrom := state.Base().CompletedStages
	var results []Result
	// completed 本次调用中成功完成的阶段数；失败的辅助阶段留下的部分结果不计入
	completed := 0
	shortCircuited := false

	for _, step := range steps {
		if !step.Enabled {
			logger.Debug("阶段已禁用，跳过", "stage", step.Stage)
			metrics.StageTotal.WithLabelValues(r.IntegrationType, string(step.Stage), "skipped").Inc()
			continue
		}
		if state.Base().CompletedStages.Contains(step.Stage) {
			logger.Info("阶段已在之前的尝试中完成，跳过", "stage", step.Stage)
			continue
		}
		if step.SkipWhenNothingFetched && resumedFrom.Len() == 0 && allEmpty(results) {
			logger.Info("前序阶段均无数据，短路跳过", "stage", step.Stage)
			metrics.StageTotal.WithLabelValues(r.IntegrationType, string(step.Stage), "skipped").Inc()
			shortCircuited = true
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, r.fail(logger, jc, state, step.Stage, results, completed, err)
		}

		res, err := r.runStep(ctx, jc, step)
		if err != nil {
			if step.BestEffort && IsTransient(err) {
				logger.Warn("辅助阶段失败，已忽略", "stage", step.Stage, "error", err)
				metrics.StageTotal.WithLabelValues(r.IntegrationType, string(step.Stage), "ignored").Inc()
				if re, ok := AsResumable(err); ok && !re.Partial.IsEmpty() {
					results = append(results, re.Partial)
				}
				continue
			}
			metrics.StageTotal.WithLabelValues(r.IntegrationType, string(step.Stage), "failed").Inc()
			return Result{}, r.fail(logger, jc, state, step.Stage, results, completed, err)
		}

		results = append(results, res)
		completed++
		base := state.Base()
		base.CompletedStages = base.CompletedStages.With(step.Stage)
		base.ResumeCursor = ""
		encoded, err := EncodeState(state)
		if err != nil {
			return Result{}, err
		}
		jc = jc.WithIntermediateState(encoded)
		metrics.StageTotal.WithLabelValues(r.IntegrationType, string(step.Stage), "completed").Inc()
		logger.Info("阶段完成", "stage", step.Stage, "artifacts", len(res.AllArtifacts()))
	}

	if shortCircuited && allEmpty(results) {
		return Empty(), nil
	}
	return Composite(r.MergeStrategy, results), nil
}

func (r *ScanRunner) runStep(ctx context.Context, jc JobContext, step Step) (Result, error) {
	ctx, span := tracing.StartStageSpan(ctx, r.IntegrationType, string(step.Stage))
	start := time.Now()
	res, err := step.Run(ctx, jc)
	metrics.StageDuration.WithLabelValues(r.IntegrationType, string(step.Stage)).Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)
	return res, err
}

// fail 按恢复规则处理阶段失败：
// 阶段自身可恢复时拼接其部分结果并带上完整列表重新抛出；
// 其他错误在已有阶段成功时提升为可恢复错误；否则原样返回
func (r *ScanRunner) fail(logger *slog.Logger, jc JobContext, state Checkpoint, stage Stage, results []Result, completed int, err error) error {
	if re, ok := AsResumable(err); ok {
		results = append(results, re.Partial)
		checkpoint := jc.IntermediateState
		if cursor := resumeCursorOf(re.IntermediateState); cursor != "" {
			state.Base().ResumeCursor = cursor
			if encoded, encErr := EncodeState(state); encErr == nil {
				checkpoint = encoded
			}
		}
		logger.Warn("阶段可恢复失败", "stage", stage, "error", re.Cause)
		return &ResumableError{
			Partial:           Composite(r.MergeStrategy, results),
			IntermediateState: checkpoint,
			Cause:             re.Cause,
		}
	}
	if completed > 0 && !r.DisablePromotion {
		logger.Warn("阶段失败，已有阶段成功，提升为可恢复错误", "stage", stage, "error", err)
		return &ResumableError{
			Partial:           Composite(r.MergeStrategy, results),
			IntermediateState: jc.IntermediateState,
			Cause:             err,
		}
	}
	logger.Error("阶段失败", "stage", stage, "error", err)
	return err
}

func (r *ScanRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func resumeCursorOf(raw []byte) string {
	var st IntermediateState
	if err := DecodeState(raw, &st); err != nil {
		return ""
	}
	return st.ResumeCursor
}

func allEmpty(results []Result) bool {
	for _, r := range results {
		if !r.IsEmpty() {
			return false
		}
	}
	return true
}

// IsTransient 是否为 I/O 类失败（拉取失败、网络错误、超时、可恢复错误）；
// 解析、配置与其他程序错误不在此列
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrParse) || errors.Is(err, ErrConfiguration) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrFetch) || errors.Is(err, ErrResumable) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
