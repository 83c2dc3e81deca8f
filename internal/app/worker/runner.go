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

package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestqueue"
	"ingest-platform/internal/runtime/jobstore"
	"ingest-platform/pkg/log"
	"ingest-platform/pkg/metrics"
	"ingest-platform/pkg/tracing"
)

// Options 认领循环参数
type Options struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
	// MaxAttempts 最大执行次数（含首次），<=0 时默认 5
	MaxAttempts int
	// Timeout 单次调用超时，0 表示不限
	Timeout     time.Duration
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	return o
}

// Runner 从队列认领摄取任务，调用注册的控制器并按结局回写队列与事件流；并发上限由信号量控制
type Runner struct {
	workerID string
	queue    ingestqueue.Queue
	events   jobstore.JobStore
	registry *ingestion.Registry
	opts     Options
	limiter  chan struct{}
	logger   *log.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner 创建认领执行器；events 可为 nil
func NewRunner(workerID string, queue ingestqueue.Queue, events jobstore.JobStore, registry *ingestion.Registry, opts Options, logger *log.Logger) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		workerID: workerID,
		queue:    queue,
		events:   events,
		registry: registry,
		opts:     opts,
		limiter:  make(chan struct{}, opts.Concurrency),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start 启动认领循环；先占并发槽位再认领，执行结束释放槽位
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			case r.limiter <- struct{}{}:
			}
			job, err := r.queue.ClaimOne(ctx, r.workerID)
			if err != nil || job == nil {
				<-r.limiter
				if err != nil && !errors.Is(err, context.Canceled) {
					r.logger.Error("认领任务失败", "worker_id", r.workerID, "error", err)
				}
				select {
				case <-r.stopCh:
					return
				case <-ctx.Done():
					return
				case <-time.After(r.opts.PollInterval):
				}
				continue
			}
			r.wg.Add(1)
			go func(j *ingestqueue.Job) {
				defer r.wg.Done()
				defer func() { <-r.limiter }()
				r.execute(ctx, j)
			}(job)
		}
	}()
}

// Stop 停止认领循环并等待执行中的任务结束
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// RunOnce 同步认领并执行一条任务；无任务时返回 false
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.queue.ClaimOne(ctx, r.workerID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	r.execute(ctx, job)
	return true, nil
}

func (r *Runner) execute(ctx context.Context, job *ingestqueue.Job) {
	metrics.WorkerBusy.WithLabelValues(r.workerID).Inc()
	defer metrics.WorkerBusy.WithLabelValues(r.workerID).Dec()
	start := time.Now()
	logger := r.logger.With("job_id", job.ID, "tenant_id", job.TenantID, "integration_id", job.IntegrationID,
		"controller", job.Controller, "attempt", job.Attempt)

	r.record(ctx, job.ID, jobstore.AttemptStarted, jobstore.AttemptPayload{
		Controller: job.Controller, Attempt: job.Attempt, WorkerID: r.workerID,
	})
	logger.Info("开始执行摄取任务")

	spanCtx, span := tracing.StartJobSpan(ctx, job.ID, job.Controller, job.Attempt)
	runCtx := spanCtx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(spanCtx, r.opts.Timeout)
		defer cancel()
	}

	outcome := r.invoke(runCtx, job)
	// 进程退出打断的调用不计入致命失败，保留已有 checkpoint 立即重排
	interrupted := ctx.Err() != nil && outcome.Kind == ingestion.OutcomeFatal
	if interrupted {
		outcome.Kind = ingestion.OutcomeResumable
	}
	tracing.EndSpan(span, outcome.Err)

	dur := time.Since(start)
	metrics.JobDuration.WithLabelValues(job.Controller).Observe(dur.Seconds())
	metrics.JobTotal.WithLabelValues(job.Controller, string(outcome.Kind)).Inc()

	// 回写不受调用超时与退出信号影响
	persistCtx := context.WithoutCancel(ctx)
	payload := jobstore.AttemptPayload{
		Controller: job.Controller,
		Attempt:    job.Attempt,
		WorkerID:   r.workerID,
		Artifacts:  len(outcome.Result.AllArtifacts()),
		DurationMs: dur.Milliseconds(),
	}
	if outcome.Err != nil {
		payload.Error = outcome.Err.Error()
	}

	switch outcome.Kind {
	case ingestion.OutcomeSuccess:
		if err := r.queue.MarkCompleted(persistCtx, job.ID, outcome.Result); err != nil {
			logger.Error("标记任务完成失败", "error", err)
			return
		}
		r.record(persistCtx, job.ID, jobstore.JobCompleted, payload)
		logger.Info("摄取任务完成", "artifacts", payload.Artifacts, "duration_ms", payload.DurationMs)

	case ingestion.OutcomeResumable:
		if !interrupted && job.Attempt >= r.opts.MaxAttempts {
			msg := fmt.Sprintf("达到最大尝试次数 %d: %s", r.opts.MaxAttempts, payload.Error)
			if err := r.queue.MarkFailed(persistCtx, job.ID, outcome.Result, msg); err != nil {
				logger.Error("标记任务失败出错", "error", err)
				return
			}
			payload.Error = msg
			r.record(persistCtx, job.ID, jobstore.JobFailed, payload)
			logger.Warn("摄取任务重试次数耗尽", "error", outcome.Err)
			return
		}
		delay := r.opts.RetryDelay
		if interrupted {
			delay = 0
		}
		if err := r.queue.MarkResumable(persistCtx, job.ID, outcome.Result, outcome.IntermediateState, payload.Error, delay); err != nil {
			logger.Error("重新入队失败", "error", err)
			return
		}
		if stages, err := ingestion.CompletedStagesOf(outcome.IntermediateState); err == nil {
			for _, s := range stages.Stages() {
				payload.CompletedStages = append(payload.CompletedStages, string(s))
			}
		}
		r.record(persistCtx, job.ID, jobstore.AttemptResumable, payload)
		logger.Warn("摄取任务可恢复失败，已重新入队", "error", outcome.Err, "retry_in", delay,
			"artifacts", payload.Artifacts, "completed_stages", payload.CompletedStages)

	default:
		if err := r.queue.MarkFailed(persistCtx, job.ID, outcome.Result, payload.Error); err != nil {
			logger.Error("标记任务失败出错", "error", err)
			return
		}
		r.record(persistCtx, job.ID, jobstore.JobFailed, payload)
		logger.Error("摄取任务失败", "error", outcome.Err)
	}
}

// invoke 查找控制器并调用，结果归类为 Outcome
func (r *Runner) invoke(ctx context.Context, job *ingestqueue.Job) ingestion.Outcome {
	ctrl, err := r.registry.Get(job.Controller)
	if err != nil {
		return ingestion.Resolve(ingestion.Result{}, err)
	}
	return ingestion.Resolve(ctrl.IngestRaw(ctx, job.JobContext(), job.Query))
}

// record 事件流只用于展示，写入失败不影响任务结局
func (r *Runner) record(ctx context.Context, jobID string, t jobstore.EventType, payload jobstore.AttemptPayload) {
	if r.events == nil {
		return
	}
	ev, err := jobstore.NewEvent(t, payload)
	if err == nil {
		_, err = jobstore.Record(ctx, r.events, jobID, ev)
	}
	if err != nil {
		r.logger.Warn("写入任务事件失败", "job_id", jobID, "type", t, "error", err)
	}
}

// DefaultWorkerID 返回默认 Worker 标识（hostname 或 env）
func DefaultWorkerID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	host, _ := os.Hostname()
	if host != "" {
		return host
	}
	return "worker-unknown"
}
