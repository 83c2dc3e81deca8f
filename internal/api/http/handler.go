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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestqueue"
	"ingest-platform/internal/runtime/jobstore"
	pkgerrors "ingest-platform/pkg/errors"
	"ingest-platform/pkg/metrics"
	"ingest-platform/pkg/redaction"
)

// Handler 摄取控制面 HTTP 处理器：入队、查询任务与事件；不执行任何任务
type Handler struct {
	queue    ingestqueue.Queue
	events   jobstore.JobStore
	registry *ingestion.Registry
	redactor *redaction.Engine
}

// NewHandler 创建处理器；events 可为 nil
func NewHandler(queue ingestqueue.Queue, events jobstore.JobStore, registry *ingestion.Registry) *Handler {
	return &Handler{queue: queue, events: events, registry: registry}
}

// SetRedactor 设置输出脱敏；nil 表示不脱敏
func (h *Handler) SetRedactor(e *redaction.Engine) {
	h.redactor = e
}

// redact 脱敏失败时不返回原始内容
func (h *Handler) redact(target string, data json.RawMessage) json.RawMessage {
	out, err := h.redactor.Apply(target, data)
	if err != nil {
		return nil
	}
	return out
}

// statusFor 按错误类别映射 HTTP 状态码
func statusFor(err error) int {
	switch pkgerrors.Kind(err) {
	case pkgerrors.ErrNotFound:
		return consts.StatusNotFound
	case pkgerrors.ErrInvalidArg:
		return consts.StatusBadRequest
	case pkgerrors.ErrConflict:
		return consts.StatusConflict
	}
	return consts.StatusInternalServerError
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "ingest-api",
	})
}

type createJobRequest struct {
	TenantID      string          `json:"tenant_id"`
	IntegrationID string          `json:"integration_id"`
	Controller    string          `json:"controller"`
	Query         json.RawMessage `json:"query"`
}

// CreateJob 入队摄取任务
// POST /api/ingestion/jobs
func (h *Handler) CreateJob(c context.Context, ctx *app.RequestContext) {
	var req createJobRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体不是合法的 JSON: " + err.Error()})
		return
	}
	nj := ingestqueue.NewJob{
		TenantID:      req.TenantID,
		IntegrationID: req.IntegrationID,
		Controller:    req.Controller,
		Query:         req.Query,
	}
	if len(bytes.TrimSpace(nj.Query)) == 0 {
		nj.Query = json.RawMessage(`{}`)
	}
	if err := nj.Validate(); err != nil {
		ctx.JSON(statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	if _, err := h.registry.Get(nj.Controller); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	jobID, err := h.queue.Enqueue(c, nj)
	if err != nil {
		hlog.CtxErrorf(c, "enqueue ingestion job failed: %v", err)
		ctx.JSON(statusFor(err), map[string]string{"error": "入队失败"})
		return
	}
	if h.events != nil {
		ev, _ := jobstore.NewEvent(jobstore.JobCreated, jobstore.AttemptPayload{Controller: nj.Controller})
		if _, err := jobstore.Record(c, h.events, jobID, ev); err != nil {
			hlog.CtxWarnf(c, "record job_created for %s failed: %v", jobID, err)
		}
	}
	ctx.JSON(consts.StatusAccepted, map[string]string{"job_id": jobID, "status": string(ingestqueue.StatusPending)})
}

type jobView struct {
	JobID             string           `json:"job_id"`
	TenantID          string           `json:"tenant_id"`
	IntegrationID     string           `json:"integration_id"`
	Controller        string           `json:"controller"`
	Status            string           `json:"status"`
	Attempt           int              `json:"attempt"`
	Query             json.RawMessage  `json:"query,omitempty"`
	IntermediateState json.RawMessage  `json:"intermediate_state,omitempty"`
	Result            ingestion.Result `json:"result"`
	Manifest          []manifestEntry  `json:"manifest"`
	Error             string           `json:"error,omitempty"`
	AvailableAt       time.Time        `json:"available_at"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

type manifestEntry struct {
	IntegrationType string `json:"integration_type"`
	DataType        string `json:"data_type"`
	Path            string `json:"path"`
	ItemCount       int    `json:"item_count"`
}

// GetJob 任务状态、checkpoint 与按合并策略解析后的 artifact 清单
// GET /api/ingestion/jobs/:id
func (h *Handler) GetJob(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("id")
	job, err := h.queue.Get(c, jobID)
	if err != nil {
		status := statusFor(err)
		if status == consts.StatusNotFound {
			ctx.JSON(status, map[string]string{"error": "任务不存在"})
			return
		}
		hlog.CtxErrorf(c, "get ingestion job %s failed: %v", jobID, err)
		ctx.JSON(status, map[string]string{"error": "查询任务失败"})
		return
	}
	resolved, err := ingestion.ApplyMergeStrategy(job.Result)
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	manifest := make([]manifestEntry, 0, len(resolved.Artifacts))
	for _, a := range resolved.AllArtifacts() {
		manifest = append(manifest, manifestEntry{
			IntegrationType: a.IntegrationType,
			DataType:        a.DataType,
			Path:            a.Path,
			ItemCount:       a.ItemCount,
		})
	}
	ctx.JSON(consts.StatusOK, jobView{
		JobID:             job.ID,
		TenantID:          job.TenantID,
		IntegrationID:     job.IntegrationID,
		Controller:        job.Controller,
		Status:            string(job.Status),
		Attempt:           job.Attempt,
		Query:             h.redact(redaction.TargetQuery, job.Query),
		IntermediateState: job.IntermediateState,
		Result:            job.Result,
		Manifest:          manifest,
		Error:             job.Error,
		AvailableAt:       job.AvailableAt,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
		CompletedAt:       job.CompletedAt,
	})
}

type eventView struct {
	Version   int             `json:"version"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// GetJobEvents 任务事件历史
// GET /api/ingestion/jobs/:id/events
func (h *Handler) GetJobEvents(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("id")
	if h.events == nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "事件存储未配置"})
		return
	}
	if _, err := h.queue.Get(c, jobID); errors.Is(err, ingestqueue.ErrJobNotFound) {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": "任务不存在"})
		return
	}
	events, version, err := h.events.ListEvents(c, jobID)
	if err != nil {
		hlog.CtxErrorf(c, "list events for %s failed: %v", jobID, err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询事件失败"})
		return
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			Version:   e.Version,
			Type:      string(e.Type),
			Payload:   h.redact(string(e.Type), e.Payload),
			CreatedAt: e.CreatedAt,
		})
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"version": version,
		"events":  out,
	})
}

// ListControllers 已注册的控制器名
// GET /api/ingestion/controllers
func (h *Handler) ListControllers(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{"controllers": h.registry.Names()})
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.String(consts.StatusInternalServerError, err.Error())
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
