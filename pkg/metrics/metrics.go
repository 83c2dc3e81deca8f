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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/Worker 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		JobDuration, JobTotal,
		StageDuration, StageTotal,
		PagesFetched, ArtifactsWritten,
		WorkerBusy,
	)
}

// JobDuration 单次摄取调用耗时（秒）
var JobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ingest_job_duration_seconds",
		Help:    "单次摄取调用耗时（秒）",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	},
	[]string{"controller"},
)

// JobTotal 摄取调用次数（按结局）
var JobTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_jobs_total",
		Help: "摄取调用次数（按结局）",
	},
	[]string{"controller", "outcome"}, // success | resumable | fatal
)

// StageDuration 多阶段扫描中单个阶段耗时（秒）
var StageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ingest_stage_duration_seconds",
		Help:    "单个阶段耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"integration", "stage"},
)

// StageTotal 阶段执行次数（按状态）
var StageTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_stage_total",
		Help: "阶段执行次数",
	},
	[]string{"integration", "stage", "status"}, // completed | skipped | failed | ignored
)

// PagesFetched 从 DataSource 拉取的页数
var PagesFetched = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_pages_fetched_total",
		Help: "从 DataSource 拉取的页数",
	},
	[]string{"integration", "data_type"},
)

// ArtifactsWritten 写入暂存区的 artifact 数
var ArtifactsWritten = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_artifacts_written_total",
		Help: "写入暂存区的 artifact 数",
	},
	[]string{"integration", "data_type"},
)

// WorkerBusy 当前正在执行的摄取任务数（每 Worker）
var WorkerBusy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ingest_worker_busy",
		Help: "当前正在执行的摄取任务数",
	},
	[]string{"worker_id"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
