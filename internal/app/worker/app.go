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
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"ingest-platform/internal/app"
	"ingest-platform/pkg/config"
	"ingest-platform/pkg/metrics"
	"ingest-platform/pkg/tracing"
)

// App Worker 应用：认领循环 + 可选的 metrics 端点
type App struct {
	boot          *app.Bootstrap
	runner        *Runner
	tracer        *sdktrace.TracerProvider
	metricsServer *http.Server
	cancel        context.CancelFunc
}

// NewApp 创建新的 Worker 应用
func NewApp(cfg *config.Config) (*App, error) {
	boot, err := app.NewBootstrap(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	cfg = boot.Config

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = DefaultWorkerID()
	}
	runner := NewRunner(workerID, boot.Queue, boot.Events, boot.Registry, Options{
		PollInterval: config.ParseDuration(cfg.Worker.PollInterval, 2*time.Second),
		RetryDelay:   config.ParseDuration(cfg.Worker.RetryDelay, 30*time.Second),
		MaxAttempts:  cfg.Worker.MaxAttempts,
		Timeout:      config.ParseDuration(cfg.Worker.Timeout, 0),
		Concurrency:  cfg.Worker.Concurrency,
	}, boot.Logger)

	a := &App{boot: boot, runner: runner}

	if cfg.Monitoring.Tracing.Enable {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			boot.Close()
			return nil, fmt.Errorf("初始化 tracing 失败: %w", err)
		}
		a.tracer = tp
	}
	if cfg.Monitoring.Prometheus.Enable && cfg.Monitoring.Prometheus.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.DefaultRegistry, promhttp.HandlerOpts{}))
		a.metricsServer = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Monitoring.Prometheus.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	boot.Logger.Info("worker 已注册控制器", "worker_id", workerID, "controllers", boot.Registry.Names())
	return a, nil
}

// Start 启动应用
func (a *App) Start() error {
	a.boot.Logger.Info("启动 worker 应用")
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.runner.Start(ctx)

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.boot.Logger.Error("metrics 端点退出", "error", err)
			}
		}()
	}
	a.boot.Logger.Info("worker 应用启动成功")
	return nil
}

// Shutdown 关闭应用：先停止认领并等待执行中的任务回写
func (a *App) Shutdown(ctx context.Context) error {
	a.boot.Logger.Info("关闭 worker 应用")
	if a.cancel != nil {
		a.cancel()
	}
	a.runner.Stop()

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.boot.Logger.Error("关闭 metrics 端点失败", "error", err)
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.boot.Logger.Error("关闭 tracer 失败", "error", err)
		}
	}
	a.boot.Logger.Info("worker 应用关闭成功")
	a.boot.Close()
	return nil
}
