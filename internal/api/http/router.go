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
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"ingest-platform/internal/api/http/middleware"
)

// Router 控制面路由
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	rateLimit  float64
	burst      int
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetRateLimit 设置每个客户端的限流，rps<=0 表示不限
func (r *Router) SetRateLimit(rps float64, burst int) {
	r.rateLimit, r.burst = rps, burst
}

// Build 创建 Hertz 服务并注册路由；opts 可附加 tracer 等服务端选项
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(opts...)
	r.register(h)
	return h
}

func (r *Router) register(h *server.Hertz) {
	h.Use(r.middleware.AccessLog(), r.middleware.CORS())

	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	ingest := api.Group("/ingestion", r.middleware.RateLimit(r.rateLimit, r.burst))
	{
		ingest.GET("/controllers", r.handler.ListControllers)
		ingest.POST("/jobs", r.handler.CreateJob)
		ingest.GET("/jobs/:id", r.handler.GetJob)
		ingest.GET("/jobs/:id/events", r.handler.GetJobEvents)
	}
}
