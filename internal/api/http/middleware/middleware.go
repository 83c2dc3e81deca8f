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

package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"
)

// Middleware 控制面中间件集合
type Middleware struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewMiddleware 创建中间件
func NewMiddleware() *Middleware {
	return &Middleware{limiters: make(map[string]*rate.Limiter)}
}

// CORS CORS 中间件
func (m *Middleware) CORS() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")
		ctx.Header("Access-Control-Max-Age", "86400")

		if string(ctx.Method()) == consts.MethodOptions {
			ctx.AbortWithStatus(consts.StatusNoContent)
			return
		}
		ctx.Next(c)
	}
}

// RateLimit 按客户端 IP 的令牌桶限流；rps<=0 时不限流
func (m *Middleware) RateLimit(rps float64, burst int) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		if rps <= 0 {
			ctx.Next(c)
			return
		}
		if !m.limiter(ctx.ClientIP(), rps, burst).Allow() {
			ctx.AbortWithStatusJSON(consts.StatusTooManyRequests, map[string]string{
				"error": "请求过于频繁，请稍后再试",
			})
			return
		}
		ctx.Next(c)
	}
}

func (m *Middleware) limiter(key string, rps float64, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[key]
	if !ok {
		if burst <= 0 {
			burst = int(rps) + 1
		}
		l = rate.NewLimiter(rate.Limit(rps), burst)
		m.limiters[key] = l
	}
	return l
}

// AccessLog 请求日志
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		hlog.CtxInfof(c, "%s %s status=%d latency=%s",
			ctx.Method(), ctx.Request.URI().PathOriginal(), ctx.Response.StatusCode(), time.Since(start))
	}
}
