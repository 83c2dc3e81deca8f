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

// Package rest 通用 REST DataSource：resty 客户端 + 按 host 限流 + 分页适配
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// AuthScheme 认证方式
type AuthScheme string

const (
	AuthNone   AuthScheme = ""
	AuthBearer AuthScheme = "bearer"
	AuthBasic  AuthScheme = "basic"
	AuthToken  AuthScheme = "token"
)

// ClientConfig 客户端配置
type ClientConfig struct {
	BaseURL    string
	Scheme     AuthScheme
	Username   string
	Token      string
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
	// QPS <=0 表示不限流
	QPS     float64
	Burst   int
	Headers map[string]string
}

// Client 带限流的 REST 客户端
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// HTTPError 上游返回非 2xx
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s %s 返回 %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Temporary 429 与 5xx 视为暂时性失败
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound 是否为 404
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

// NewClient 创建客户端
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	if cfg.UserAgent != "" {
		hc.SetHeader("User-Agent", cfg.UserAgent)
	}
	for k, v := range cfg.Headers {
		hc.SetHeader(k, v)
	}
	switch cfg.Scheme {
	case AuthBearer:
		hc.SetAuthToken(cfg.Token)
	case AuthToken:
		hc.SetAuthScheme("token").SetAuthToken(cfg.Token)
	case AuthBasic:
		hc.SetBasicAuth(cfg.Username, cfg.Token)
	}
	c := &Client{http: hc}
	if cfg.QPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	}
	return c
}

// Response 一次 GET 的结果
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get 发起 GET；path 可以是相对路径或完整 URL（如 Link 头中的 next）
func (c *Client) Get(ctx context.Context, path string, params map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

// Post 以 JSON 请求体发起 POST（如 Azure DevOps 的 WIQL 查询）
func (c *Client) Post(ctx context.Context, path string, params map[string]string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, params, body)
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]string, body any) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		he := &HTTPError{
			Method:     method,
			URL:        resp.Request.URL,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
		if ra := resp.Header().Get("Retry-After"); ra != "" {
			if secs, convErr := time.ParseDuration(ra + "s"); convErr == nil {
				he.RetryAfter = secs
			}
		}
		return nil, he
	}
	return &Response{StatusCode: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}, nil
}

// GetItems GET 并取出条目数组；itemsField 为空表示响应体本身是数组，支持 a.b 形式的嵌套字段
func (c *Client) GetItems(ctx context.Context, path string, params map[string]string, itemsField string) ([]json.RawMessage, *Response, error) {
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return nil, nil, err
	}
	items, err := ExtractItems(resp.Body, itemsField)
	if err != nil {
		return nil, resp, fmt.Errorf("解析 %s 响应失败: %w", path, err)
	}
	return items, resp, nil
}

// ExtractItems 从 JSON 文档中取出条目数组；字段缺失或为 null 时返回空
func ExtractItems(body []byte, itemsField string) ([]json.RawMessage, error) {
	raw := json.RawMessage(body)
	if itemsField != "" {
		for _, part := range strings.Split(itemsField, ".") {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, err
			}
			next, ok := obj[part]
			if !ok {
				return nil, nil
			}
			raw = next
		}
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
