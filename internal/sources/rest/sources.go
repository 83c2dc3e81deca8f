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

package rest

import (
	"context"
	"encoding/json"
	"iter"
	"maps"
	"regexp"
	"strconv"

	"ingest-platform/internal/ingestion/pagination"
)

// Query 通用 REST 查询：附加查询参数 + 分页位置（由分页策略填写）
type Query struct {
	IntegrationID string            `json:"integration_id,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	Page          int               `json:"-"`
	PageSize      int               `json:"-"`
}

// WithPage 实现 pagination.PageQueryFunc
func WithPage(q Query, page, size int) Query {
	q.Page = page
	q.PageSize = size
	return q
}

// PageStyle 上游分页参数风格
type PageStyle struct {
	// Offset 为 true 时 PageParam 携带条目偏移量（如 Jira 的 startAt），否则为页码
	Offset    bool
	PageParam string
	SizeParam string
	// FirstPage 页码起点（GitHub 为 1）
	FirstPage int
}

// GitHubPages GitHub REST 的页码风格
var GitHubPages = PageStyle{PageParam: "page", SizeParam: "per_page", FirstPage: 1}

// JiraOffsets Jira REST 的偏移量风格
var JiraOffsets = PageStyle{Offset: true, PageParam: "startAt", SizeParam: "maxResults"}

// Params 合并查询参数与分页参数
func (s PageStyle) Params(base map[string]string, page, size int) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, 2)
	}
	pos := s.FirstPage + page
	if s.Offset {
		pos = page * size
	}
	if s.PageParam != "" {
		out[s.PageParam] = strconv.Itoa(pos)
	}
	if s.SizeParam != "" && size > 0 {
		out[s.SizeParam] = strconv.Itoa(size)
	}
	return out
}

// NumberedSource 页码/偏移量分页的 PagedSource
func NumberedSource(c *Client, path string, style PageStyle, itemsField string) pagination.PagedSourceFunc[json.RawMessage, Query] {
	return func(ctx context.Context, q Query) (pagination.Page[json.RawMessage], error) {
		items, _, err := c.GetItems(ctx, path, style.Params(q.Params, q.Page, q.PageSize), itemsField)
		if err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		return pagination.Page[json.RawMessage]{Items: items, Number: q.Page}, nil
	}
}

// SingleSource 单次请求返回全部条目
func SingleSource(c *Client, path string, itemsField string) pagination.SingleSourceFunc[[]json.RawMessage, Query] {
	return func(ctx context.Context, q Query) ([]json.RawMessage, error) {
		items, _, err := c.GetItems(ctx, path, q.Params, itemsField)
		return items, err
	}
}

// LinkStream 跟随 RFC 5988 Link 头中的 rel="next" 惰性拉取
func LinkStream(ctx context.Context, c *Client, path string, params map[string]string, itemsField string) iter.Seq2[json.RawMessage, error] {
	return pagination.CursorStream(ctx, func(ctx context.Context, cursor string) (pagination.Page[json.RawMessage], error) {
		target, query := path, params
		if cursor != "" {
			target, query = cursor, nil
		}
		items, resp, err := c.GetItems(ctx, target, query, itemsField)
		if err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		return pagination.Page[json.RawMessage]{Items: items, NextCursor: NextLink(resp.Header.Get("Link"))}, nil
	})
}

var linkNextRe = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="?next"?`)

// NextLink 解析 Link 头中的 next URL
func NextLink(header string) string {
	m := linkNextRe.FindStringSubmatch(header)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
