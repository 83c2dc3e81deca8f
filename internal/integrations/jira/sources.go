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

package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strconv"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestion/pagination"
	"ingest-platform/internal/inventory"
	"ingest-platform/internal/sources/rest"
	"ingest-platform/pkg/config"
)

const maxResults = 50

// NewStages 基于 Jira REST API 构造各阶段控制器；使用 basic 认证（用户名 + API token）
func NewStages(clients *rest.ClientFactory, sink ingestion.StorageSink, cfg config.IngestionConfig, logger *slog.Logger) Stages {
	opts := func(dataType string) rest.StageOptions {
		return rest.StageOptions{
			IntegrationType: IntegrationType,
			DataType:        dataType,
			Scheme:          rest.AuthBasic,
			Sink:            sink,
			OutputPageSize:  cfg.OutputPageSizeFor(dataType, 0),
			PageSize:        maxResults,
			Logger:          logger,
		}
	}
	return Stages{
		StageUsers: rest.PagedStage(clients, opts("users"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query, page, size int) ([]json.RawMessage, error) {
			items, _, err := c.GetItems(ctx, "/rest/api/2/users/search", rest.JiraOffsets.Params(nil, page, size), "")
			return items, err
		}),
		StageFields: rest.StreamStage(clients, opts("fields"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return once(ctx, c, "/rest/api/2/field")
		}),
		StageStatuses: rest.StreamStage(clients, opts("statuses"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return once(ctx, c, "/rest/api/2/status")
		}),
		StageProjects: rest.PagedStage(clients, opts("projects"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query, page, size int) ([]json.RawMessage, error) {
			items, _, err := c.GetItems(ctx, "/rest/api/2/project/search", rest.JiraOffsets.Params(nil, page, size), "values")
			return items, err
		}),
		StageIssues: rest.PagedStage(clients, opts("issues"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query, page, size int) ([]json.RawMessage, error) {
			params := rest.JiraOffsets.Params(map[string]string{
				"jql":    q.IssuesJQL(),
				"fields": "*all",
				"expand": "changelog",
			}, page, size)
			items, _, err := c.GetItems(ctx, "/rest/api/2/search", params, "issues")
			return items, err
		}),
		StageSprints: rest.StreamStage(clients, opts("sprints"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			boards := offsetStream(ctx, c, "/rest/agile/1.0/board", "values")
			return pagination.FlatMap(boards, func(board json.RawMessage) iter.Seq2[json.RawMessage, error] {
				var b struct {
					ID int `json:"id"`
				}
				if err := json.Unmarshal(board, &b); err != nil {
					return func(yield func(json.RawMessage, error) bool) { yield(nil, err) }
				}
				return offsetStream(ctx, c, fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", b.ID), "values")
			})
		}),
		StageVersions: rest.StreamStage(clients, opts("versions"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return pagination.FlatMap(pagination.SliceStream(q.ProjectKeys), func(key string) iter.Seq2[json.RawMessage, error] {
				return once(ctx, c, "/rest/api/2/project/"+url.PathEscape(key)+"/versions")
			})
		}),
	}
}

// once 单次请求返回的数组
func once(ctx context.Context, c *rest.Client, path string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		items, _, err := c.GetItems(ctx, path, nil, "")
		if err != nil {
			yield(nil, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// offsetStream Jira agile 接口的 startAt 分页，以 isLast 判断结束
func offsetStream(ctx context.Context, c *rest.Client, path, itemsField string) iter.Seq2[json.RawMessage, error] {
	return pagination.CursorStream(ctx, func(ctx context.Context, cursor string) (pagination.Page[json.RawMessage], error) {
		startAt := 0
		if cursor != "" {
			startAt, _ = strconv.Atoi(cursor)
		}
		resp, err := c.Get(ctx, path, map[string]string{"startAt": strconv.Itoa(startAt), "maxResults": strconv.Itoa(maxResults)})
		if err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		items, err := rest.ExtractItems(resp.Body, itemsField)
		if err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		var meta struct {
			IsLast bool `json:"isLast"`
		}
		_ = json.Unmarshal(resp.Body, &meta)
		page := pagination.Page[json.RawMessage]{Items: items}
		if !meta.IsLast {
			page.NextCursor = strconv.Itoa(startAt + len(items))
		}
		return page, nil
	})
}
