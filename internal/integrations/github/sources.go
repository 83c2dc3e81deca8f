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

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"time"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestion/pagination"
	"ingest-platform/internal/inventory"
	"ingest-platform/internal/sources/rest"
	"ingest-platform/pkg/config"
)

const perPage = "100"

// RepoItem 带有所属仓库的条目
type RepoItem struct {
	Repo string          `json:"repo"`
	Data json.RawMessage `json:"data"`
}

// NewStages 基于 GitHub REST API 构造各阶段控制器
func NewStages(clients *rest.ClientFactory, sink ingestion.StorageSink, cfg config.IngestionConfig, logger *slog.Logger) Stages {
	if logger == nil {
		logger = slog.Default()
	}
	opts := func(dataType string) rest.StageOptions {
		return rest.StageOptions{
			IntegrationType: IntegrationType,
			DataType:        dataType,
			Scheme:          rest.AuthBearer,
			Sink:            sink,
			OutputPageSize:  cfg.OutputPageSizeFor(dataType, 0),
			Logger:          logger,
		}
	}
	return Stages{
		StageUsers: rest.StreamStage(clients, opts("users"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return perOrg(ctx, c, integ, "/orgs/%s/members", nil)
		}),
		StageCommits: rest.StreamStage(clients, opts("commits"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return perRepo(ctx, c, logger, integ, q, "/repos/%s/commits", windowParams(q, "since", "until"))
		}),
		StagePRs: rest.StreamStage(clients, opts("pull_requests"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return perRepo(ctx, c, logger, integ, q, "/repos/%s/pulls", map[string]string{"state": "all", "sort": "updated", "direction": "desc"})
		}),
		StageTags: rest.StreamStage(clients, opts("tags"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return perRepo(ctx, c, logger, integ, q, "/repos/%s/tags", nil)
		}),
		StageIssues: rest.StreamStage(clients, opts("issues"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			params := windowParams(q, "since", "")
			params["state"] = "all"
			return perRepo(ctx, c, logger, integ, q, "/repos/%s/issues", params)
		}),
		StageProjects: rest.StreamStage(clients, opts("projects"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return perOrg(ctx, c, integ, "/orgs/%s/projects", map[string]string{"state": "all"})
		}),
		StageRepos: rest.StreamStage(clients, opts("repositories"), func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return perOrg(ctx, c, integ, "/orgs/%s/repos", map[string]string{"type": "all"})
		}),
	}
}

// windowParams 窗口为 [from, to)；GitHub 的 until 含端点且精度到秒，取早于 to 的最后一秒
func windowParams(q Query, fromParam, toParam string) map[string]string {
	params := map[string]string{}
	if q.From != nil && fromParam != "" {
		params[fromParam] = q.From.UTC().Format(time.RFC3339)
	}
	if q.To != nil && toParam != "" {
		params[toParam] = q.To.UTC().Add(-time.Nanosecond).Truncate(time.Second).Format(time.RFC3339)
	}
	return params
}

func withPerPage(params map[string]string) map[string]string {
	out := map[string]string{"per_page": perPage}
	for k, v := range params {
		out[k] = v
	}
	return out
}

// perOrg 对集成元数据中的每个组织拉取 pathFmt
func perOrg(ctx context.Context, c *rest.Client, integ *inventory.Integration, pathFmt string, params map[string]string) iter.Seq2[json.RawMessage, error] {
	orgs := pagination.SliceStream(integ.Strings("organizations"))
	return pagination.FlatMap(orgs, func(org string) iter.Seq2[json.RawMessage, error] {
		return rest.LinkStream(ctx, c, fmt.Sprintf(pathFmt, url.PathEscape(org)), withPerPage(params), "")
	})
}

// perRepo 对每个仓库拉取 pathFmt，条目包装为 RepoItem
// 单个仓库 404（已删除、改名或无权限）记 warn 后跳过
func perRepo(ctx context.Context, c *rest.Client, logger *slog.Logger, integ *inventory.Integration, q Query, pathFmt string, params map[string]string) iter.Seq2[json.RawMessage, error] {
	return pagination.FlatMap(repoNames(ctx, c, integ, q), func(repo string) iter.Seq2[json.RawMessage, error] {
		items := rest.LinkStream(ctx, c, fmt.Sprintf(pathFmt, repo), withPerPage(params), "")
		return func(yield func(json.RawMessage, error) bool) {
			for item, err := range items {
				if err != nil {
					if rest.IsNotFound(err) {
						logger.Warn("仓库不存在或无权限，跳过", "integration_id", integ.Key.IntegrationID, "repo", repo, "path", fmt.Sprintf(pathFmt, repo))
						return
					}
					yield(nil, err)
					return
				}
				wrapped, err := json.Marshal(RepoItem{Repo: repo, Data: item})
				if !yield(wrapped, err) || err != nil {
					return
				}
			}
		}
	})
}

// repoNames query 白名单 > 集成元数据 repos > 组织下全部仓库
func repoNames(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[string, error] {
	if len(q.Repos) > 0 {
		return pagination.SliceStream(q.Repos)
	}
	if repos := integ.Strings("repos"); len(repos) > 0 {
		return pagination.SliceStream(repos)
	}
	all := perOrg(ctx, c, integ, "/orgs/%s/repos", map[string]string{"type": "all"})
	return func(yield func(string, error) bool) {
		for raw, err := range all {
			if err != nil {
				yield("", err)
				return
			}
			var repo struct {
				FullName string `json:"full_name"`
			}
			if err := json.Unmarshal(raw, &repo); err != nil {
				yield("", err)
				return
			}
			if repo.FullName != "" && !yield(repo.FullName, nil) {
				return
			}
		}
	}
}
