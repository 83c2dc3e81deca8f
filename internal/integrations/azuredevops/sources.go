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

package azuredevops

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestion/pagination"
	"ingest-platform/internal/inventory"
	"ingest-platform/internal/sources/rest"
	"ingest-platform/pkg/config"
)

const (
	apiVersion        = "7.0"
	pageSize          = 100
	workItemBatchSize = 200
	continuationHdr   = "x-ms-continuationtoken"
)

// Project 组织下的一个项目
type Project struct {
	Organization string `json:"organization"`
	ID           string `json:"id"`
	Name         string `json:"name"`
}

// Key organization/project
func (p Project) Key() string { return p.Organization + "/" + p.Name }

func (p Project) base() string {
	return "/" + url.PathEscape(p.Organization) + "/" + url.PathEscape(p.Name)
}

// ProjectItem 带有所属项目的条目
type ProjectItem struct {
	Organization string          `json:"organization"`
	Project      string          `json:"project"`
	Data         json.RawMessage `json:"data"`
}

type fetchFunc func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error]

// NewStages 基于 Azure DevOps REST API 构造各阶段控制器（个人访问令牌以 basic 认证发送）
func NewStages(clients *rest.ClientFactory, sink ingestion.StorageSink, cfg config.IngestionConfig, logger *slog.Logger) Stages {
	fetchers := map[ingestion.Stage]fetchFunc{
		StageCommits: perRepo(func(ctx context.Context, c *rest.Client, p Project, repo string, q Query) iter.Seq2[json.RawMessage, error] {
			params := map[string]string{}
			window(params, q, "searchCriteria.fromDate", "searchCriteria.toDate")
			return skipPaged(ctx, c, p.base()+"/_apis/git/repositories/"+repo+"/commits", params, "searchCriteria.$top", "searchCriteria.$skip")
		}),
		StagePullRequests: perRepo(func(ctx context.Context, c *rest.Client, p Project, repo string, q Query) iter.Seq2[json.RawMessage, error] {
			return skipPaged(ctx, c, p.base()+"/_apis/git/repositories/"+repo+"/pullrequests",
				map[string]string{"searchCriteria.status": "all"}, "$top", "$skip")
		}),
		StageTags: perRepo(func(ctx context.Context, c *rest.Client, p Project, repo string, q Query) iter.Seq2[json.RawMessage, error] {
			return continued(ctx, c, p.base()+"/_apis/git/repositories/"+repo+"/refs", map[string]string{"filter": "tags/"})
		}),
		StageBranches: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			return once(ctx, c, p.base()+"/_apis/tfvc/branches", nil)
		},
		StageChangesets: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			params := map[string]string{}
			window(params, q, "searchCriteria.fromDate", "searchCriteria.toDate")
			return skipPaged(ctx, c, p.base()+"/_apis/tfvc/changesets", params, "$top", "$skip")
		},
		StageLabels: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			return skipPaged(ctx, c, p.base()+"/_apis/tfvc/labels", nil, "$top", "$skip")
		},
		StagePipelines: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			return continued(ctx, c, p.base()+"/_apis/pipelines", nil)
		},
		StageReleases: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			params := map[string]string{}
			window(params, q, "minCreatedTime", "maxCreatedTime")
			return continued(ctx, c, p.base()+"/_apis/release/releases", params)
		},
		StageBuilds: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			params := map[string]string{}
			window(params, q, "minTime", "maxTime")
			return continued(ctx, c, p.base()+"/_apis/build/builds", params)
		},
		StageWorkItemFields: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			return once(ctx, c, p.base()+"/_apis/wit/fields", nil)
		},
		StageMetadata: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			return once(ctx, c, p.base()+"/_apis/wit/workitemtypes", nil)
		},
		StageWorkItems: workItems,
		StageTeams: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			path := "/" + url.PathEscape(p.Organization) + "/_apis/projects/" + url.PathEscape(p.ID) + "/teams"
			return skipPaged(ctx, c, path, nil, "$top", "$skip")
		},
		StageIterations: func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
			var params map[string]string
			if !q.FetchAllIterations {
				params = map[string]string{"$timeframe": "current"}
			}
			return once(ctx, c, p.base()+"/_apis/work/teamsettings/iterations", params)
		},
		StageWorkItemHistories: revisions,
	}

	stages := make(Stages, len(fetchers))
	for stage, fetch := range fetchers {
		dataType := strings.ToLower(string(stage))
		opts := rest.StageOptions{
			IntegrationType: IntegrationType,
			DataType:        dataType,
			Scheme:          rest.AuthBasic,
			Sink:            sink,
			OutputPageSize:  cfg.OutputPageSizeFor(dataType, 0),
			Logger:          logger,
		}
		stages[stage] = rest.StreamStage(clients, opts, func(ctx context.Context, c *rest.Client, integ *inventory.Integration, q Query) iter.Seq2[json.RawMessage, error] {
			return perProject(ctx, c, integ, stage, q, fetch)
		})
	}
	return stages
}

func withAPIVersion(params map[string]string) map[string]string {
	out := map[string]string{"api-version": apiVersion}
	maps.Copy(out, params)
	return out
}

func window(params map[string]string, q Query, fromParam, toParam string) {
	if q.From != nil {
		params[fromParam] = q.From.UTC().Format(time.RFC3339)
	}
	if q.To != nil {
		params[toParam] = q.To.UTC().Format(time.RFC3339)
	}
}

func failed(err error) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) { yield(nil, err) }
}

// ListProjects 列出集成下所有组织的项目，按 organization/project 排序；
// resumeFrom 非空时从该项目开始
func ListProjects(ctx context.Context, c *rest.Client, integ *inventory.Integration, resumeFrom string) ([]Project, error) {
	var projects []Project
	for _, org := range integ.Strings("organizations") {
		for raw, err := range continued(ctx, c, "/"+url.PathEscape(org)+"/_apis/projects", nil) {
			if err != nil {
				return nil, err
			}
			var p Project
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, &ingestion.ParseError{What: "azure devops project", Err: err}
			}
			p.Organization = org
			projects = append(projects, p)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Key() < projects[j].Key() })
	if resumeFrom == "" {
		return projects, nil
	}
	start := sort.Search(len(projects), func(i int) bool { return projects[i].Key() >= resumeFrom })
	return projects[start:], nil
}

// perProject 逐项目拉取；已有项目处理完后某个项目失败时，返回以该项目为游标的可恢复错误
func perProject(ctx context.Context, c *rest.Client, integ *inventory.Integration, stage ingestion.Stage, q Query, fetch fetchFunc) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		projects, err := ListProjects(ctx, c, integ, q.ResumeFrom)
		if err != nil {
			yield(nil, err)
			return
		}
		for i, p := range projects {
			for item, err := range fetch(ctx, c, p, q) {
				if err != nil {
					if i > 0 {
						err = checkpointAt(stage, p, err)
					}
					yield(nil, err)
					return
				}
				wrapped, err := wrapItem(p, item)
				if !yield(wrapped, err) || err != nil {
					return
				}
			}
		}
	}
}

func checkpointAt(stage ingestion.Stage, p Project, cause error) error {
	st := ingestion.IntermediateState{ResumeCursor: resumeCursor(stage, p.Key())}
	encoded, err := ingestion.EncodeState(&st)
	if err != nil {
		return cause
	}
	return &ingestion.ResumableError{
		Partial:           ingestion.Empty(),
		IntermediateState: encoded,
		Cause:             &ingestion.FetchError{IntegrationType: IntegrationType, DataType: strings.ToLower(string(stage)), Err: cause},
	}
}

func wrapItem(p Project, item json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(ProjectItem{Organization: p.Organization, Project: p.Name, Data: item})
}

// perRepo 对项目下每个 Git 仓库调用 fetch
func perRepo(fetch func(ctx context.Context, c *rest.Client, p Project, repo string, q Query) iter.Seq2[json.RawMessage, error]) fetchFunc {
	return func(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
		repos := once(ctx, c, p.base()+"/_apis/git/repositories", nil)
		return pagination.FlatMap(repos, func(raw json.RawMessage) iter.Seq2[json.RawMessage, error] {
			var repo struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &repo); err != nil {
				return failed(err)
			}
			return fetch(ctx, c, p, url.PathEscape(repo.ID), q)
		})
	}
}

// once 单次请求，条目位于 value 字段
func once(ctx context.Context, c *rest.Client, path string, params map[string]string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		items, _, err := c.GetItems(ctx, path, withAPIVersion(params), "value")
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

// skipPaged $top/$skip 分页，某页不足 pageSize 条时结束
func skipPaged(ctx context.Context, c *rest.Client, path string, params map[string]string, topParam, skipParam string) iter.Seq2[json.RawMessage, error] {
	return pagination.CursorStream(ctx, func(ctx context.Context, cursor string) (pagination.Page[json.RawMessage], error) {
		skip, _ := strconv.Atoi(cursor)
		p := withAPIVersion(params)
		p[topParam] = strconv.Itoa(pageSize)
		p[skipParam] = strconv.Itoa(skip)
		items, _, err := c.GetItems(ctx, path, p, "value")
		if err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		page := pagination.Page[json.RawMessage]{Items: items}
		if len(items) == pageSize {
			page.NextCursor = strconv.Itoa(skip + pageSize)
		}
		return page, nil
	})
}

// continued 以 x-ms-continuationtoken 响应头翻页
func continued(ctx context.Context, c *rest.Client, path string, params map[string]string) iter.Seq2[json.RawMessage, error] {
	return pagination.CursorStream(ctx, func(ctx context.Context, cursor string) (pagination.Page[json.RawMessage], error) {
		p := withAPIVersion(params)
		p["$top"] = strconv.Itoa(pageSize)
		if cursor != "" {
			p["continuationToken"] = cursor
		}
		items, resp, err := c.GetItems(ctx, path, p, "value")
		if err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		return pagination.Page[json.RawMessage]{Items: items, NextCursor: resp.Header.Get(continuationHdr)}, nil
	})
}

// workItems WIQL 查询变更窗口内的工作项 ID，再分批取详情；开启评论时逐条附加评论
func workItems(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		wiql := fmt.Sprintf("Select [System.Id] From WorkItems Where [System.TeamProject] = '%s'", strings.ReplaceAll(p.Name, "'", "''"))
		if q.From != nil {
			wiql += fmt.Sprintf(" And [System.ChangedDate] >= '%s'", q.From.UTC().Format("2006-01-02"))
		}
		wiql += " Order By [System.ChangedDate] Asc"
		resp, err := c.Post(ctx, p.base()+"/_apis/wit/wiql", withAPIVersion(nil), map[string]string{"query": wiql})
		if err != nil {
			yield(nil, err)
			return
		}
		var result struct {
			WorkItems []struct {
				ID int `json:"id"`
			} `json:"workItems"`
		}
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			yield(nil, err)
			return
		}
		withComments := ingestion.FlagEnabled(nil, q.IngestionFlags, FlagWorkItemComments, false)
		for start := 0; start < len(result.WorkItems); start += workItemBatchSize {
			end := min(start+workItemBatchSize, len(result.WorkItems))
			ids := make([]string, 0, end-start)
			for _, wi := range result.WorkItems[start:end] {
				ids = append(ids, strconv.Itoa(wi.ID))
			}
			items, _, err := c.GetItems(ctx, "/"+url.PathEscape(p.Organization)+"/_apis/wit/workitems",
				withAPIVersion(map[string]string{"ids": strings.Join(ids, ","), "$expand": "all"}), "value")
			if err != nil {
				yield(nil, err)
				return
			}
			for _, item := range items {
				if withComments {
					// 批量接口会略过已删除或无权限的工作项，评论按条目自身的 id 取
					var wi struct {
						ID int `json:"id"`
					}
					if err := json.Unmarshal(item, &wi); err != nil {
						yield(nil, &ingestion.ParseError{What: "azure devops work item", Err: err})
						return
					}
					comments, err := c.Get(ctx, p.base()+"/_apis/wit/workItems/"+strconv.Itoa(wi.ID)+"/comments", map[string]string{"api-version": apiVersion + "-preview.3"})
					if err != nil {
						yield(nil, err)
						return
					}
					if item, err = withField(item, "comments", comments.Body); err != nil {
						yield(nil, err)
						return
					}
				}
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// revisions 工作项修订历史（reporting API，以 continuationToken/isLastBatch 翻页）
func revisions(ctx context.Context, c *rest.Client, p Project, q Query) iter.Seq2[json.RawMessage, error] {
	return pagination.CursorStream(ctx, func(ctx context.Context, cursor string) (pagination.Page[json.RawMessage], error) {
		params := withAPIVersion(map[string]string{"includeDeleted": "true"})
		if cursor != "" {
			params["continuationToken"] = cursor
		} else if q.From != nil {
			params["startDateTime"] = q.From.UTC().Format(time.RFC3339)
		}
		resp, err := c.Get(ctx, p.base()+"/_apis/wit/reporting/workitemrevisions", params)
		if err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		var batch struct {
			Values            []json.RawMessage `json:"values"`
			ContinuationToken string            `json:"continuationToken"`
			IsLastBatch       bool              `json:"isLastBatch"`
		}
		if err := json.Unmarshal(resp.Body, &batch); err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		page := pagination.Page[json.RawMessage]{Items: batch.Values}
		if !batch.IsLastBatch {
			page.NextCursor = batch.ContinuationToken
		}
		return page, nil
	})
}

// withField 在 JSON 对象上附加一个字段
func withField(obj json.RawMessage, key string, value json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	fields[key] = value
	return json.Marshal(fields)
}
