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

// Package azuredevops Azure DevOps 迭代扫描：按作业类别（Git、TFVC、CI/CD、Boards）划分阶段
package azuredevops

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"ingest-platform/internal/ingestion"
)

// IntegrationType 集成类型
const IntegrationType = "azure_devops"

// JobCategory 作业类别；一次扫描可只运行部分类别
type JobCategory string

const (
	CategorySCMGit  JobCategory = "SCM_GIT"
	CategorySCMTFVC JobCategory = "SCM_TFVC"
	CategoryCICD    JobCategory = "CICD"
	CategoryBoards1 JobCategory = "BOARDS_1"
	CategoryBoards2 JobCategory = "BOARDS_2"
)

var allCategories = []JobCategory{CategorySCMGit, CategorySCMTFVC, CategoryCICD, CategoryBoards1, CategoryBoards2}

// 扫描阶段
const (
	StageCommits           ingestion.Stage = "COMMITS"
	StagePullRequests      ingestion.Stage = "PULL_REQUESTS"
	StageTags              ingestion.Stage = "TAGS"
	StageBranches          ingestion.Stage = "BRANCHES"
	StageChangesets        ingestion.Stage = "CHANGESETS"
	StageLabels            ingestion.Stage = "LABELS"
	StagePipelines         ingestion.Stage = "PIPELINES"
	StageReleases          ingestion.Stage = "RELEASES"
	StageBuilds            ingestion.Stage = "BUILDS"
	StageWorkItemFields    ingestion.Stage = "WORK_ITEMS_FIELDS"
	StageMetadata          ingestion.Stage = "METADATA"
	StageWorkItems         ingestion.Stage = "WORK_ITEMS"
	StageTeams             ingestion.Stage = "TEAMS"
	StageIterations        ingestion.Stage = "ITERATIONS"
	StageWorkItemHistories ingestion.Stage = "WORK_ITEMS_HISTORIES"
)

const (
	FlagCommits           = "fetch_commits"
	FlagPRs               = "fetch_prs"
	FlagTags              = "fetch_tags"
	FlagBranches          = "fetch_branches"
	FlagChangesets        = "fetch_change_sets"
	FlagLabels            = "fetch_labels"
	FlagPipelines         = "fetch_pipelines"
	FlagReleases          = "fetch_releases"
	FlagBuilds            = "fetch_builds"
	FlagWorkItemFields    = "fetch_workitem_fields"
	FlagMetadata          = "fetch_metadata"
	FlagWorkItems         = "fetch_work_items"
	FlagWorkItemComments  = "fetch_work_items_comments"
	FlagTeams             = "fetch_teams"
	FlagIterations        = "fetch_iterations"
	FlagWorkItemHistories = "fetch_workitem_histories"
)

// Query 迭代扫描请求
type Query struct {
	IntegrationID string     `json:"integration_id,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
	// JobCategories 为空表示全部类别
	JobCategories      []JobCategory  `json:"job_categories,omitempty"`
	FetchOnce          bool           `json:"fetch_once,omitempty"`
	FetchAllIterations bool           `json:"fetch_all_iterations,omitempty"`
	IngestionFlags     map[string]any `json:"ingestion_flags,omitempty"`
	Onboarding         bool           `json:"onboarding,omitempty"`
	// ResumeFrom 当前阶段从该 organization/project 继续，由扫描控制器按检查点填写
	ResumeFrom string `json:"-"`
}

// Validate 实现 ingestion.Validator
func (q *Query) Validate() error {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return errors.New("to 早于 from")
	}
	for _, c := range q.JobCategories {
		if !slices.Contains(allCategories, c) {
			return fmt.Errorf("未知的作业类别 %q", c)
		}
	}
	return nil
}

// Includes 是否运行 category
func (q Query) Includes(category JobCategory) bool {
	return len(q.JobCategories) == 0 || slices.Contains(q.JobCategories, category)
}

// State Azure DevOps 扫描检查点；ResumeCursor 记录失败阶段及其正在处理的 organization/project
type State struct {
	ingestion.IntermediateState
}
