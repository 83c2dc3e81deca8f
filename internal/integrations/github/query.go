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

// Package github GitHub 多阶段扫描：users → commits → prs → tags → issues → projects → repos
package github

import (
	"errors"
	"time"

	"ingest-platform/internal/ingestion"
)

// IntegrationType 集成类型
const IntegrationType = "github"

// 扫描阶段
const (
	StageUsers    ingestion.Stage = "USERS"
	StageCommits  ingestion.Stage = "COMMITS"
	StagePRs      ingestion.Stage = "PRS"
	StageTags     ingestion.Stage = "TAGS"
	StageIssues   ingestion.Stage = "ISSUES"
	StageProjects ingestion.Stage = "PROJECTS"
	StageRepos    ingestion.Stage = "REPOS"
)

// 每个阶段对应的开关（集成元数据或 query 的 ingestion_flags）
const (
	FlagUsers    = "fetch_users"
	FlagCommits  = "fetch_commits"
	FlagPRs      = "fetch_prs"
	FlagTags     = "fetch_tags"
	FlagIssues   = "fetch_issues"
	FlagProjects = "fetch_projects"
)

// Query 迭代扫描请求
type Query struct {
	IntegrationID string     `json:"integration_id,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
	// Repos 仓库白名单（owner/name）；为空时使用集成元数据中的 repos，再退化为组织下全部仓库
	Repos            []string       `json:"repos,omitempty"`
	ShouldFetchRepos bool           `json:"should_fetch_repos,omitempty"`
	FetchOnce        bool           `json:"fetch_once,omitempty"`
	IngestionFlags   map[string]any `json:"ingestion_flags,omitempty"`
	// Onboarding 由扫描控制器填写
	Onboarding bool `json:"onboarding,omitempty"`
}

// Validate 实现 ingestion.Validator
func (q *Query) Validate() error {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return errors.New("to 早于 from")
	}
	return nil
}

// State GitHub 扫描检查点
type State struct {
	ingestion.IntermediateState
}
