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

// Package jira Jira 多阶段扫描：辅助元数据（尽力而为）→ projects → issues → sprints → versions
package jira

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ingest-platform/internal/ingestion"
)

// IntegrationType 集成类型
const IntegrationType = "jira"

// 扫描阶段
const (
	StageUsers    ingestion.Stage = "USERS"
	StageFields   ingestion.Stage = "FIELDS"
	StageStatuses ingestion.Stage = "STATUSES"
	StageProjects ingestion.Stage = "PROJECTS"
	StageIssues   ingestion.Stage = "ISSUES"
	StageSprints  ingestion.Stage = "SPRINTS"
	StageVersions ingestion.Stage = "VERSIONS"
)

const (
	FlagUsers    = "fetch_users"
	FlagFields   = "fetch_fields"
	FlagStatuses = "fetch_statuses"
	FlagProjects = "fetch_projects"
	FlagSprints  = "fetch_sprints"
	FlagVersions = "fetch_versions"
)

const jqlTimeLayout = "2006/01/02 15:04"

// Query 迭代扫描请求
type Query struct {
	IntegrationID string     `json:"integration_id,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
	ProjectKeys   []string   `json:"project_keys,omitempty"`
	// JQL 追加的过滤条件
	JQL            string         `json:"jql,omitempty"`
	FetchOnce      bool           `json:"fetch_once,omitempty"`
	IngestionFlags map[string]any `json:"ingestion_flags,omitempty"`
	Onboarding     bool           `json:"onboarding,omitempty"`
}

// Validate 实现 ingestion.Validator
func (q *Query) Validate() error {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return errors.New("to 早于 from")
	}
	return nil
}

// IssuesJQL 按更新时间窗口 [from, to) 与项目过滤的 JQL
func (q Query) IssuesJQL() string {
	var clauses []string
	if q.From != nil {
		clauses = append(clauses, fmt.Sprintf(`updated >= "%s"`, q.From.UTC().Format(jqlTimeLayout)))
	}
	if q.To != nil {
		clauses = append(clauses, fmt.Sprintf(`updated < "%s"`, q.To.UTC().Format(jqlTimeLayout)))
	}
	if len(q.ProjectKeys) > 0 {
		clauses = append(clauses, fmt.Sprintf("project in (%s)", strings.Join(q.ProjectKeys, ",")))
	}
	if q.JQL != "" {
		clauses = append(clauses, "("+q.JQL+")")
	}
	return strings.Join(clauses, " AND ") + " ORDER BY updated ASC"
}

// State Jira 扫描检查点
type State struct {
	ingestion.IntermediateState
}
