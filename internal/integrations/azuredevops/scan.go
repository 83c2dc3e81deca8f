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
	"log/slog"
	"maps"
	"strings"
	"time"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/inventory"
)

// DefaultOnboardingDays 首次扫描的默认回溯天数
const DefaultOnboardingDays = 90

// Stages 每个阶段的数据控制器
type Stages map[ingestion.Stage]ingestion.DataController[Query]

// Options 扫描控制器选项
type Options struct {
	OnboardingDays   int
	DisablePromotion bool
	Now              func() time.Time
	Logger           *slog.Logger
}

// ScanController Azure DevOps 迭代扫描
type ScanController struct {
	inventory inventory.Service
	stages    Stages
	opts      Options
}

// NewScanController 创建扫描控制器；stages 中缺失的阶段视为禁用
func NewScanController(inv inventory.Service, stages Stages, opts Options) *ScanController {
	if opts.OnboardingDays <= 0 {
		opts.OnboardingDays = DefaultOnboardingDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ScanController{inventory: inv, stages: stages, opts: opts}
}

type stageSpec struct {
	category JobCategory
	stage    ingestion.Stage
	flag     string
}

// stageOrder 各类别内的阶段顺序
var stageOrder = []stageSpec{
	{CategorySCMGit, StageCommits, FlagCommits},
	{CategorySCMGit, StagePullRequests, FlagPRs},
	{CategorySCMGit, StageTags, FlagTags},
	{CategorySCMTFVC, StageBranches, FlagBranches},
	{CategorySCMTFVC, StageChangesets, FlagChangesets},
	{CategorySCMTFVC, StageLabels, FlagLabels},
	{CategoryCICD, StagePipelines, FlagPipelines},
	{CategoryCICD, StageReleases, FlagReleases},
	{CategoryCICD, StageBuilds, FlagBuilds},
	{CategoryBoards1, StageWorkItemFields, FlagWorkItemFields},
	{CategoryBoards1, StageMetadata, FlagMetadata},
	{CategoryBoards1, StageWorkItems, FlagWorkItems},
	{CategoryBoards1, StageTeams, FlagTeams},
	{CategoryBoards2, StageIterations, FlagIterations},
	{CategoryBoards2, StageWorkItemHistories, FlagWorkItemHistories},
}

// Ingest 实现 ingestion.DataController
func (c *ScanController) Ingest(ctx context.Context, jc ingestion.JobContext, q Query) (ingestion.Result, error) {
	now := c.opts.Now().UTC()
	from, onboarding := ingestion.OnboardingWindow(now, q.From, c.opts.OnboardingDays)
	q.From = &from
	if q.To == nil {
		q.To = &now
	}
	q.Onboarding = onboarding || q.FetchOnce

	var state State
	if err := ingestion.DecodeState(jc.IntermediateState, &state); err != nil {
		return ingestion.Result{}, err
	}
	integ, err := c.inventory.GetIntegration(ctx, jc.IntegrationKey)
	if err != nil {
		return ingestion.Result{}, err
	}

	c.opts.Logger.Info("Azure DevOps 迭代扫描",
		"job_id", jc.JobID, "integration_id", jc.IntegrationKey.IntegrationID,
		"from", q.From, "to", q.To, "onboarding", q.Onboarding, "categories", q.JobCategories,
		"completed_stages", state.CompletedStages.Stages(), "resume_from", state.ResumeCursor)

	enabled := func(flag string) bool {
		switch flag {
		case FlagReleases:
			// 发布管道需要集成显式开启
			if _, ok := integ.Metadata[FlagReleases]; !ok {
				return false
			}
		case FlagTags:
			if !q.Onboarding {
				return false
			}
		}
		return ingestion.FlagEnabled(integ.Metadata, q.IngestionFlags, flag, true)
	}
	flags := maps.Clone(q.IngestionFlags)
	if flags == nil {
		flags = make(map[string]any, 1)
	}
	flags[FlagWorkItemComments] = enabled(FlagWorkItemComments)
	q.IngestionFlags = flags

	steps := make([]ingestion.Step, 0, len(stageOrder))
	for _, sd := range stageOrder {
		ctrl, ok := c.stages[sd.stage]
		steps = append(steps, ingestion.Step{
			Stage:   sd.stage,
			Enabled: ok && q.Includes(sd.category) && enabled(sd.flag),
			Run: func(ctx context.Context, jc ingestion.JobContext) (ingestion.Result, error) {
				stageQuery := q
				var current State
				if err := ingestion.DecodeState(jc.IntermediateState, &current); err == nil {
					stageQuery.ResumeFrom = resumePosition(current.ResumeCursor, sd.stage)
				}
				return ctrl.Ingest(ctx, jc, stageQuery)
			},
		})
	}
	runner := ingestion.ScanRunner{
		IntegrationType:  IntegrationType,
		MergeStrategy:    ingestion.MergeStorageResultsList,
		DisablePromotion: c.opts.DisablePromotion,
		Logger:           c.opts.Logger,
	}
	return runner.Run(ctx, jc, &state, steps)
}

// ParseQuery 实现 ingestion.DataController
func (c *ScanController) ParseQuery(raw any) (Query, error) {
	return ingestion.DecodeQuery[Query](raw)
}

// resumeCursor 检查点游标：<stage>@<organization>/<project>
func resumeCursor(stage ingestion.Stage, position string) string {
	return string(stage) + "@" + position
}

// resumePosition 游标属于 stage 时返回其中的 organization/project
func resumePosition(cursor string, stage ingestion.Stage) string {
	position, ok := strings.CutPrefix(cursor, string(stage)+"@")
	if !ok {
		return ""
	}
	return position
}
