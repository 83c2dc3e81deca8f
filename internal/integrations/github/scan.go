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
	"log/slog"
	"time"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/inventory"
)

// DefaultOnboardingDays 首次扫描的默认回溯天数
const DefaultOnboardingDays = 14

// Stages 每个阶段的数据控制器
type Stages map[ingestion.Stage]ingestion.DataController[Query]

// Options 扫描控制器选项
type Options struct {
	OnboardingDays   int
	DisablePromotion bool
	Now              func() time.Time
	Logger           *slog.Logger
}

// ScanController GitHub 迭代扫描
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

	c.opts.Logger.Info("GitHub 迭代扫描",
		"job_id", jc.JobID, "integration_id", jc.IntegrationKey.IntegrationID,
		"from", q.From, "to", q.To, "onboarding", q.Onboarding,
		"completed_stages", state.CompletedStages.Stages())

	enabled := func(flag string, def bool) bool {
		return ingestion.FlagEnabled(integ.Metadata, q.IngestionFlags, flag, def)
	}
	projects := enabled(FlagProjects, false)
	steps := []ingestion.Step{
		c.step(StageUsers, enabled(FlagUsers, true), q),
		c.step(StageCommits, enabled(FlagCommits, true), q),
		c.step(StagePRs, enabled(FlagPRs, true), q),
		c.step(StageTags, enabled(FlagTags, true), q),
		c.step(StageIssues, enabled(FlagIssues, true), q),
		c.step(StageProjects, projects, q),
	}
	repos := c.step(StageRepos, true, q)
	repos.SkipWhenNothingFetched = !q.ShouldFetchRepos && !projects
	steps = append(steps, repos)

	runner := ingestion.ScanRunner{
		IntegrationType:  IntegrationType,
		MergeStrategy:    ingestion.MergeStorageResultsList,
		DisablePromotion: c.opts.DisablePromotion,
		Logger:           c.opts.Logger,
	}
	return runner.Run(ctx, jc, &state, steps)
}

func (c *ScanController) step(stage ingestion.Stage, enabled bool, q Query) ingestion.Step {
	ctrl, ok := c.stages[stage]
	return ingestion.Step{
		Stage:   stage,
		Enabled: enabled && ok,
		Run: func(ctx context.Context, jc ingestion.JobContext) (ingestion.Result, error) {
			return ctrl.Ingest(ctx, jc, q)
		},
	}
}

// ParseQuery 实现 ingestion.DataController
func (c *ScanController) ParseQuery(raw any) (Query, error) {
	return ingestion.DecodeQuery[Query](raw)
}
