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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/inventory"
	"ingest-platform/pkg/config"
)

var testKey = ingestion.IntegrationKey{TenantID: "acme", IntegrationID: "ado-1"}

type fakeStage struct {
	calls int
	seen  Query
}

func (f *fakeStage) Ingest(ctx context.Context, jc ingestion.JobContext, q Query) (ingestion.Result, error) {
	f.calls++
	f.seen = q
	return ingestion.Empty(), nil
}

func (f *fakeStage) ParseQuery(raw any) (Query, error) { return ingestion.DecodeQuery[Query](raw) }

func setup(metadata map[string]any) (*ScanController, map[ingestion.Stage]*fakeStage) {
	stages := Stages{}
	fakes := map[ingestion.Stage]*fakeStage{}
	for _, sd := range stageOrder {
		f := &fakeStage{}
		fakes[sd.stage] = f
		stages[sd.stage] = f
	}
	inv := inventory.NewStaticService([]config.IntegrationConfig{{ID: testKey.IntegrationID, TenantID: testKey.TenantID, Application: "azure_devops", Metadata: metadata}})
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return NewScanController(inv, stages, Options{Now: func() time.Time { return now }}), fakes
}

func jobContext(state string) ingestion.JobContext {
	jc := ingestion.JobContext{JobID: "job", TenantID: testKey.TenantID, IntegrationKey: testKey}
	if state != "" {
		jc.IntermediateState = []byte(state)
	}
	return jc
}

func called(fakes map[ingestion.Stage]*fakeStage) []ingestion.Stage {
	var out []ingestion.Stage
	for _, sd := range stageOrder {
		if fakes[sd.stage].calls > 0 {
			out = append(out, sd.stage)
		}
	}
	return out
}

func TestScan_AllCategoriesOnOnboarding(t *testing.T) {
	c, fakes := setup(map[string]any{FlagReleases: true})

	_, err := c.Ingest(context.Background(), jobContext(""), Query{})
	require.NoError(t, err)
	assert.Len(t, called(fakes), len(stageOrder))
	seen := fakes[StageBuilds].seen
	assert.True(t, seen.Onboarding)
	assert.Equal(t, time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC), *seen.From)
}

func TestScan_TagsOnlyOnOnboardingAndReleasesNeedMetadata(t *testing.T) {
	c, fakes := setup(nil)
	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	_, err := c.Ingest(context.Background(), jobContext(""), Query{From: &from, JobCategories: []JobCategory{CategorySCMGit, CategoryCICD}})
	require.NoError(t, err)
	assert.Equal(t, []ingestion.Stage{StageCommits, StagePullRequests, StagePipelines, StageBuilds}, called(fakes))
}

func TestScan_FetchOnceCountsAsOnboarding(t *testing.T) {
	c, fakes := setup(nil)
	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	_, err := c.Ingest(context.Background(), jobContext(""), Query{From: &from, FetchOnce: true, JobCategories: []JobCategory{CategorySCMGit}})
	require.NoError(t, err)
	assert.Equal(t, 1, fakes[StageTags].calls)
}

func TestScan_FlagsAndComments(t *testing.T) {
	c, fakes := setup(map[string]any{FlagWorkItemComments: false})

	_, err := c.Ingest(context.Background(), jobContext(""), Query{
		JobCategories:  []JobCategory{CategoryBoards1},
		IngestionFlags: map[string]any{FlagTeams: false},
	})
	require.NoError(t, err)
	assert.Equal(t, []ingestion.Stage{StageWorkItemFields, StageMetadata, StageWorkItems}, called(fakes))
	assert.Equal(t, false, fakes[StageWorkItems].seen.IngestionFlags[FlagWorkItemComments])
}

func TestScan_ResumeCursorOnlyForOwningStage(t *testing.T) {
	c, fakes := setup(nil)
	state := `{"completed_stages":["PIPELINES"],"resume_cursor":"BUILDS@org/b"}`

	_, err := c.Ingest(context.Background(), jobContext(state), Query{JobCategories: []JobCategory{CategoryCICD, CategoryBoards2}})
	require.NoError(t, err)
	assert.Equal(t, 0, fakes[StagePipelines].calls)
	assert.Equal(t, "org/b", fakes[StageBuilds].seen.ResumeFrom)
	assert.Equal(t, "", fakes[StageIterations].seen.ResumeFrom)
}

func TestQuery_ValidateCategories(t *testing.T) {
	_, err := ingestion.DecodeQuery[Query](`{"job_categories":["SCM_GIT","NOPE"]}`)
	assert.ErrorIs(t, err, ingestion.ErrParse)

	q, err := ingestion.DecodeQuery[Query](`{"job_categories":["CICD"]}`)
	require.NoError(t, err)
	assert.True(t, q.Includes(CategoryCICD))
	assert.False(t, q.Includes(CategorySCMGit))
	assert.True(t, Query{}.Includes(CategoryBoards2))
}
