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

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestqueue"
	"ingest-platform/internal/runtime/jobstore"
	"ingest-platform/pkg/log"
)

// scriptedController 依次返回预设结局，并记录每次收到的 JobContext
type scriptedController struct {
	mu    sync.Mutex
	calls []ingestion.JobContext
	steps []func(ctx context.Context, jc ingestion.JobContext) (ingestion.Result, error)
}

func (c *scriptedController) IngestRaw(ctx context.Context, jc ingestion.JobContext, raw any) (ingestion.Result, error) {
	c.mu.Lock()
	i := len(c.calls)
	c.calls = append(c.calls, jc)
	c.mu.Unlock()
	step := c.steps[len(c.steps)-1]
	if i < len(c.steps) {
		step = c.steps[i]
	}
	return step(ctx, jc)
}

func artifacts(dataType string, n int) ingestion.Result {
	var hs []ingestion.ArtifactHandle
	for i := 0; i < n; i++ {
		hs = append(hs, ingestion.ArtifactHandle{IntegrationType: "github", DataType: dataType, Path: dataType + "/" + string(rune('0'+i))})
	}
	return ingestion.Artifacts(hs...)
}

func succeed(r ingestion.Result) func(context.Context, ingestion.JobContext) (ingestion.Result, error) {
	return func(context.Context, ingestion.JobContext) (ingestion.Result, error) { return r, nil }
}

func fail(err error) func(context.Context, ingestion.JobContext) (ingestion.Result, error) {
	return func(context.Context, ingestion.JobContext) (ingestion.Result, error) { return ingestion.Result{}, err }
}

type fixture struct {
	queue  ingestqueue.Queue
	events jobstore.JobStore
	runner *Runner
}

func newFixture(t *testing.T, opts Options, controllers map[string]ingestion.Controller) *fixture {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	require.NoError(t, err)
	reg := ingestion.NewRegistry()
	for name, c := range controllers {
		require.NoError(t, reg.Register(name, c))
	}
	q := ingestqueue.NewMemoryQueue()
	ev := jobstore.NewMemoryStore()
	return &fixture{queue: q, events: ev, runner: NewRunner("worker-test", q, ev, reg, opts, logger)}
}

func (f *fixture) enqueue(t *testing.T, controller string) string {
	t.Helper()
	id, err := f.queue.Enqueue(context.Background(), ingestqueue.NewJob{
		TenantID: "acme", IntegrationID: "42", Controller: controller, Query: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) eventTypes(t *testing.T, jobID string) []jobstore.EventType {
	t.Helper()
	events, _, err := f.events.ListEvents(context.Background(), jobID)
	require.NoError(t, err)
	var out []jobstore.EventType
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestRunner_Success(t *testing.T) {
	ctx := context.Background()
	ctrl := &scriptedController{steps: []func(context.Context, ingestion.JobContext) (ingestion.Result, error){
		succeed(artifacts("users", 2)),
	}}
	f := newFixture(t, Options{}, map[string]ingestion.Controller{"github": ctrl})
	id := f.enqueue(t, "github")

	ran, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ingestqueue.StatusCompleted, job.Status)
	assert.Len(t, job.Result.AllArtifacts(), 2)
	assert.Equal(t, []jobstore.EventType{jobstore.AttemptStarted, jobstore.JobCompleted}, f.eventTypes(t, id))

	require.Len(t, ctrl.calls, 1)
	assert.Equal(t, id, ctrl.calls[0].JobID)
	assert.Equal(t, "acme", ctrl.calls[0].TenantID)
	assert.Equal(t, 1, ctrl.calls[0].Attempt)

	ran, err = f.runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestRunner_ResumableThenSuccessMergesResults(t *testing.T) {
	ctx := context.Background()
	state := json.RawMessage(`{"completed_stages":["USERS"]}`)
	ctrl := &scriptedController{steps: []func(context.Context, ingestion.JobContext) (ingestion.Result, error){
		fail(&ingestion.ResumableError{Partial: artifacts("users", 1), IntermediateState: state, Cause: errors.New("rate limited")}),
		succeed(artifacts("commits", 2)),
	}}
	f := newFixture(t, Options{RetryDelay: 0}, map[string]ingestion.Controller{"github": ctrl})
	id := f.enqueue(t, "github")

	_, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)
	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ingestqueue.StatusPending, job.Status)
	assert.Contains(t, job.Error, "rate limited")

	_, err = f.runner.RunOnce(ctx)
	require.NoError(t, err)

	require.Len(t, ctrl.calls, 2)
	assert.Equal(t, 2, ctrl.calls[1].Attempt)
	assert.JSONEq(t, string(state), string(ctrl.calls[1].IntermediateState))

	job, err = f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ingestqueue.StatusCompleted, job.Status)
	assert.Equal(t, ingestion.ResultComposite, job.Result.Kind)
	assert.Len(t, job.Result.AllArtifacts(), 3)
	assert.Equal(t, []jobstore.EventType{
		jobstore.AttemptStarted, jobstore.AttemptResumable, jobstore.AttemptStarted, jobstore.JobCompleted,
	}, f.eventTypes(t, id))

	events, _, err := f.events.ListEvents(ctx, id)
	require.NoError(t, err)
	var p jobstore.AttemptPayload
	require.NoError(t, json.Unmarshal(events[1].Payload, &p))
	assert.Equal(t, []string{"USERS"}, p.CompletedStages)
	assert.Equal(t, 1, p.Artifacts)
}

func TestRunner_ResumableExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	ctrl := &scriptedController{steps: []func(context.Context, ingestion.JobContext) (ingestion.Result, error){
		fail(&ingestion.ResumableError{Partial: artifacts("issues", 1), Cause: errors.New("upstream 502")}),
	}}
	f := newFixture(t, Options{MaxAttempts: 2}, map[string]ingestion.Controller{"jira": ctrl})
	id := f.enqueue(t, "jira")

	for i := 0; i < 3; i++ {
		_, err := f.runner.RunOnce(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, ctrl.calls, 2)

	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ingestqueue.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "upstream 502")
	assert.Len(t, job.Result.AllArtifacts(), 2, "partial results of every attempt are kept")
	assert.Equal(t, jobstore.JobFailed, f.eventTypes(t, id)[3])
}

func TestRunner_FatalFailsImmediately(t *testing.T) {
	ctx := context.Background()
	ctrl := &scriptedController{steps: []func(context.Context, ingestion.JobContext) (ingestion.Result, error){
		fail(&ingestion.ConfigurationError{Message: "missing token"}),
	}}
	f := newFixture(t, Options{}, map[string]ingestion.Controller{"github": ctrl})
	id := f.enqueue(t, "github")

	_, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)
	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ingestqueue.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "missing token")
	assert.True(t, job.Result.IsEmpty())
}

func TestRunner_UnknownController(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)
	id := f.enqueue(t, "gitlab")

	_, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)
	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ingestqueue.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "gitlab")
}

func TestRunner_TimeoutAppliedToInvocation(t *testing.T) {
	ctx := context.Background()
	ctrl := &scriptedController{steps: []func(context.Context, ingestion.JobContext) (ingestion.Result, error){
		func(ctx context.Context, _ ingestion.JobContext) (ingestion.Result, error) {
			<-ctx.Done()
			return ingestion.Result{}, ctx.Err()
		},
	}}
	f := newFixture(t, Options{Timeout: 20 * time.Millisecond}, map[string]ingestion.Controller{"github": ctrl})
	id := f.enqueue(t, "github")

	_, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)
	job, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ingestqueue.StatusFailed, job.Status)
	assert.Contains(t, job.Error, context.DeadlineExceeded.Error())
}

func TestRunner_StartProcessesQueue(t *testing.T) {
	ctrl := &scriptedController{steps: []func(context.Context, ingestion.JobContext) (ingestion.Result, error){
		succeed(artifacts("tags", 1)),
	}}
	f := newFixture(t, Options{PollInterval: 5 * time.Millisecond, Concurrency: 2}, map[string]ingestion.Controller{"github": ctrl})
	ids := []string{f.enqueue(t, "github"), f.enqueue(t, "github"), f.enqueue(t, "github")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runner.Start(ctx)

	assert.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := f.queue.Get(context.Background(), id)
			if err != nil || job.Status != ingestqueue.StatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		f.runner.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked")
	}
}
