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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-platform/internal/api/http/middleware"
	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestqueue"
	"ingest-platform/internal/runtime/jobstore"
	"ingest-platform/pkg/redaction"
)

type nopController struct{}

func (nopController) IngestRaw(ctx context.Context, jc ingestion.JobContext, raw any) (ingestion.Result, error) {
	return ingestion.Empty(), nil
}

type apiFixture struct {
	queue   ingestqueue.Queue
	events  jobstore.JobStore
	handler *Handler
	server  *server.Hertz
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	reg := ingestion.NewRegistry()
	require.NoError(t, reg.Register("github", nopController{}))
	require.NoError(t, reg.Register("jira", nopController{}))
	q := ingestqueue.NewMemoryQueue()
	ev := jobstore.NewMemoryStore()
	h := NewHandler(q, ev, reg)
	r := NewRouter(h, middleware.NewMiddleware())
	return &apiFixture{queue: q, events: ev, handler: h, server: r.Build(":0")}
}

func (f *apiFixture) do(method, path string, body []byte) *ut.ResponseRecorder {
	return ut.PerformRequest(f.server.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do("GET", "/api/health", nil).Result()
	assert.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), `"ok"`)
}

func TestCreateJob_EnqueuesAndRecordsEvent(t *testing.T) {
	f := newAPIFixture(t)
	body := []byte(`{"tenant_id":"acme","integration_id":"42","controller":"github","query":{"fetch_once":true}}`)
	resp := f.do("POST", "/api/ingestion/jobs", body).Result()
	require.Equal(t, 202, resp.StatusCode(), string(resp.Body()))

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Body(), &out))
	jobID := out["job_id"]
	require.NotEmpty(t, jobID)

	job, err := f.queue.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "github", job.Controller)
	assert.JSONEq(t, `{"fetch_once":true}`, string(job.Query))

	events, _, err := f.events.ListEvents(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, jobstore.JobCreated, events[0].Type)
}

func TestCreateJob_Validation(t *testing.T) {
	f := newAPIFixture(t)
	for name, body := range map[string]string{
		"malformed":          `{`,
		"missing tenant":     `{"integration_id":"42","controller":"github"}`,
		"unknown controller": `{"tenant_id":"acme","integration_id":"42","controller":"gitlab"}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := f.do("POST", "/api/ingestion/jobs", []byte(body)).Result()
			assert.Equal(t, 400, resp.StatusCode())
			assert.Contains(t, string(resp.Body()), "error")
		})
	}
}

func TestGetJob_ResolvesManifest(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t)
	id, err := f.queue.Enqueue(ctx, ingestqueue.NewJob{TenantID: "acme", IntegrationID: "42", Controller: "github"})
	require.NoError(t, err)
	_, err = f.queue.ClaimOne(ctx, "w1")
	require.NoError(t, err)
	users := ingestion.Artifacts(ingestion.ArtifactHandle{IntegrationType: "github", DataType: "users", Path: "users/0", ItemCount: 3})
	require.NoError(t, f.queue.MarkResumable(ctx, id, users, json.RawMessage(`{"completed_stages":["USERS"]}`), "boom", 0))
	_, err = f.queue.ClaimOne(ctx, "w1")
	require.NoError(t, err)
	commits := ingestion.Artifacts(ingestion.ArtifactHandle{IntegrationType: "github", DataType: "commits", Path: "commits/0", ItemCount: 5})
	require.NoError(t, f.queue.MarkCompleted(ctx, id, commits))

	resp := f.do("GET", "/api/ingestion/jobs/"+id, nil).Result()
	require.Equal(t, 200, resp.StatusCode())
	var view struct {
		Status            string          `json:"status"`
		Attempt           int             `json:"attempt"`
		IntermediateState json.RawMessage `json:"intermediate_state"`
		Manifest          []manifestEntry `json:"manifest"`
		Result            struct {
			Kind          string `json:"kind"`
			MergeStrategy string `json:"merge_strategy"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &view))
	assert.Equal(t, "completed", view.Status)
	assert.Equal(t, 2, view.Attempt)
	assert.JSONEq(t, `{"completed_stages":["USERS"]}`, string(view.IntermediateState))
	assert.Equal(t, "composite", view.Result.Kind)
	assert.Equal(t, ingestion.MergeStorageResultsList, view.Result.MergeStrategy)
	require.Len(t, view.Manifest, 2)
	assert.Equal(t, "users/0", view.Manifest[0].Path)
	assert.Equal(t, 5, view.Manifest[1].ItemCount)
}

func TestGetJob_NotFound(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, 404, f.do("GET", "/api/ingestion/jobs/missing", nil).Result().StatusCode())
	assert.Equal(t, 404, f.do("GET", "/api/ingestion/jobs/missing/events", nil).Result().StatusCode())
}

func TestGetJobEvents(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t)
	body := []byte(`{"tenant_id":"acme","integration_id":"42","controller":"jira"}`)
	var out map[string]string
	require.NoError(t, json.Unmarshal(f.do("POST", "/api/ingestion/jobs", body).Result().Body(), &out))
	ev, err := jobstore.NewEvent(jobstore.AttemptStarted, jobstore.AttemptPayload{Attempt: 1, WorkerID: "w1"})
	require.NoError(t, err)
	_, err = jobstore.Record(ctx, f.events, out["job_id"], ev)
	require.NoError(t, err)

	resp := f.do("GET", "/api/ingestion/jobs/"+out["job_id"]+"/events", nil).Result()
	require.Equal(t, 200, resp.StatusCode())
	var view struct {
		Version int `json:"version"`
		Events  []struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &view))
	assert.Equal(t, 2, view.Version)
	require.Len(t, view.Events, 2)
	assert.Equal(t, "attempt_started", view.Events[1].Type)
	assert.JSONEq(t, `{"attempt":1,"worker_id":"w1"}`, string(view.Events[1].Payload))
}

func TestListControllers(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do("GET", "/api/ingestion/controllers", nil).Result()
	require.Equal(t, 200, resp.StatusCode())
	assert.JSONEq(t, `{"controllers":["github","jira"]}`, string(resp.Body()))
}

func TestGetJob_RedactsQueryAndEvents(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t)
	f.handler.SetRedactor(redaction.NewEngine(redaction.NewPolicy(redaction.Config{
		Enable: true,
		Rules: []redaction.Rule{
			{Target: redaction.TargetQuery, Fields: []redaction.FieldMask{{Path: "jql"}}},
			{Target: string(jobstore.JobCreated), Fields: []redaction.FieldMask{{Path: "controller", Mode: redaction.ModeRemove}}},
		},
	})))

	body := []byte(`{"tenant_id":"acme","integration_id":"7","controller":"jira","query":{"jql":"reporter = ceo","limit":10}}`)
	resp := f.do("POST", "/api/ingestion/jobs", body).Result()
	require.Equal(t, 202, resp.StatusCode())
	var created map[string]string
	require.NoError(t, json.Unmarshal(resp.Body(), &created))
	id := created["job_id"]

	stored, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, string(stored.Query), "reporter = ceo")

	resp = f.do("GET", "/api/ingestion/jobs/"+id, nil).Result()
	require.Equal(t, 200, resp.StatusCode())
	var view struct {
		Query map[string]interface{} `json:"query"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &view))
	assert.Equal(t, redaction.Redacted, view.Query["jql"])
	assert.Equal(t, float64(10), view.Query["limit"])

	resp = f.do("GET", "/api/ingestion/jobs/"+id+"/events", nil).Result()
	require.Equal(t, 200, resp.StatusCode())
	assert.NotContains(t, string(resp.Body()), `"controller"`)
}
