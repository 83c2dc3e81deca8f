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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("INGEST_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

type submitRequest struct {
	TenantID      string          `json:"tenant_id"`
	IntegrationID string          `json:"integration_id"`
	Controller    string          `json:"controller"`
	Query         json.RawMessage `json:"query"`
}

func submitJob(req submitRequest) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	resp, err := newClient().R().
		SetBody(req).
		SetResult(&out).
		Post("/api/ingestion/jobs")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("POST /api/ingestion/jobs: %s", resp.String())
	}
	return out.JobID, nil
}

func getJob(jobID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/ingestion/jobs/" + jobID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/ingestion/jobs/%s: %s", jobID, resp.String())
	}
	return out, nil
}

func getJobEvents(jobID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/ingestion/jobs/" + jobID + "/events")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET events: %s", resp.String())
	}
	return out, nil
}

func listControllers() ([]string, error) {
	var out struct {
		Controllers []string `json:"controllers"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/ingestion/controllers")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/ingestion/controllers: %s", resp.String())
	}
	return out.Controllers, nil
}

func checkHealth() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/health: %s", resp.String())
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
