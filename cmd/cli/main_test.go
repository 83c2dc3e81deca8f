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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("INGEST_API_URL", srv.URL)
}

func TestParseSubmitArgs_InlineAndFile(t *testing.T) {
	req, err := parseSubmitArgs([]string{"github", "t1", "i1"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if string(req.Query) != "{}" {
		t.Fatalf("default query = %s, want {}", req.Query)
	}

	path := filepath.Join(t.TempDir(), "q.json")
	if err := os.WriteFile(path, []byte(`{"org":"acme"}`), 0644); err != nil {
		t.Fatalf("write query: %v", err)
	}
	req, err = parseSubmitArgs([]string{"github", "t1", "i1", "@" + path})
	if err != nil {
		t.Fatalf("parse file: %v", err)
	}
	if string(req.Query) != `{"org":"acme"}` {
		t.Fatalf("query = %s", req.Query)
	}

	if _, err := parseSubmitArgs([]string{"github", "t1", "i1", "{not json"}); err == nil {
		t.Fatal("expected invalid json error")
	}
	if _, err := parseSubmitArgs([]string{"github"}); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestRunSubmit(t *testing.T) {
	var got submitRequest
	newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/ingestion/jobs" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"job_id":"job-1","status":"pending"}`))
	})

	var stdout, stderr bytes.Buffer
	code := runSubmit([]string{"jira", "tenant", "integ", `{"project":"P"}`}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != "job-1" {
		t.Fatalf("stdout = %q", stdout.String())
	}
	if got.Controller != "jira" || got.TenantID != "tenant" || got.IntegrationID != "integ" {
		t.Fatalf("request = %+v", got)
	}
}

func TestRunSubmit_ServerRejects(t *testing.T) {
	newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown controller"}`))
	})

	var stdout, stderr bytes.Buffer
	if code := runSubmit([]string{"nope", "t", "i"}, &stdout, &stderr); code == 0 {
		t.Fatal("expected non-zero exit code")
	}
	if !strings.Contains(stderr.String(), "unknown controller") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunWait_UntilCompleted(t *testing.T) {
	var calls int32
	newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		status := "pending"
		if atomic.AddInt32(&calls, 1) >= 3 {
			status = "completed"
		}
		_, _ = w.Write([]byte(`{"job_id":"job-1","status":"` + status + `","attempt":1}`))
	})

	var stdout, stderr bytes.Buffer
	code := runWait("job-1", time.Millisecond, 10, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRunWait_Failed(t *testing.T) {
	newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"job-1","status":"failed","error":"bad credentials"}`))
	})

	var stdout, stderr bytes.Buffer
	if code := runWait("job-1", time.Millisecond, 5, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "bad credentials") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunControllers(t *testing.T) {
	newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ingestion/controllers" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"controllers":["azure_devops","github","jira"]}`))
	})

	var stdout, stderr bytes.Buffer
	if code := runControllers(&stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if stdout.String() != "azure_devops\ngithub\njira\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunEvents_NotFound(t *testing.T) {
	newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"任务不存在"}`))
	})

	var stdout, stderr bytes.Buffer
	if code := runEvents("missing", &stdout, &stderr); code == 0 {
		t.Fatal("expected non-zero exit code")
	}
}
