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

package jobstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func testDSN(t *testing.T) string {
	dsn := os.Getenv("TEST_JOBSTORE_DSN")
	if dsn == "" {
		t.Skip("TEST_JOBSTORE_DSN not set, skipping Postgres JobStore tests")
	}
	return dsn
}

func newTestPgStore(t *testing.T, ctx context.Context) (JobStore, func()) {
	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Migrate: %v", err)
	}
	// 清空表以便测试独立
	_, _ = pool.Exec(ctx, `DELETE FROM ingest_job_events`)
	return NewPostgresStore(pool), pool.Close
}

func TestPgStore_Append_ListEvents(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestPgStore(t, ctx)
	defer cleanup()

	events, ver, err := store.ListEvents(ctx, "job-1")
	if err != nil || ver != 0 || len(events) != 0 {
		t.Fatalf("expected empty stream, got %d events version %d err %v", len(events), ver, err)
	}
	ev, _ := NewEvent(JobCreated, AttemptPayload{Controller: "jira"})
	if _, err := store.Append(ctx, "job-1", 0, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(ctx, "job-1", 0, JobEvent{Type: AttemptStarted}); err != ErrVersionMismatch {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
	newVer, err := Record(ctx, store, "job-1", JobEvent{Type: AttemptStarted})
	if err != nil || newVer != 2 {
		t.Fatalf("Record: version %d err %v", newVer, err)
	}
	events, ver, err = store.ListEvents(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if ver != 2 || events[0].Type != JobCreated || events[1].Type != AttemptStarted {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestPgStore_WatchStopsAtTerminal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, cleanup := newTestPgStore(t, ctx)
	defer cleanup()

	_, _ = store.Append(ctx, "job-1", 0, JobEvent{Type: JobCreated})
	ch, err := store.Watch(ctx, "job-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	_, _ = store.Append(ctx, "job-1", 1, JobEvent{Type: AttemptStarted})
	_, _ = store.Append(ctx, "job-1", 2, JobEvent{Type: JobCompleted})

	var got []EventType
	for e := range ch {
		got = append(got, e.Type)
	}
	if len(got) != 2 || got[1] != JobCompleted {
		t.Errorf("unexpected watched events: %v", got)
	}
}
