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

package sink

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/storage/object"
)

func TestObjectSink_Write(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewObjectSink(store, WithPrefix("staging"), WithClock(func() time.Time { return at }))

	jc := ingestion.JobContext{JobID: "job-1", TenantID: "acme", IntegrationKey: ingestion.IntegrationKey{TenantID: "acme", IntegrationID: "42"}}
	h, err := s.Write(ctx, ingestion.WriteRequest{
		Job: jc, IntegrationType: "github", DataType: "commits",
		Batch: []map[string]string{{"sha": "a"}, {"sha": "b"}}, ItemCount: 2, Sequence: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "staging/acme/42/github/commits/job-1/commits.3.json", h.Path)
	assert.Equal(t, 2, h.ItemCount)
	assert.Equal(t, at, h.WrittenAt)

	rc, err := store.Get(ctx, h.Path)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	var got []map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got, 2)
	assert.Equal(t, int64(len(data)), h.Size)

	meta, err := store.GetMetadata(ctx, h.Path)
	require.NoError(t, err)
	assert.Equal(t, "commits", meta["data_type"])
	assert.Equal(t, "2", meta["item_count"])
}

func TestObjectSink_UniqueNames(t *testing.T) {
	ctx := context.Background()
	s := NewObjectSink(object.NewMemoryStore())
	req := ingestion.WriteRequest{IntegrationType: "jira", DataType: "issues", Batch: []int{1}, ItemCount: 1, Unique: true}

	a, err := s.Write(ctx, req)
	require.NoError(t, err)
	b, err := s.Write(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)
	assert.Contains(t, a.Path, "/adhoc/issues.0.")
}
