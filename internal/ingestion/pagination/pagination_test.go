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

package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestion/sink"
	"ingest-platform/internal/storage/object"
)

type recordingSink struct {
	batches [][]int
	reqs    []ingestion.WriteRequest
}

func (s *recordingSink) Write(ctx context.Context, req ingestion.WriteRequest) (ingestion.ArtifactHandle, error) {
	batch := append([]int(nil), req.Batch.([]int)...)
	s.batches = append(s.batches, batch)
	s.reqs = append(s.reqs, req)
	return ingestion.ArtifactHandle{
		IntegrationType: req.IntegrationType,
		DataType:        req.DataType,
		Path:            fmt.Sprintf("%s/%d", req.DataType, req.Sequence),
		ItemCount:       req.ItemCount,
	}, nil
}

type pageQuery struct {
	Page     int
	PageSize int
}

func numberedSource(total int, calls *[]int) PagedSourceFunc[int, pageQuery] {
	return func(ctx context.Context, q pageQuery) (Page[int], error) {
		*calls = append(*calls, q.Page)
		start := q.Page * q.PageSize
		var items []int
		for i := start; i < total && i < start+q.PageSize; i++ {
			items = append(items, i)
		}
		return Page[int]{Items: items, Number: q.Page}, nil
	}
}

func withPage(q pageQuery, page, size int) pageQuery {
	q.Page = page
	q.PageSize = size
	return q
}

var testJob = ingestion.JobContext{
	JobID:          "job-1",
	TenantID:       "t1",
	IntegrationKey: ingestion.IntegrationKey{TenantID: "t1", IntegrationID: "42"},
}

func TestNumbered_StopsOnShortPage(t *testing.T) {
	var calls []int
	rs := &recordingSink{}
	s := NewNumbered[int, pageQuery](numberedSource(250, &calls), withPage,
		Options[int]{IntegrationType: "jira", DataType: "issues", Sink: rs, OutputPageSize: 100, SkipEmptyResults: true},
		WithPageSize(100))

	res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, pageQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, calls)
	require.Len(t, rs.batches, 3)
	assert.Len(t, rs.batches[2], 50)
	assert.Len(t, res.AllArtifacts(), 3)
	assert.Equal(t, "issues/0", res.AllArtifacts()[0].Path)
}

func TestNumbered_ExactMultipleRequestsTrailingEmptyPage(t *testing.T) {
	var calls []int
	rs := &recordingSink{}
	s := NewNumbered[int, pageQuery](numberedSource(200, &calls), withPage,
		Options[int]{IntegrationType: "jira", DataType: "issues", Sink: rs, SkipEmptyResults: true},
		WithPageSize(100))

	res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, pageQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, calls)
	assert.Len(t, res.AllArtifacts(), 2)
}

func TestNumbered_OutputBatchesIndependentOfPageSize(t *testing.T) {
	var calls []int
	rs := &recordingSink{}
	s := NewNumbered[int, pageQuery](numberedSource(60, &calls), withPage,
		Options[int]{IntegrationType: "github", DataType: "commits", Sink: rs, OutputPageSize: 25, SkipEmptyResults: true},
		WithPageSize(10))

	_, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, pageQuery{})
	require.NoError(t, err)
	require.Len(t, rs.batches, 3)
	assert.Len(t, rs.batches[0], 25)
	assert.Len(t, rs.batches[1], 25)
	assert.Len(t, rs.batches[2], 10)
	assert.Equal(t, 0, rs.batches[0][0])
	assert.Equal(t, 59, rs.batches[2][9])
}

func TestNumbered_EmptySourceWritesNothingWhenSkipping(t *testing.T) {
	var calls []int
	rs := &recordingSink{}
	s := NewNumbered[int, pageQuery](numberedSource(0, &calls), withPage,
		Options[int]{IntegrationType: "github", DataType: "tags", Sink: rs, SkipEmptyResults: true})

	res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, pageQuery{})
	require.NoError(t, err)
	assert.Equal(t, ingestion.ResultEmpty, res.Kind)
	assert.Empty(t, rs.batches)
}

func TestNumbered_EmptySourceWritesNothingWhenNotSkipping(t *testing.T) {
	var calls []int
	rs := &recordingSink{}
	s := NewNumbered[int, pageQuery](numberedSource(0, &calls), withPage,
		Options[int]{IntegrationType: "github", DataType: "tags", Sink: rs})

	res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, pageQuery{})
	require.NoError(t, err)
	assert.Empty(t, rs.batches)
	assert.Empty(t, res.AllArtifacts())
}

func TestNumbered_MaxPages(t *testing.T) {
	var calls []int
	rs := &recordingSink{}
	s := NewNumbered[int, pageQuery](numberedSource(1000, &calls), withPage,
		Options[int]{IntegrationType: "github", DataType: "commits", Sink: rs, SkipEmptyResults: true},
		WithPageSize(10), WithMaxPages(3))

	_, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, pageQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, calls)
}

func TestNumbered_FailureWrapsFetchError(t *testing.T) {
	boom := errors.New("connection reset")
	src := PagedSourceFunc[int, pageQuery](func(ctx context.Context, q pageQuery) (Page[int], error) {
		if q.Page == 2 {
			return Page[int]{}, boom
		}
		return Page[int]{Items: make([]int, q.PageSize)}, nil
	})
	rs := &recordingSink{}
	opts := Options[int]{IntegrationType: "jira", DataType: "issues", Sink: rs, OutputPageSize: 10, SkipEmptyResults: true}

	_, err := NewNumbered[int, pageQuery](src, withPage, opts, WithPageSize(10)).
		IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, pageQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ingestion.ErrFetch)
	assert.ErrorIs(t, err, boom)
	_, resumable := ingestion.AsResumable(err)
	assert.False(t, resumable)

	opts.ResumableOnFailure = true
	rs2 := &recordingSink{}
	opts.Sink = rs2
	_, err = NewNumbered[int, pageQuery](src, withPage, opts, WithPageSize(10)).
		IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, pageQuery{})
	re, ok := ingestion.AsResumable(err)
	require.True(t, ok)
	assert.Len(t, re.Partial.AllArtifacts(), 2)
	assert.ErrorIs(t, re.Cause, boom)
}

func streamOf(n int) StreamSourceFunc[int, struct{}] {
	return func(ctx context.Context, _ struct{}) (iter.Seq2[int, error], error) {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}
		return SliceStream(items), nil
	}
}

func TestStreamed_BatchSizing(t *testing.T) {
	const p = 5
	for _, skip := range []bool{true, false} {
		for _, n := range []int{0, 1, 4, 5, 6, 10, 23} {
			t.Run(fmt.Sprintf("skip=%t/n=%d", skip, n), func(t *testing.T) {
				rs := &recordingSink{}
				s := NewStreamed[int, struct{}](streamOf(n), Options[int]{
					IntegrationType: "github", DataType: "prs", Sink: rs, OutputPageSize: p, SkipEmptyResults: skip,
				})
				res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, struct{}{})
				require.NoError(t, err)
				want := (n + p - 1) / p
				assert.Len(t, rs.batches, want)
				assert.Len(t, res.AllArtifacts(), want)
				total := 0
				for _, b := range rs.batches {
					assert.LessOrEqual(t, len(b), p)
					total += len(b)
				}
				assert.Equal(t, n, total)
			})
		}
	}
}

func TestStreamed_ArtifactsInWriteOrder(t *testing.T) {
	rs := &recordingSink{}
	s := NewStreamed[int, struct{}](streamOf(7), Options[int]{
		IntegrationType: "github", DataType: "prs", Sink: rs, OutputPageSize: 3, SkipEmptyResults: true,
	})
	res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, struct{}{})
	require.NoError(t, err)
	var paths []string
	for _, h := range res.AllArtifacts() {
		paths = append(paths, h.Path)
	}
	assert.Equal(t, []string{"prs/0", "prs/1", "prs/2"}, paths)
}

type repoPRs struct {
	Repo string
	PRs  []int
}

type repoSink struct{ writes int }

func (s *repoSink) Write(ctx context.Context, req ingestion.WriteRequest) (ingestion.ArtifactHandle, error) {
	s.writes++
	return ingestion.ArtifactHandle{DataType: req.DataType, ItemCount: req.ItemCount}, nil
}

func TestStreamed_CustomEmptyPredicate(t *testing.T) {
	src := StreamSourceFunc[repoPRs, struct{}](func(ctx context.Context, _ struct{}) (iter.Seq2[repoPRs, error], error) {
		return SliceStream([]repoPRs{{Repo: "a"}, {Repo: "b"}, {Repo: "c", PRs: []int{1}}}), nil
	})
	rs := &repoSink{}
	s := NewStreamed[repoPRs, struct{}](src, Options[repoPRs]{
		IntegrationType: "github", DataType: "prs", Sink: rs, OutputPageSize: 2, SkipEmptyResults: true,
		EmptyPagePredicate: func(batch []repoPRs) bool {
			for _, r := range batch {
				if len(r.PRs) > 0 {
					return false
				}
			}
			return true
		},
	})
	res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 1, rs.writes)
	assert.Len(t, res.AllArtifacts(), 1)
}

func TestStreamed_MidStreamError(t *testing.T) {
	boom := errors.New("cursor expired")
	src := StreamSourceFunc[int, struct{}](func(ctx context.Context, _ struct{}) (iter.Seq2[int, error], error) {
		return func(yield func(int, error) bool) {
			for i := 0; i < 4; i++ {
				if !yield(i, nil) {
					return
				}
			}
			yield(0, boom)
		}, nil
	})
	rs := &recordingSink{}
	s := NewStreamed[int, struct{}](src, Options[int]{
		IntegrationType: "github", DataType: "prs", Sink: rs, OutputPageSize: 2, SkipEmptyResults: true, ResumableOnFailure: true,
	})
	_, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, struct{}{})
	re, ok := ingestion.AsResumable(err)
	require.True(t, ok)
	assert.Len(t, re.Partial.AllArtifacts(), 2)
	assert.ErrorIs(t, err, ingestion.ErrFetch)
}

func TestStreamed_SourceCheckpointFlushesBuffer(t *testing.T) {
	cause := errors.New("project b: 503")
	src := StreamSourceFunc[int, struct{}](func(ctx context.Context, _ struct{}) (iter.Seq2[int, error], error) {
		return func(yield func(int, error) bool) {
			for i := 0; i < 3; i++ {
				if !yield(i, nil) {
					return
				}
			}
			yield(0, &ingestion.ResumableError{IntermediateState: []byte(`{"completed_stages":[],"resume_cursor":"org/b"}`), Cause: cause})
		}, nil
	})
	rs := &recordingSink{}
	s := NewStreamed[int, struct{}](src, Options[int]{
		IntegrationType: "azure_devops", DataType: "builds", Sink: rs, OutputPageSize: 2, SkipEmptyResults: true,
	})
	_, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, struct{}{})
	re, ok := ingestion.AsResumable(err)
	require.True(t, ok)
	assert.Equal(t, [][]int{{0, 1}, {2}}, rs.batches)
	assert.Len(t, re.Partial.AllArtifacts(), 2)
	assert.JSONEq(t, `{"completed_stages":[],"resume_cursor":"org/b"}`, string(re.IntermediateState))
	assert.ErrorIs(t, err, cause)
}

func TestSinglePage(t *testing.T) {
	t.Run("writes once", func(t *testing.T) {
		rs := &sliceSink{}
		src := SingleSourceFunc[[]string, struct{}](func(ctx context.Context, _ struct{}) ([]string, error) {
			return []string{"Open", "Done"}, nil
		})
		s := NewSinglePage[[]string, struct{}](src, Options[[]string]{
			IntegrationType: "jira", DataType: "statuses", Sink: rs, SkipEmptyResults: true,
		})
		res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, struct{}{})
		require.NoError(t, err)
		assert.Equal(t, 1, rs.writes)
		assert.Len(t, res.AllArtifacts(), 1)
	})
	t.Run("empty result skipped", func(t *testing.T) {
		rs := &sliceSink{}
		src := SingleSourceFunc[[]string, struct{}](func(ctx context.Context, _ struct{}) ([]string, error) {
			return nil, nil
		})
		s := NewSinglePage[[]string, struct{}](src, Options[[]string]{
			IntegrationType: "jira", DataType: "statuses", Sink: rs, SkipEmptyResults: true,
		})
		res, err := s.IngestAllPages(context.Background(), testJob, testJob.IntegrationKey, struct{}{})
		require.NoError(t, err)
		assert.Zero(t, rs.writes)
		assert.Equal(t, ingestion.ResultEmpty, res.Kind)
	})
}

type sliceSink struct{ writes int }

func (s *sliceSink) Write(ctx context.Context, req ingestion.WriteRequest) (ingestion.ArtifactHandle, error) {
	s.writes++
	return ingestion.ArtifactHandle{DataType: req.DataType, ItemCount: req.ItemCount}, nil
}

func TestUniqueOutputFiles_RetryNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	objSink := sink.NewObjectSink(store)
	run := func(unique bool) []ingestion.ArtifactHandle {
		s := NewStreamed[int, struct{}](streamOf(6), Options[int]{
			IntegrationType: "github", DataType: "commits", Sink: objSink,
			OutputPageSize: 3, SkipEmptyResults: true, UniqueOutputFiles: unique,
		})
		res, err := s.IngestAllPages(ctx, testJob, testJob.IntegrationKey, struct{}{})
		require.NoError(t, err)
		return res.AllArtifacts()
	}

	first := run(true)
	second := run(true)
	seen := map[string]bool{}
	for _, h := range append(first, second...) {
		assert.False(t, seen[h.Path], "artifact %s written twice", h.Path)
		seen[h.Path] = true
	}
	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	store2 := object.NewMemoryStore()
	objSink = sink.NewObjectSink(store2)
	a := run(false)
	b := run(false)
	assert.Equal(t, a[0].Path, b[0].Path)
	all, err = store2.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
