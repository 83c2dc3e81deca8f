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
	"log/slog"
	"reflect"
	"slices"

	"ingest-platform/internal/ingestion"
	"ingest-platform/pkg/metrics"
)

const (
	// DefaultOutputPageSize 每个 artifact 的默认条目数
	DefaultOutputPageSize = 100
	// DefaultPageSize 上游分页的默认页大小
	DefaultPageSize = 100
)

// Options 三种分页策略共享的输出配置
type Options[T any] struct {
	IntegrationType string
	DataType        string
	Sink            ingestion.StorageSink
	// OutputPageSize 每个 artifact 最多包含的条目数，与上游页大小无关
	OutputPageSize   int
	SkipEmptyResults bool
	// UniqueOutputFiles 为 true 时重试产生的 artifact 不会覆盖之前的写入
	UniqueOutputFiles bool
	// EmptyPagePredicate 判断批次结构上是否为空；nil 时仅以条目数为 0 判断
	EmptyPagePredicate func(batch []T) bool
	// ResumableOnFailure 已有 artifact 写入后拉取失败时返回 *ingestion.ResumableError
	ResumableOnFailure bool
	Logger             *slog.Logger
}

func (o Options[T]) outputPageSize() int {
	if o.OutputPageSize <= 0 {
		return DefaultOutputPageSize
	}
	return o.OutputPageSize
}

func (o Options[T]) isEmpty(batch []T) bool {
	if len(batch) == 0 {
		return true
	}
	if o.EmptyPagePredicate != nil {
		return o.EmptyPagePredicate(batch)
	}
	return false
}

func (o Options[T]) logger() *slog.Logger {
	l := o.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("integration", o.IntegrationType, "data_type", o.DataType)
}

// batcher 将条目累积为 OutputPageSize 大小的批次并按顺序写入 sink
type batcher[T any] struct {
	opts    Options[T]
	jc      ingestion.JobContext
	buf     []T
	seq     int
	handles []ingestion.ArtifactHandle
}

func newBatcher[T any](opts Options[T], jc ingestion.JobContext) *batcher[T] {
	return &batcher[T]{opts: opts, jc: jc}
}

func (b *batcher[T]) add(ctx context.Context, items ...T) error {
	size := b.opts.outputPageSize()
	b.buf = append(b.buf, items...)
	for len(b.buf) >= size {
		batch := b.buf[:size:size]
		b.buf = b.buf[size:]
		if err := b.write(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// finish 写出剩余条目；缓冲区为空时不写，N 条产生 ceil(N/P) 个 artifact
func (b *batcher[T]) finish(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = nil
	return b.write(ctx, batch)
}

func (b *batcher[T]) write(ctx context.Context, batch []T) error {
	if b.opts.SkipEmptyResults && b.opts.isEmpty(batch) {
		b.opts.logger().Debug("跳过空批次", "job_id", b.jc.JobID, "items", len(batch))
		return nil
	}
	h, err := b.opts.Sink.Write(ctx, ingestion.WriteRequest{
		Job:             b.jc,
		IntegrationType: b.opts.IntegrationType,
		DataType:        b.opts.DataType,
		Batch:           batch,
		ItemCount:       len(batch),
		Sequence:        b.seq,
		Unique:          b.opts.UniqueOutputFiles,
	})
	if err != nil {
		return err
	}
	b.seq++
	b.handles = append(b.handles, h)
	metrics.ArtifactsWritten.WithLabelValues(b.opts.IntegrationType, b.opts.DataType).Inc()
	return nil
}

func (b *batcher[T]) result() ingestion.Result {
	return ingestion.Artifacts(b.handles...)
}

// fetchFailure 将 DataSource 错误包装为 FetchError；已有写入且允许恢复时带上部分结果。
// 数据源自身返回可恢复错误（带游标检查点）时先写出缓冲区，使检查点之前的条目全部落盘
func (b *batcher[T]) fetchFailure(ctx context.Context, err error) error {
	if re, ok := ingestion.AsResumable(err); ok {
		state := re.IntermediateState
		if len(state) == 0 {
			state = b.jc.IntermediateState
		}
		if len(b.buf) > 0 {
			batch := b.buf
			b.buf = nil
			if flushErr := b.write(ctx, batch); flushErr != nil {
				b.opts.logger().Warn("写出缓冲区失败，放弃数据源检查点", "job_id", b.jc.JobID, "error", flushErr)
				state = b.jc.IntermediateState
			}
		}
		handles := append(slices.Clone(b.handles), re.Partial.AllArtifacts()...)
		return &ingestion.ResumableError{
			Partial:           ingestion.Artifacts(handles...),
			IntermediateState: state,
			Cause:             re.Cause,
		}
	}
	wrapped := err
	if _, isFetch := err.(*ingestion.FetchError); !isFetch {
		wrapped = &ingestion.FetchError{IntegrationType: b.opts.IntegrationType, DataType: b.opts.DataType, Err: err}
	}
	if b.opts.ResumableOnFailure && len(b.handles) > 0 {
		return &ingestion.ResumableError{
			Partial:           b.result(),
			IntermediateState: b.jc.IntermediateState,
			Cause:             wrapped,
		}
	}
	return wrapped
}

// isZeroItem 单条结果是否为空：nil、空集合或零值
func isZeroItem(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return rv.IsZero()
	}
}
