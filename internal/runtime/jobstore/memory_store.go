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
	"sync"
	"time"

	"github.com/google/uuid"
)

const watchChanBuffer = 16

// subscriber 单个 Watch 订阅；close 可能由追加方（终态 / 缓冲满）或 ctx 结束触发
type subscriber struct {
	ch   chan JobEvent
	once sync.Once
}

func (s *subscriber) close() { s.once.Do(func() { close(s.ch) }) }

// jobStream 单个 job 的事件流与订阅者
type jobStream struct {
	events []JobEvent
	subs   []*subscriber
}

type memoryStore struct {
	mu      sync.Mutex
	streams map[string]*jobStream
	now     func() time.Time
}

// NewMemoryStore 进程内事件存储；终态事件追加后关闭该 job 的全部订阅
func NewMemoryStore() JobStore {
	return &memoryStore{streams: make(map[string]*jobStream), now: time.Now}
}

func (s *memoryStore) stream(jobID string) *jobStream {
	st, ok := s.streams[jobID]
	if !ok {
		st = &jobStream{}
		s.streams[jobID] = st
	}
	return st
}

func (s *memoryStore) ListEvents(ctx context.Context, jobID string) ([]JobEvent, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[jobID]
	if !ok || len(st.events) == 0 {
		return nil, 0, nil
	}
	out := make([]JobEvent, len(st.events))
	for i, e := range st.events {
		out[i] = copyEvent(e)
	}
	return out, len(out), nil
}

func (s *memoryStore) Append(ctx context.Context, jobID string, expectedVersion int, event JobEvent) (int, error) {
	if jobID == "" {
		return 0, ErrEmptyJobID
	}
	event = copyEvent(event)
	event.JobID = jobID
	if event.ID == "" {
		event.ID = "ev-" + uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stream(jobID)
	if len(st.events) != expectedVersion {
		return 0, ErrVersionMismatch
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	event.Version = expectedVersion + 1
	st.events = append(st.events, event)
	st.publish(event)
	return event.Version, nil
}

// publish 推送给订阅者；缓冲满的订阅者被关闭，终态事件后全部关闭
func (st *jobStream) publish(event JobEvent) {
	kept := st.subs[:0]
	for _, sub := range st.subs {
		select {
		case sub.ch <- copyEvent(event):
			if !event.Type.Terminal() {
				kept = append(kept, sub)
				continue
			}
		default:
		}
		sub.close()
	}
	st.subs = kept
}

func (s *memoryStore) Watch(ctx context.Context, jobID string) (<-chan JobEvent, error) {
	sub := &subscriber{ch: make(chan JobEvent, watchChanBuffer)}
	s.mu.Lock()
	st := s.stream(jobID)
	st.subs = append(st.subs, sub)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, other := range st.subs {
			if other == sub {
				st.subs = append(st.subs[:i], st.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		sub.close()
	}()
	return sub.ch, nil
}

func copyEvent(e JobEvent) JobEvent {
	if len(e.Payload) > 0 {
		e.Payload = append([]byte(nil), e.Payload...)
	}
	return e
}
