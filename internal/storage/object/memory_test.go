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

package object

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func put(t *testing.T, s Store, p, body string, meta map[string]string) {
	t.Helper()
	if err := s.Put(context.Background(), p, strings.NewReader(body), int64(len(body)), meta); err != nil {
		t.Fatalf("Put %s: %v", p, err)
	}
}

func TestMemoryStore_RoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	put(t, s, "acme/1/github/users/j1/users.0.json", `[{"id":1}]`, nil)

	rc, err := s.Get(ctx, "/acme/1/github/users/j1/users.0.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != `[{"id":1}]` {
		t.Errorf("Get: got %q", b)
	}

	if err := s.Delete(ctx, "acme/1/github/users/j1/users.0.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "acme/1/github/users/j1/users.0.json"); !IsNotFound(err) {
		t.Errorf("Get after Delete: want ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "acme/1/github/users/j1/users.0.json"); !IsNotFound(err) {
		t.Errorf("second Delete: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RejectsEmptyPath(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put(context.Background(), "/", bytes.NewReader(nil), 0, nil); err == nil {
		t.Fatal("Put with empty path should fail")
	}
}

func TestMemoryStore_ListSortedByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	put(t, s, "t/commits.1.json", "[]", nil)
	put(t, s, "t/commits.0.json", "[1]", nil)
	put(t, s, "other/x.json", "[]", nil)

	objs, err := s.List(ctx, "t/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 || objs[0].Path != "t/commits.0.json" || objs[1].Path != "t/commits.1.json" {
		t.Fatalf("List: got %+v", objs)
	}
	if objs[0].Size != 3 || objs[0].CreatedAt != 1700000000 {
		t.Errorf("info: %+v", objs[0])
	}
}

func TestMemoryStore_MetadataIsCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	meta := map[string]string{"data_type": "users"}
	put(t, s, "a.json", "[]", meta)
	meta["data_type"] = "changed"

	got, err := s.GetMetadata(ctx, "a.json")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got["data_type"] != "users" {
		t.Errorf("metadata leaked caller mutation: %v", got)
	}
	got["data_type"] = "x"
	again, _ := s.GetMetadata(ctx, "a.json")
	if again["data_type"] != "users" {
		t.Errorf("metadata leaked result mutation: %v", again)
	}

	ok, err := s.Exists(ctx, "a.json")
	if err != nil || !ok {
		t.Errorf("Exists: %v %v", ok, err)
	}
	ok, err = s.Exists(ctx, "missing.json")
	if err != nil || ok {
		t.Errorf("Exists missing: %v %v", ok, err)
	}
}
