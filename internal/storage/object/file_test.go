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
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-platform/pkg/config"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "a/b/c.json", strings.NewReader(`[1]`), 3, map[string]string{"k": "v"}))
	require.NoError(t, s.Put(ctx, "a/d.json", strings.NewReader(`[]`), 2, nil))

	rc, err := s.Get(ctx, "a/b/c.json")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "[1]", string(b))

	meta, err := s.GetMetadata(ctx, "a/b/c.json")
	require.NoError(t, err)
	assert.Equal(t, "v", meta["k"])

	objs, err := s.List(ctx, "a/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "a/b/c.json", objs[0].Path)
	assert.Equal(t, "a/d.json", objs[1].Path)

	ok, err := s.Exists(ctx, "a/d.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "a/b/c.json"))
	_, err = s.Get(ctx, "a/b/c.json")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a/b/c.json"), ErrNotFound)
}

func TestFileStore_PathStaysUnderRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "../../escape.json", strings.NewReader("x"), 1, nil))
	ok, err := s.Exists(ctx, "escape.json")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, s.Put(ctx, "/", strings.NewReader("x"), 1, nil))
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(config.ObjectConfig{Type: "bogus"})
	assert.Error(t, err)
	_, err = NewStore(config.ObjectConfig{Type: "file"})
	assert.Error(t, err)
	s, err := NewStore(config.ObjectConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
