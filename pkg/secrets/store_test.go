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

package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  string
	}{
		{name: "memory", provider: "memory"},
		{name: "env", provider: "env"},
		{name: "default env", provider: ""},
		{name: "k8s without mount", provider: "k8s", wantErr: "kubernetes secrets path not available"},
		{name: "unknown provider", provider: "unknown", wantErr: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Provider: tc.provider}
			if tc.provider == "k8s" {
				cfg.K8s.SecretsPath = filepath.Join(t.TempDir(), "missing")
			}
			store, err := NewStore(cfg)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				assert.Nil(t, store)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}

func TestParseRef(t *testing.T) {
	r, err := ParseRef("/jira/acme#token")
	require.NoError(t, err)
	assert.Equal(t, Ref{Path: "jira/acme", Field: "token"}, r)
	assert.Equal(t, "jira/acme/token", r.Key())

	r, err = ParseRef("integrations/7/token")
	require.NoError(t, err)
	assert.Equal(t, "integrations/7/token", r.Key())

	_, err = ParseRef("#token")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(map[string]string{"jira/acme/token": "t1"})
	s.Put("github/acme/token", "t2")

	got, err := s.Get(ctx, "jira/acme#token")
	require.NoError(t, err)
	assert.Equal(t, "t1", got)

	_, err = s.Get(ctx, "jira/other#token")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"github/acme/token", "jira/acme/token"}, keys)
}

func TestEnvStore(t *testing.T) {
	t.Setenv("JIRA_ACME_API_TOKEN", "from-env")
	ctx := context.Background()
	s := NewEnvStore()

	got, err := s.Get(ctx, "jira/acme#api-token")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	_, err = s.Get(ctx, "jira/acme#missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, "INTEGRATIONS_42_API_TOKEN", EnvKey("integrations/42/api-token"))
}

func TestK8sStoreReadsMountedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "integrations", "7"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "integrations", "7", "token"), []byte("s3cr3t\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "..data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "..data", "ignored"), []byte("x"), 0o600))

	s, err := NewK8sStore(K8sConfig{SecretsPath: dir})
	require.NoError(t, err)
	ctx := context.Background()

	got, err := s.Get(ctx, "integrations/7#token")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", got)

	_, err = s.Get(ctx, "integrations/8/token")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"integrations/7/token"}, keys)
}

func TestVaultStoreReadsKV2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/kv/data/jira/acme":
			assert.Equal(t, "root-token", r.Header.Get("X-Vault-Token"))
			_, _ = w.Write([]byte(`{"data":{"data":{"token":"vault-token","api_key":"k"},"metadata":{"version":3}}}`))
		case r.URL.Path == "/v1/kv/metadata/jira" && (r.Method == "LIST" || r.URL.Query().Get("list") == "true"):
			_, _ = w.Write([]byte(`{"data":{"keys":["globex","acme"]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	defer srv.Close()

	s, err := NewVaultStore(VaultConfig{Address: srv.URL, Token: "root-token", PathPrefix: "kv", SkipHealth: true})
	require.NoError(t, err)
	ctx := context.Background()

	got, err := s.Get(ctx, "jira/acme")
	require.NoError(t, err)
	assert.Equal(t, "vault-token", got)

	got, err = s.Get(ctx, "jira/acme#api_key")
	require.NoError(t, err)
	assert.Equal(t, "k", got)

	_, err = s.Get(ctx, "jira/acme#password")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "jira/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(ctx, "jira/")
	require.NoError(t, err)
	assert.Equal(t, []string{"jira/acme", "jira/globex"}, keys)
}
