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

package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/storage/cache"
	"ingest-platform/pkg/config"
	"ingest-platform/pkg/secrets"
)

var testIntegrations = []config.IntegrationConfig{
	{
		ID: "1", TenantID: "acme", Application: "github", URL: "https://api.github.com", Token: "inline",
		Metadata: map[string]any{"orgs": []any{"acme", "acme-labs"}, "fetch_projects": false},
	},
	{ID: "2", TenantID: "acme", Application: "jira", URL: "https://acme.atlassian.net", Username: "bot", CredentialsRef: "integrations/2/token"},
	{ID: "3", TenantID: "acme", Application: "jira"},
}

type countingService struct {
	inner Service
	calls int
}

func (c *countingService) GetIntegration(ctx context.Context, key ingestion.IntegrationKey) (*Integration, error) {
	c.calls++
	return c.inner.GetIntegration(ctx, key)
}

func TestStaticService(t *testing.T) {
	s := NewStaticService(testIntegrations)
	integ, err := s.GetIntegration(context.Background(), ingestion.IntegrationKey{TenantID: "acme", IntegrationID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "github", integ.Application)
	assert.Equal(t, []string{"acme", "acme-labs"}, integ.Strings("orgs"))

	_, err = s.GetIntegration(context.Background(), ingestion.IntegrationKey{TenantID: "other", IntegrationID: "1"})
	assert.ErrorIs(t, err, ingestion.ErrConfiguration)
	assert.ErrorIs(t, err, ErrIntegrationNotFound)
}

func TestCachedService_HitsInnerOnce(t *testing.T) {
	inner := &countingService{inner: NewStaticService(testIntegrations)}
	s := NewCachedService(inner, cache.NewMemoryStore(), time.Minute, nil)
	key := ingestion.IntegrationKey{TenantID: "acme", IntegrationID: "2"}
	for i := 0; i < 3; i++ {
		integ, err := s.GetIntegration(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, "jira", integ.Application)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCredentialResolver(t *testing.T) {
	ctx := context.Background()
	store := secrets.NewMemoryStore(map[string]string{"integrations/2/token": "jira-token"})
	r := NewCredentialResolver(store, testIntegrations)
	svc := NewStaticService(testIntegrations)

	gh, _ := svc.GetIntegration(ctx, ingestion.IntegrationKey{TenantID: "acme", IntegrationID: "1"})
	creds, err := r.Resolve(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "inline", creds.Token)

	jira, _ := svc.GetIntegration(ctx, ingestion.IntegrationKey{TenantID: "acme", IntegrationID: "2"})
	creds, err = r.Resolve(ctx, jira)
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "bot", Token: "jira-token"}, creds)

	missing, _ := svc.GetIntegration(ctx, ingestion.IntegrationKey{TenantID: "acme", IntegrationID: "3"})
	_, err = r.Resolve(ctx, missing)
	assert.ErrorIs(t, err, ingestion.ErrConfiguration)
}
