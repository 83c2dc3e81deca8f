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

package rest

import (
	"context"
	"net/url"
	"sync"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/inventory"
	"ingest-platform/pkg/config"
)

// ClientFactory 按集成构造（并复用）REST 客户端：端点来自 inventory，凭据来自 CredentialResolver
type ClientFactory struct {
	inventory inventory.Service
	creds     *inventory.CredentialResolver
	cfg       config.SourcesConfig

	mu      sync.Mutex
	clients map[clientKey]*Client
}

type clientKey struct {
	key    ingestion.IntegrationKey
	scheme AuthScheme
}

// NewClientFactory 创建工厂
func NewClientFactory(inv inventory.Service, creds *inventory.CredentialResolver, cfg config.SourcesConfig) *ClientFactory {
	return &ClientFactory{inventory: inv, creds: creds, cfg: cfg, clients: make(map[clientKey]*Client)}
}

// ForIntegration 返回集成对应的客户端与集成元数据；缺少 URL 或凭据时返回 *ingestion.ConfigurationError
func (f *ClientFactory) ForIntegration(ctx context.Context, key ingestion.IntegrationKey, scheme AuthScheme) (*Client, *inventory.Integration, error) {
	integ, err := f.inventory.GetIntegration(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if integ.URL == "" {
		return nil, nil, &ingestion.ConfigurationError{Key: key, Message: "集成未配置 url"}
	}
	ck := clientKey{key: key, scheme: scheme}
	f.mu.Lock()
	c, ok := f.clients[ck]
	f.mu.Unlock()
	if ok {
		return c, integ, nil
	}

	cc := ClientConfig{
		BaseURL:    integ.URL,
		Scheme:     scheme,
		Timeout:    config.ParseDuration(f.cfg.Timeout, 0),
		RetryCount: f.cfg.RetryCount,
		UserAgent:  f.cfg.UserAgent,
	}
	if scheme != AuthNone {
		creds, err := f.creds.Resolve(ctx, integ)
		if err != nil {
			return nil, nil, err
		}
		cc.Username, cc.Token = creds.Username, creds.Token
	}
	if u, err := url.Parse(integ.URL); err == nil {
		if rl, ok := f.cfg.RateLimitFor(u.Hostname()); ok {
			cc.QPS, cc.Burst = rl.QPS, rl.Burst
		}
	}
	c = NewClient(cc)
	f.mu.Lock()
	f.clients[ck] = c
	f.mu.Unlock()
	return c, integ, nil
}
