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
	"errors"

	"ingest-platform/internal/ingestion"
	"ingest-platform/pkg/config"
	"ingest-platform/pkg/secrets"
)

// Credentials 访问上游 API 的凭据
type Credentials struct {
	Username string
	Token    string
}

// CredentialResolver 先取配置中的内联 token，否则按 CredentialsRef 从 secret store 读取
type CredentialResolver struct {
	store  secrets.Store
	inline map[ingestion.IntegrationKey]string
}

// NewCredentialResolver 创建凭据解析器；store 可为 nil（仅使用内联 token）
func NewCredentialResolver(store secrets.Store, cfgs []config.IntegrationConfig) *CredentialResolver {
	inline := make(map[ingestion.IntegrationKey]string)
	for _, c := range cfgs {
		if c.Token != "" {
			inline[ingestion.IntegrationKey{TenantID: c.TenantID, IntegrationID: c.ID}] = c.Token
		}
	}
	return &CredentialResolver{store: store, inline: inline}
}

// Resolve 解析凭据；无法解析时返回 *ingestion.ConfigurationError
func (r *CredentialResolver) Resolve(ctx context.Context, integ *Integration) (Credentials, error) {
	creds := Credentials{Username: integ.Username}
	if tok, ok := r.inline[integ.Key]; ok {
		creds.Token = tok
		return creds, nil
	}
	if integ.CredentialsRef == "" {
		return creds, &ingestion.ConfigurationError{Key: integ.Key, Message: "未配置凭据"}
	}
	if r.store == nil {
		return creds, &ingestion.ConfigurationError{Key: integ.Key, Message: "未配置 secret store"}
	}
	tok, err := r.store.Get(ctx, integ.CredentialsRef)
	if err != nil {
		msg := "读取凭据失败"
		if errors.Is(err, secrets.ErrNotFound) {
			msg = "凭据不存在"
		}
		return creds, &ingestion.ConfigurationError{Key: integ.Key, Message: msg, Err: err}
	}
	creds.Token = tok
	return creds, nil
}
