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

// Package inventory 解析集成元数据与凭据（只读）
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ingest-platform/internal/ingestion"
	"ingest-platform/pkg/config"
)

// ErrIntegrationNotFound 集成不存在
var ErrIntegrationNotFound = errors.New("inventory: integration not found")

// Integration 一个外部系统实例的配置与租户级元数据；不含凭据，可安全缓存
type Integration struct {
	Key            ingestion.IntegrationKey `json:"key"`
	Application    string                   `json:"application"`
	Name           string                   `json:"name"`
	URL            string                   `json:"url"`
	Username       string                   `json:"username,omitempty"`
	CredentialsRef string                   `json:"credentials_ref,omitempty"`
	Metadata       map[string]any           `json:"metadata,omitempty"`
}

// Service InventoryService：按 IntegrationKey 查询集成
type Service interface {
	GetIntegration(ctx context.Context, key ingestion.IntegrationKey) (*Integration, error)
}

// StaticService 由配置文件中的集成列表构成
type StaticService struct {
	mu           sync.RWMutex
	integrations map[ingestion.IntegrationKey]*Integration
}

// NewStaticService 从配置构造
func NewStaticService(cfgs []config.IntegrationConfig) *StaticService {
	s := &StaticService{integrations: make(map[ingestion.IntegrationKey]*Integration)}
	for _, c := range cfgs {
		s.Put(&Integration{
			Key:            ingestion.IntegrationKey{TenantID: c.TenantID, IntegrationID: c.ID},
			Application:    c.Application,
			Name:           c.Name,
			URL:            c.URL,
			Username:       c.Username,
			CredentialsRef: c.CredentialsRef,
			Metadata:       c.Metadata,
		})
	}
	return s
}

// Put 新增或替换集成
func (s *StaticService) Put(integ *Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[integ.Key] = integ
}

// GetIntegration 实现 Service
func (s *StaticService) GetIntegration(ctx context.Context, key ingestion.IntegrationKey) (*Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	integ, ok := s.integrations[key]
	if !ok {
		return nil, &ingestion.ConfigurationError{Key: key, Message: "集成不存在", Err: ErrIntegrationNotFound}
	}
	cp := *integ
	return &cp, nil
}

// Strings 读取元数据中的字符串列表（支持 []any、[]string 与逗号分隔字符串）
func (i *Integration) Strings(key string) []string {
	switch v := i.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return splitComma(v)
	default:
		return nil
	}
}

// Int 读取元数据中的整数
func (i *Integration) Int(key string, def int) int {
	switch v := i.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
