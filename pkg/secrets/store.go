// Copyright 2026 fanjia1024
// Read-only credential lookup for integrations

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound secret 不存在
var ErrNotFound = errors.New("secret not found")

// Store 只读凭据源；key 为集成配置里的 credentials_ref，形如 "jira/acme" 或 "jira/acme#token"
type Store interface {
	Get(ctx context.Context, ref string) (string, error)
	// List 返回 prefix 下的 key，按字典序
	List(ctx context.Context, prefix string) ([]string, error)
}

// Ref 解析后的 credentials_ref
type Ref struct {
	Path  string
	Field string
}

// ParseRef 拆分 "path#field"；path 去掉首尾 "/"
func ParseRef(ref string) (Ref, error) {
	p, field, _ := strings.Cut(ref, "#")
	p = strings.Trim(p, "/")
	if p == "" {
		return Ref{}, fmt.Errorf("invalid credentials ref %q", ref)
	}
	return Ref{Path: p, Field: field}, nil
}

// Key 扁平化为单层 key：field 作为最后一段路径
func (r Ref) Key() string {
	if r.Field == "" {
		return r.Path
	}
	return r.Path + "/" + r.Field
}

// Config Secret Store 配置
type Config struct {
	Provider string      `mapstructure:"provider"` // vault | k8s | env | memory
	Vault    VaultConfig `mapstructure:"vault"`
	K8s      K8sConfig   `mapstructure:"k8s"`
}

// NewStore 创建 Secret Store；provider 为空时使用 env
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(nil), nil
	case "", "env":
		return NewEnvStore(), nil
	case "vault":
		return NewVaultStore(config.Vault)
	case "k8s":
		return NewK8sStore(config.K8s)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}
