// Copyright 2026 fanjia1024
// HashiCorp Vault KV v2 secret store

package secrets

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`     // 如 http://vault:8200
	Token      string `mapstructure:"token"`       // 支持 ${VAR}
	PathPrefix string `mapstructure:"path_prefix"` // KV v2 挂载点，默认 "secret"
	SkipHealth bool   `mapstructure:"skip_health"` // 启动时不探测 Vault 健康状态
}

// defaultFields ref 未指定 field 时依次尝试
var defaultFields = []string{"token", "value"}

// vaultStore 读取 KV v2：ref "jira/acme#token" -> GET {mount}/data/jira/acme 的 data.token
type vaultStore struct {
	client *vault.Client
	mount  string
}

// NewVaultStore 创建 Vault secret store
func NewVaultStore(config VaultConfig) (Store, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = config.Address
	if cfg.Address == "" {
		cfg.Address = "http://localhost:8200"
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if !config.SkipHealth {
		if _, err := client.Sys().Health(); err != nil {
			return nil, fmt.Errorf("failed to connect to vault: %w", err)
		}
	}
	mount := strings.Trim(config.PathPrefix, "/")
	if mount == "" {
		mount = "secret"
	}
	return &vaultStore{client: client, mount: mount}, nil
}

func (v *vaultStore) Get(ctx context.Context, ref string) (string, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	secret, err := v.client.Logical().ReadWithContext(ctx, path.Join(v.mount, "data", r.Path))
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s from vault: %w", r.Path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	fields := defaultFields
	if r.Field != "" {
		fields = []string{r.Field}
	}
	for _, f := range fields {
		if s, ok := data[f].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no field %s", ErrNotFound, r.Path, strings.Join(fields, "|"))
}

// List 列出 {mount}/metadata/{prefix} 下的 key；子目录以 "/" 结尾
func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.Trim(prefix, "/")
	secret, err := v.client.Logical().ListWithContext(ctx, path.Join(v.mount, "metadata", dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets from vault: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	raw, _ := secret.Data["keys"].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			if dir != "" {
				s = dir + "/" + s
			}
			keys = append(keys, s)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
