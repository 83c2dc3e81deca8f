// Copyright 2026 fanjia1024
// Kubernetes mounted secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// K8sConfig Kubernetes 挂载 secret 配置
type K8sConfig struct {
	// SecretsPath secret volume 挂载目录，默认 /etc/secrets
	SecretsPath string `mapstructure:"secrets_path"`
}

// k8sStore 从挂载目录读取：Ref.Key 对应相对文件路径，文件内容即值
type k8sStore struct {
	root string
}

// NewK8sStore 创建 Kubernetes secret store
func NewK8sStore(config K8sConfig) (Store, error) {
	root := "/etc/secrets"
	if config.SecretsPath != "" {
		root = config.SecretsPath
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("kubernetes secrets path not available: %s: %w", root, err)
	}
	return &k8sStore{root: root}, nil
}

func (k *k8sStore) Get(ctx context.Context, ref string) (string, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + r.Key())
	data, err := os.ReadFile(filepath.Join(k.root, filepath.FromSlash(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (k *k8sStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(k.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// kubelet 的 ..data 等原子更新目录
		if strings.HasPrefix(d.Name(), "..") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(k.root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
