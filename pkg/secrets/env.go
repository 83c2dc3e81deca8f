// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
)

type envStore struct{}

// NewEnvStore 环境变量凭据源：ref 先扁平化再把 / . - # 映射为 _ 并转大写，
// 如 jira/acme#api-token -> JIRA_ACME_API_TOKEN
func NewEnvStore() Store {
	return envStore{}
}

// EnvKey 将 secret key 规范化为环境变量名
func EnvKey(key string) string {
	r := strings.NewReplacer("/", "_", ".", "_", "-", "_", "#", "_")
	return strings.ToUpper(r.Replace(key))
}

func (envStore) Get(ctx context.Context, ref string) (string, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	name := EnvKey(r.Key())
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("%w: environment variable %s not set", ErrNotFound, name)
	}
	return value, nil
}

// List 返回匹配前缀的环境变量名
func (envStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	want := EnvKey(prefix)
	for _, env := range os.Environ() {
		name, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(name, want) {
			keys = append(keys, name)
		}
	}
	slices.Sort(keys)
	return keys, nil
}
