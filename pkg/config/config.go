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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ingest-platform/pkg/redaction"
	"ingest-platform/pkg/secrets"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Queue      QueueConfig      `mapstructure:"queue"`
	JobStore   JobStoreConfig   `mapstructure:"jobstore"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Secrets    secrets.Config   `mapstructure:"secrets"`
	Inventory  InventoryConfig  `mapstructure:"inventory"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	Timeout string `mapstructure:"timeout"`

	// RateLimit 每个客户端每秒请求数，<=0 不限流
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	Redaction redaction.Config `mapstructure:"redaction"`
}

// WorkerConfig Worker 服务配置
type WorkerConfig struct {
	ID           string `mapstructure:"id"`
	Concurrency  int    `mapstructure:"concurrency"`   // 同时执行的摄取任务数，<=0 默认 2
	PollInterval string `mapstructure:"poll_interval"` // 认领轮询间隔，如 "2s"
	RetryDelay   string `mapstructure:"retry_delay"`   // 可恢复失败后重新入队的等待时间
	MaxAttempts  int    `mapstructure:"max_attempts"`  // 最大执行次数（含首次），<=0 默认 5
	Timeout      string `mapstructure:"timeout"`       // 单次调用超时，空表示不限
}

// QueueConfig 摄取任务队列配置
type QueueConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`
}

// JobStoreConfig 任务事件存储配置
type JobStoreConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Object ObjectConfig `mapstructure:"object"`
	Cache  CacheConfig  `mapstructure:"cache"`
}

// ObjectConfig 对象存储（暂存区）配置
type ObjectConfig struct {
	Type   string `mapstructure:"type"`   // memory | file
	Root   string `mapstructure:"root"`   // file 类型的根目录
	Prefix string `mapstructure:"prefix"` // artifact 路径前缀
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
}

// InventoryConfig 集成清单配置
type InventoryConfig struct {
	CacheTTL     string              `mapstructure:"cache_ttl"`
	Integrations []IntegrationConfig `mapstructure:"integrations"`
}

// IntegrationConfig 单个集成：端点、凭据与租户级元数据（功能开关等）
type IntegrationConfig struct {
	ID          string `mapstructure:"id"`
	TenantID    string `mapstructure:"tenant_id"`
	Application string `mapstructure:"application"` // github | jira | azure_devops | rest
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	// Token 内联凭据，支持 ${VAR}；为空时通过 CredentialsRef 从 secret store 解析
	Token          string         `mapstructure:"token"`
	Username       string         `mapstructure:"username"`
	CredentialsRef string         `mapstructure:"credentials_ref"`
	Metadata       map[string]any `mapstructure:"metadata"`
}

// SourcesConfig 上游 DataSource 客户端配置
type SourcesConfig struct {
	Timeout    string            `mapstructure:"timeout"`
	RetryCount int               `mapstructure:"retry_count"`
	UserAgent  string            `mapstructure:"user_agent"`
	PageSize   int               `mapstructure:"page_size"`
	RateLimits []RateLimitConfig `mapstructure:"rate_limits"`
}

// RateLimitConfig 单个上游 host 的限流
type RateLimitConfig struct {
	Host  string  `mapstructure:"host"`
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

// RateLimitFor 按 host 查找限流配置
func (c SourcesConfig) RateLimitFor(host string) (RateLimitConfig, bool) {
	for _, rl := range c.RateLimits {
		if rl.Host == host {
			return rl, true
		}
	}
	return RateLimitConfig{}, false
}

// IngestionConfig 摄取行为配置
type IngestionConfig struct {
	// ResumableErrors 为 false 时不把非可恢复错误提升为可恢复错误；未配置默认 true
	ResumableErrors *bool                  `mapstructure:"resumable_errors"`
	OnboardingDays  map[string]int         `mapstructure:"onboarding_days"`   // 按 application
	OutputPageSizes map[string]int         `mapstructure:"output_page_sizes"` // 按 data type
	Rest            []RestControllerConfig `mapstructure:"rest"`
	SQL             []SQLControllerConfig  `mapstructure:"sql"`
}

// RestControllerConfig 通用 REST 单数据类型控制器
type RestControllerConfig struct {
	Name            string `mapstructure:"name"`
	IntegrationType string `mapstructure:"integration_type"`
	DataType        string `mapstructure:"data_type"`
	Path            string `mapstructure:"path"`
	Pagination      string `mapstructure:"pagination"` // page | offset | single
	ItemsField      string `mapstructure:"items_field"`
	PageParam       string `mapstructure:"page_param"`
	SizeParam       string `mapstructure:"size_param"`
	PageSize        int    `mapstructure:"page_size"`
	FirstPage       int    `mapstructure:"first_page"`
}

// SQLControllerConfig 通用 Postgres 单数据类型控制器
type SQLControllerConfig struct {
	Name            string `mapstructure:"name"`
	IntegrationType string `mapstructure:"integration_type"`
	DataType        string `mapstructure:"data_type"`
	DSN             string `mapstructure:"dsn"`
	Query           string `mapstructure:"query"`
	// Args 依次绑定到 $1..$n：from | to | tenant_id | integration_id；为空时默认 [from, to]
	Args []string `mapstructure:"args"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// ResumableEnabled 是否启用可恢复错误提升
func (c IngestionConfig) ResumableEnabled() bool {
	return c.ResumableErrors == nil || *c.ResumableErrors
}

// OnboardingDaysFor 某个 application 的首次回溯天数
func (c IngestionConfig) OnboardingDaysFor(application string, def int) int {
	if n, ok := c.OnboardingDays[application]; ok && n > 0 {
		return n
	}
	return def
}

// OutputPageSizeFor 某个数据类型的 artifact 条目数
func (c IngestionConfig) OutputPageSizeFor(dataType string, def int) int {
	if n, ok := c.OutputPageSizes[dataType]; ok && n > 0 {
		return n
	}
	return def
}

// ParseDuration 解析时长字符串，空或非法时返回 def
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("worker.retry_delay", "30s")
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("inventory.cache_ttl", "5m")
	v.SetDefault("sources.timeout", "30s")
	v.SetDefault("sources.retry_count", 2)
	v.SetDefault("sources.page_size", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// expandEnv 将 "${VAR}" 形式的值替换为环境变量，未设置时保持原样
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return value
}

// replaceEnvVars 替换配置中携带凭据或连接串的字段
func replaceEnvVars(config *Config) {
	config.Queue.DSN = expandEnv(config.Queue.DSN)
	config.JobStore.DSN = expandEnv(config.JobStore.DSN)
	config.Storage.Cache.Password = expandEnv(config.Storage.Cache.Password)
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
	for i := range config.Inventory.Integrations {
		integ := &config.Inventory.Integrations[i]
		integ.Token = expandEnv(integ.Token)
		integ.URL = expandEnv(integ.URL)
	}
	for i := range config.Ingestion.SQL {
		config.Ingestion.SQL[i].DSN = expandEnv(config.Ingestion.SQL[i].DSN)
	}
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

// LoadWorkerConfig 加载 Worker 配置（configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}
