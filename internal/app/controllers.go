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

package app

import (
	"fmt"
	"log/slog"
	"time"

	"ingest-platform/internal/ingestion"
	"ingest-platform/internal/ingestion/sink"
	"ingest-platform/internal/integrations/azuredevops"
	"ingest-platform/internal/integrations/github"
	"ingest-platform/internal/integrations/jira"
	"ingest-platform/internal/inventory"
	"ingest-platform/internal/sources/rest"
	"ingest-platform/internal/sources/sqlsource"
	"ingest-platform/internal/storage/cache"
	"ingest-platform/internal/storage/object"
	"ingest-platform/pkg/config"
	"ingest-platform/pkg/secrets"
)

const defaultOutputPageSize = 500

// NewControllerRegistry 按配置组装集成清单、暂存区与全部控制器
func NewControllerRegistry(cfg *config.Config, pools *sqlsource.Pools, logger *slog.Logger) (*ingestion.Registry, error) {
	store, err := object.NewStore(cfg.Storage.Object)
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储失败: %w", err)
	}
	cacheStore, err := cache.NewCache(cfg.Storage.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}
	secretStore, err := secrets.NewStore(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("初始化 secret store 失败: %w", err)
	}

	inv := inventory.NewCachedService(
		inventory.NewStaticService(cfg.Inventory.Integrations),
		cacheStore,
		config.ParseDuration(cfg.Inventory.CacheTTL, 5*time.Minute),
		logger,
	)
	creds := inventory.NewCredentialResolver(secretStore, cfg.Inventory.Integrations)
	clients := rest.NewClientFactory(inv, creds, cfg.Sources)
	staging := sink.NewObjectSink(store, sink.WithPrefix(cfg.Storage.Object.Prefix))
	ing := cfg.Ingestion
	disablePromotion := !ing.ResumableEnabled()

	reg := ingestion.NewRegistry()
	register := func(name string, c ingestion.Controller) {
		if err == nil {
			err = reg.Register(name, c)
		}
	}

	register(github.IntegrationType, ingestion.Erase[github.Query](github.NewScanController(inv,
		github.NewStages(clients, staging, ing, logger),
		github.Options{
			OnboardingDays:   ing.OnboardingDaysFor(github.IntegrationType, github.DefaultOnboardingDays),
			DisablePromotion: disablePromotion,
			Logger:           logger,
		})))
	register(jira.IntegrationType, ingestion.Erase[jira.Query](jira.NewScanController(inv,
		jira.NewStages(clients, staging, ing, logger),
		jira.Options{
			OnboardingDays:   ing.OnboardingDaysFor(jira.IntegrationType, jira.DefaultOnboardingDays),
			DisablePromotion: disablePromotion,
			Logger:           logger,
		})))
	register(azuredevops.IntegrationType, ingestion.Erase[azuredevops.Query](azuredevops.NewScanController(inv,
		azuredevops.NewStages(clients, staging, ing, logger),
		azuredevops.Options{
			OnboardingDays:   ing.OnboardingDaysFor(azuredevops.IntegrationType, azuredevops.DefaultOnboardingDays),
			DisablePromotion: disablePromotion,
			Logger:           logger,
		})))

	for _, rc := range ing.Rest {
		c, cerr := rest.NewController(rc, clients, staging, ing.OutputPageSizeFor(rc.DataType, defaultOutputPageSize), logger)
		if cerr != nil {
			return nil, cerr
		}
		register(c.Name(), ingestion.Erase[rest.Query](c))
	}
	for _, sc := range ing.SQL {
		c, cerr := sqlsource.NewController(sc, pools, staging, ing.OutputPageSizeFor(sc.DataType, defaultOutputPageSize), logger)
		if cerr != nil {
			return nil, cerr
		}
		register(c.Name(), ingestion.Erase[sqlsource.Query](c))
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}
