package orchestrator

import (
	"go.uber.org/fx"

	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/ledger"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/storage"
)

// ModuleParams 编排器依赖
type ModuleParams struct {
	fx.In

	Provider    config.Provider
	Store       *ledger.Store
	Engine      enginepkg.Engine
	MemoryStore storage.MemoryStore `optional:"true"`
	Metrics     *metrics.Metrics    `optional:"true"`
	Logger      log.Logger
}

// Module 返回编排器模块
func Module() fx.Option {
	return fx.Module("orchestrator",
		fx.Provide(ProvideOrchestrator),
	)
}

// ProvideOrchestrator 创建编排器
func ProvideOrchestrator(params ModuleParams) *Orchestrator {
	return New(params.Store, params.Engine,
		WithSandboxOptions(params.Provider.GetSandbox()),
		WithSpecCache(params.MemoryStore),
		WithMetrics(params.Metrics),
		WithLogger(params.Logger.With("module", "orchestrator")),
	)
}
