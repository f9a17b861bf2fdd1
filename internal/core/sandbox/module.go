package sandbox

import (
	"context"

	"go.uber.org/fx"

	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/orchestrator"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
)

// ModuleParams 沙箱服务依赖
type ModuleParams struct {
	fx.In

	Provider     config.Provider
	Orchestrator *orchestrator.Orchestrator
	EventBus     event.EventBus      `optional:"true"`
	WriteGate    writegate.WriteGate `optional:"true"`
	Metrics      *metrics.Metrics    `optional:"true"`
	Clock        clock.Clock         `optional:"true"`
	Logger       log.Logger
	Lifecycle    fx.Lifecycle
}

// Module 返回沙箱服务模块
func Module() fx.Option {
	return fx.Module("sandbox",
		fx.Provide(ProvideService),
	)
}

// ProvideService 创建沙箱服务，停止时排空写队列
func ProvideService(params ModuleParams) (*Service, error) {
	logger := params.Logger.With("module", "sandbox")
	svc, err := New(params.Orchestrator, params.Provider.GetSandbox(),
		WithEventBus(params.EventBus),
		WithWriteGate(params.WriteGate),
		WithMetrics(params.Metrics),
		WithClock(params.Clock),
		WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return svc.Stop(ctx)
		},
	})
	return svc, nil
}
