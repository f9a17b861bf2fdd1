package event

import (
	"context"

	"go.uber.org/fx"

	eventconfig "github.com/weisyn/sandbox/internal/config/event"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	eventif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

type ModuleInput struct {
	fx.In

	Provider  config.Provider
	Logger    log.Logger `optional:"true"`
	Lifecycle fx.Lifecycle
}

type ModuleOutput struct {
	fx.Out

	EventBus eventif.EventBus
}

func Module() fx.Option {
	return fx.Module("event", fx.Provide(ProvideServices))
}

// ProvideServices 创建事件总线，停止时记录发布总数
func ProvideServices(in ModuleInput) ModuleOutput {
	var logger log.Logger
	if in.Logger != nil {
		logger = in.Logger.With("module", "event")
	}
	bus := New(eventconfig.NewFromOptions(in.Provider.GetEvent()), logger)
	in.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			bus.logger.Infof("事件总线停止，共发布 %d 个事件", bus.Published())
			return nil
		},
	})
	return ModuleOutput{EventBus: bus}
}
