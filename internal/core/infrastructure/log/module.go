package log

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/zap"

	logconfig "github.com/weisyn/sandbox/internal/config/log"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	logif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

type ModuleParams struct {
	fx.In

	Provider  config.Provider
	Lifecycle fx.Lifecycle `optional:"true"`
}

type ModuleOutput struct {
	fx.Out

	Logger logif.Logger
	// ZapLogger 供需要 zap 字段的组件直接使用
	ZapLogger *zap.Logger
}

func Module() fx.Option {
	return fx.Module("log", fx.Provide(ProvideServices))
}

// ProvideServices 创建记录器，停止时刷新缓冲
func ProvideServices(params ModuleParams) (ModuleOutput, error) {
	logger, err := New(logconfig.NewFromOptions(params.Provider.GetLog()))
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("创建日志记录器失败: %w", err)
	}
	if params.Lifecycle != nil {
		params.Lifecycle.Append(fx.Hook{OnStop: func(context.Context) error {
			return ignoreTTYSync(logger.Sync())
		}})
	}
	return ModuleOutput{Logger: logger, ZapLogger: logger.GetZapLogger()}, nil
}

// ignoreTTYSync 终端与管道上的 stderr 不支持 fsync
func ignoreTTYSync(err error) error {
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF) {
		return nil
	}
	return err
}
