package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/weisyn/sandbox/internal/api"
	apihttp "github.com/weisyn/sandbox/internal/api/http"
	"github.com/weisyn/sandbox/internal/config"
	"github.com/weisyn/sandbox/internal/core/engines"
	"github.com/weisyn/sandbox/internal/core/infrastructure/clock"
	"github.com/weisyn/sandbox/internal/core/infrastructure/event"
	"github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/infrastructure/storage"
	"github.com/weisyn/sandbox/internal/core/infrastructure/writegate"
	"github.com/weisyn/sandbox/internal/core/ledger"
	"github.com/weisyn/sandbox/internal/core/orchestrator"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	configiface "github.com/weisyn/sandbox/pkg/interfaces/config"
)

// Framework layers
const (
	// 基础设施层
	LayerInfrastructure = "infrastructure"
	// 通信与数据层
	LayerCommunication = "communication"
	// 业务逻辑层
	LayerBusiness = "business"
	// 应用层
	LayerApplication = "application"
)

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts  *options
	fxApp *fx.App

	service *sandbox.Service
	server  *apihttp.Server
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{opts: opts}
}

// SetupInfrastructureLayer 设置基础设施层模块
func (b *Bootstrap) SetupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(func() configiface.AppOptions { return b.opts }),
		config.Module(),    // 1. 配置(不依赖其他)
		log.Module(),       // 2. 日志(依赖配置)
		metrics.Module(),   // 3. 指标
		writegate.Module(), // 4. 写门闸(依赖配置)
		fx.Provide(clock.NewSystemClock),
	}
}

// SetupCommunicationLayer 设置通信与数据层模块
func (b *Bootstrap) SetupCommunicationLayer() []fx.Option {
	return []fx.Option{
		event.Module(),   // 事件(依赖基础设施)
		storage.Module(), // 存储(依赖基础设施)
	}
}

// SetupBusinessLayer 设置业务逻辑层模块
//
// 加载顺序：账本 -> 执行引擎 -> 编排器 -> 沙箱服务
func (b *Bootstrap) SetupBusinessLayer() []fx.Option {
	return []fx.Option{
		ledger.Module(),
		engines.Module(),
		orchestrator.Module(),
		sandbox.Module(),
		fx.Populate(&b.service),
	}
}

// SetupApplicationLayer 设置应用层模块
func (b *Bootstrap) SetupApplicationLayer() []fx.Option {
	if !b.opts.withAPI {
		return nil
	}
	return []fx.Option{
		api.Module(),
		fx.Populate(&b.server),
	}
}

// SetupModules 按依赖顺序组装所有模块
func (b *Bootstrap) SetupModules() []fx.Option {
	var all []fx.Option
	all = append(all, b.SetupInfrastructureLayer()...)
	all = append(all, b.SetupCommunicationLayer()...)
	all = append(all, b.SetupBusinessLayer()...)
	all = append(all, b.SetupApplicationLayer()...)
	return all
}

// CreateFxApp 创建并配置fx应用
func (b *Bootstrap) CreateFxApp() error {
	b.fxApp = fx.New(
		fx.Options(b.SetupModules()...),
		// 禁用fx内部日志
		fx.NopLogger,
	)
	if err := b.fxApp.Err(); err != nil {
		return fmt.Errorf("装配应用失败: %w", err)
	}
	return nil
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	return nil
}

// StopApp 停止应用程序
func (b *Bootstrap) StopApp(ctx context.Context) error {
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}
