// Package storage 提供存储管理功能
//
// 内存缓存总是创建；BadgerDB 仅在账本后端配置为 badger 时打开。
package storage

import (
	"context"

	"go.uber.org/fx"

	storageconfig "github.com/weisyn/sandbox/internal/config/storage"
	badgerconfig "github.com/weisyn/sandbox/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/sandbox/internal/config/storage/memory"
	"github.com/weisyn/sandbox/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/sandbox/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	storageInterface "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/storage"
)

// ModuleParams 定义存储模块的依赖参数
type ModuleParams struct {
	fx.In

	Provider  config.Provider // 配置提供者
	Logger    log.Logger      // 日志记录器
	Lifecycle fx.Lifecycle
}

// ModuleOutput 定义存储模块的输出结构
type ModuleOutput struct {
	fx.Out

	MemoryStore storageInterface.MemoryStore
	// BadgerStore 未启用 badger 后端时为 nil
	BadgerStore storageInterface.BadgerStore `optional:"true"`
}

// Module 返回存储模块
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 根据配置初始化存储并注册关闭钩子
func ProvideServices(params ModuleParams) (ModuleOutput, error) {
	logger := params.Logger.With("module", "storage")

	memStore, err := memory.New(memoryconfig.NewFromOptions(params.Provider.GetMemory()), logger)
	if err != nil {
		return ModuleOutput{}, err
	}
	out := ModuleOutput{MemoryStore: memStore}

	var badgerStore *badger.Store
	if params.Provider.GetStorage().Backend == storageconfig.BackendBadger {
		badgerStore, err = badger.New(badgerconfig.NewFromOptions(params.Provider.GetBadger()), logger)
		if err != nil {
			_ = memStore.Close()
			return ModuleOutput{}, err
		}
		out.BadgerStore = badgerStore
	}

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := memStore.Close(); err != nil {
				logger.Warnf("关闭内存存储失败: %v", err)
			}
			if badgerStore != nil {
				if err := badgerStore.Close(); err != nil {
					logger.Errorf("关闭BadgerDB存储失败: %v", err)
					return err
				}
			}
			logger.Info("存储服务已安全关闭")
			return nil
		},
	})
	return out, nil
}
