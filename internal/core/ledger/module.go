package ledger

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	storageconfig "github.com/weisyn/sandbox/internal/config/storage"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
)

// ModuleParams 账本模块依赖
type ModuleParams struct {
	fx.In

	Provider    config.Provider
	Logger      log.Logger
	WriteGate   writegate.WriteGate
	Metrics     *metrics.Metrics    `optional:"true"`
	BadgerStore storage.BadgerStore `optional:"true"`
	Lifecycle   fx.Lifecycle
}

// Module 返回账本模块
func Module() fx.Option {
	return fx.Module("ledger",
		fx.Provide(ProvideStore),
	)
}

// ProvideStore 按配置选择持久化后端并加载快照
//
// 快照损坏时返回错误，应用拒绝启动。
func ProvideStore(params ModuleParams) (*Store, error) {
	logger := params.Logger.With("module", "ledger")
	opts := params.Provider.GetStorage()

	persister, err := NewPersister(opts, params.BadgerStore, logger)
	if err != nil {
		return nil, err
	}
	store, err := Open(context.Background(), persister,
		WithWriteGate(params.WriteGate),
		WithMetrics(params.Metrics),
		WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// NewPersister 由存储配置构造持久化后端
func NewPersister(opts *storageconfig.StorageOptions, badgerStore storage.BadgerStore, logger log.Logger) (Persister, error) {
	switch opts.Backend {
	case storageconfig.BackendFile, "":
		if opts.LedgerFile == "" {
			return nil, fmt.Errorf("账本快照文件路径未配置")
		}
		return NewFilePersister(opts.LedgerFile, opts.Compress, logger), nil
	case storageconfig.BackendBadger:
		if badgerStore == nil {
			return nil, fmt.Errorf("badger 后端已选择但存储未初始化")
		}
		return NewBadgerPersister(badgerStore, logger), nil
	default:
		return nil, fmt.Errorf("未知的账本存储后端: %s", opts.Backend)
	}
}
