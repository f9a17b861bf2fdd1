package wasm

import (
	"context"

	"go.uber.org/fx"

	sandboxconfig "github.com/weisyn/sandbox/internal/config/sandbox"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

// ModuleInput WASM 引擎的输入依赖
type ModuleInput struct {
	fx.In

	Provider  config.Provider
	Logger    log.Logger `optional:"true"`
	Lifecycle fx.Lifecycle
}

// ModuleOutput WASM 引擎的输出服务
type ModuleOutput struct {
	fx.Out

	// 以名称提供给引擎路由；配置为 scripted 时为 nil
	Engine *Engine `name:"wasm_engine"`
}

// ProvideWASMEngine 按沙箱配置创建 WASM 引擎
func ProvideWASMEngine(input ModuleInput) (ModuleOutput, error) {
	opts := input.Provider.GetSandbox()
	if opts.Engine == sandboxconfig.EngineScripted {
		return ModuleOutput{}, nil
	}

	var logger log.Logger
	if input.Logger != nil {
		logger = input.Logger.With("module", "engine-wasm")
	}
	engine, err := New(context.Background(), Options{
		MaxMemoryBytes:  opts.MaxMemoryBytes,
		Timeout:         opts.ExecutionTimeout,
		ModuleCacheSize: opts.ModuleCacheSize,
	}, logger)
	if err != nil {
		return ModuleOutput{}, err
	}

	input.Lifecycle.Append(fx.Hook{
		OnStop: engine.Close,
	})
	if logger != nil {
		logger.Infof("WASM引擎已创建: max_memory=%d timeout=%s", opts.MaxMemoryBytes, opts.ExecutionTimeout)
	}
	return ModuleOutput{Engine: engine}, nil
}

// Module WASM 引擎 fx 模块
func Module() fx.Option {
	return fx.Module("engine-wasm",
		fx.Provide(ProvideWASMEngine),
	)
}
