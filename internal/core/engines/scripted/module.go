package scripted

import (
	"go.uber.org/fx"

	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

// ModuleInput 脚本引擎的输入依赖
type ModuleInput struct {
	fx.In

	Logger log.Logger `optional:"true"`
}

// ModuleOutput 脚本引擎的输出服务
type ModuleOutput struct {
	fx.Out

	Engine *Engine `name:"scripted_engine"`
}

// ProvideScriptedEngine 创建带内置合约的脚本引擎
func ProvideScriptedEngine(input ModuleInput) ModuleOutput {
	var logger log.Logger
	if input.Logger != nil {
		logger = input.Logger.With("module", "engine-scripted")
	}
	return ModuleOutput{Engine: New(logger)}
}

// Module 脚本引擎 fx 模块
func Module() fx.Option {
	return fx.Module("engine-scripted",
		fx.Provide(ProvideScriptedEngine),
	)
}
