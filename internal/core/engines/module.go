package engines

import (
	"go.uber.org/fx"

	"github.com/weisyn/sandbox/internal/core/engines/scripted"
	"github.com/weisyn/sandbox/internal/core/engines/wasm"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
)

// RouterInput 路由依赖的具体引擎
type RouterInput struct {
	fx.In

	WASM     *wasm.Engine     `name:"wasm_engine" optional:"true"`
	Scripted *scripted.Engine `name:"scripted_engine" optional:"true"`
}

// ProvideRouter 组装引擎路由，作为唯一的 engine.Engine 提供给编排器
//
// 生命周期由各引擎模块自行管理。
func ProvideRouter(input RouterInput) enginepkg.Engine {
	var engines []Selectable
	if input.WASM != nil {
		engines = append(engines, input.WASM)
	}
	if input.Scripted != nil {
		engines = append(engines, input.Scripted)
	}
	return NewRouter(engines...)
}

// Module 执行引擎 fx 模块
func Module() fx.Option {
	return fx.Module("engines",
		wasm.Module(),
		scripted.Module(),
		fx.Provide(ProvideRouter),
	)
}
