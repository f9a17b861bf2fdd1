package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// meterFactory 为合约内定义的函数挂载计量监听器
type meterFactory struct{}

func (meterFactory) NewFunctionListener(def api.FunctionDefinition) experimental.FunctionListener {
	// 导入函数由宿主侧自行计量
	if _, _, isImport := def.Import(); isImport {
		return nil
	}
	return meter{}
}

// meter 每次进入 guest 函数（含循环头插入的计步函数）计一步，并记录线性内存高水位
//
// 超出预算时 host.State 中止并取消调用上下文；监听器随即 panic，
// 由运行时转为调用错误，执行停在超出预算的那一步。
type meter struct{}

func (meter) Before(ctx context.Context, mod api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) {
	inv := invocationFrom(ctx)
	if inv == nil {
		return
	}
	if err := inv.state.Charge(1); err != nil {
		panic(err)
	}
	if mem := mod.Memory(); mem != nil {
		_ = inv.state.ObserveMemory(uint64(mem.Size()))
	}
}

func (meter) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

func (meter) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}
