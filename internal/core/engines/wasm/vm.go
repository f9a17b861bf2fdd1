package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/weisyn/sandbox/internal/core/engines/wasm/compiler"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/types"
)

const (
	wasmPageSize = 64 << 10
	maxWasmPages = 65536

	allocExport  = "alloc"
	memoryExport = "memory"
)

// compiledContract 编译后的合约模块及其描述
type compiledContract struct {
	module wazero.CompiledModule
	spec   *types.ContractSpec
	hash   types.Hash
}

// vm 封装 wazero 运行时
//
// 运行时只有一个，宿主模块 env 在创建时实例化一次；
// 编译结果按代码哈希缓存，合约实例则每次调用新建、调用后关闭。
type vm struct {
	runtime wazero.Runtime
	cache   *compiler.ModuleCache
}

// newVM 创建运行时，maxMemoryBytes 折算为线性内存页数上限
func newVM(ctx context.Context, maxMemoryBytes uint64, cacheSize int) (*vm, error) {
	cfg := wazero.NewRuntimeConfigInterpreter().
		WithCloseOnContextDone(true).
		WithCustomSections(true).
		WithMemoryLimitPages(memoryLimitPages(maxMemoryBytes))

	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	if err := instantiateHostModule(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("实例化宿主模块失败: %w", err)
	}
	cache := compiler.NewModuleCache(cacheSize, func(v any) {
		_ = v.(*compiledContract).module.Close(context.Background())
	})
	return &vm{runtime: r, cache: cache}, nil
}

func memoryLimitPages(maxMemoryBytes uint64) uint32 {
	pages := maxMemoryBytes / wasmPageSize
	switch {
	case pages == 0:
		return 1
	case pages > maxWasmPages:
		return maxWasmPages
	default:
		return uint32(pages)
	}
}

// compile 编译字节码并校验合约描述与导出，结果按代码哈希缓存
//
// 返回的引用在使用完模块后必须 Release。
func (v *vm) compile(ctx context.Context, code []byte) (*compiledContract, *compiler.Handle, error) {
	hash := types.HashBytes(code)
	if h, ok := v.cache.Acquire(hash); ok {
		return h.Value().(*compiledContract), h, nil
	}

	metered, err := instrumentLoops(code)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", enginepkg.ErrInvalidCode, err)
	}
	// 函数监听器必须在编译时挂载
	cctx := experimental.WithFunctionListenerFactory(ctx, meterFactory{})
	mod, err := v.runtime.CompileModule(cctx, metered)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", enginepkg.ErrInvalidCode, err)
	}
	spec, err := specFromModule(mod)
	if err == nil {
		err = checkExports(mod, spec)
	}
	if err != nil {
		_ = mod.Close(ctx)
		return nil, nil, err
	}

	h, loaded := v.cache.Add(hash, &compiledContract{module: mod, spec: spec, hash: hash})
	if loaded {
		_ = mod.Close(ctx)
	}
	return h.Value().(*compiledContract), h, nil
}

// checkExports 校验合约导出：memory、alloc 以及描述中的每个函数
func checkExports(mod wazero.CompiledModule, spec *types.ContractSpec) error {
	if _, ok := mod.ExportedMemories()[memoryExport]; !ok {
		return fmt.Errorf("%w: missing %q export", enginepkg.ErrInvalidCode, memoryExport)
	}
	fns := mod.ExportedFunctions()
	if !signature(fns[allocExport], []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}) {
		return fmt.Errorf("%w: %q must be (i32) -> i32", enginepkg.ErrInvalidCode, allocExport)
	}
	for _, fn := range spec.Functions {
		if !signature(fns[fn.Name], entryParams, entryResults) {
			return fmt.Errorf("%w: function %q must be exported as (i32, i32) -> i64", enginepkg.ErrInvalidCode, fn.Name)
		}
	}
	return nil
}

var (
	entryParams  = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	entryResults = []api.ValueType{api.ValueTypeI64}
)

func signature(def api.FunctionDefinition, params, results []api.ValueType) bool {
	if def == nil {
		return false
	}
	return sameTypes(def.ParamTypes(), params) && sameTypes(def.ResultTypes(), results)
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// close 释放编译缓存与运行时
func (v *vm) close(ctx context.Context) error {
	v.cache.Clear()
	return v.runtime.Close(ctx)
}
