// Package wasm 基于 wazero 的合约执行引擎
//
// 合约 ABI：
//   - 导出 memory 与 alloc(i32) -> i32
//   - 每个合约函数导出为 (argsPtr, argsLen i32) -> i64，参数为参数 Vec 的规范编码，
//     返回值为结果值编码的 (ptr << 32 | len)，长度 0 表示 Void
//   - 自定义段 contractspec 存放 JSON 合约描述
//   - 宿主导入位于 env 模块：ledger_get / ledger_put / ledger_del / emit_event /
//     get_invoker / get_contract / fail
package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/weisyn/sandbox/internal/core/engines/host"
	"github.com/weisyn/sandbox/internal/core/engines/wasm/compiler"
	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/types"
)

// magic WASM 二进制头
var magic = []byte{0x00, 0x61, 0x73, 0x6d}

// Options 引擎配置
type Options struct {
	// MaxMemoryBytes 线性内存硬上限
	MaxMemoryBytes uint64
	// Timeout 单次执行墙钟上限，只兜底宿主侧的停滞，终止由指令预算保证；
	// 不大于 0 时取 DefaultTimeout
	Timeout time.Duration
	// ModuleCacheSize 缓存的已编译合约数
	ModuleCacheSize int
}

// DefaultTimeout 未配置墙钟上限时的取值
const DefaultTimeout = 10 * time.Second

// Engine WASM 执行引擎
type Engine struct {
	vm      *vm
	opts    Options
	logger  log.Logger
	closed  atomic.Bool
	closeMu sync.RWMutex
}

var _ enginepkg.Engine = (*Engine)(nil)

// New 创建 WASM 引擎
func New(ctx context.Context, opts Options, logger log.Logger) (*Engine, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	v, err := newVM(ctx, opts.MaxMemoryBytes, opts.ModuleCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{vm: v, opts: opts, logger: logimpl.OrNop(logger)}, nil
}

// Name 引擎名称
func (e *Engine) Name() string { return "wasm" }

// Accepts 是否为 WASM 二进制
func (e *Engine) Accepts(code []byte) bool {
	return bytes.HasPrefix(code, magic)
}

// ResolveSpec 编译字节码并返回其合约描述
func (e *Engine) ResolveSpec(ctx context.Context, code []byte) (*types.ContractSpec, error) {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed.Load() {
		return nil, enginepkg.ErrEngineClosed
	}
	c, h, err := e.vm.compile(ctx, code)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	spec := *c.spec
	spec.Functions = append([]types.FunctionSpec(nil), c.spec.Functions...)
	return &spec, nil
}

// Execute 实例化合约并调用函数
func (e *Engine) Execute(ctx context.Context, req *enginepkg.ExecutionRequest) (*enginepkg.ExecutionOutcome, error) {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed.Load() {
		return nil, enginepkg.ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, h, err := e.vm.compile(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	st := host.NewState(req)
	st.Record(types.DiagFunctionCall, req.Function)
	if _, ok := c.spec.Function(req.Function); !ok {
		return st.Outcome(types.Void(), fmt.Errorf("function %s not exported", req.Function)), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	st.OnAbort(cancel)
	callCtx = withInvocation(callCtx, &invocation{state: st})

	start := time.Now()
	value, execErr := e.call(callCtx, c, st, req)
	if !st.Aborted() {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			// 预算内的循环都已计量，走到这里说明执行卡在预算之外，按陷入处理
			execErr = fmt.Errorf("execution interrupted: time limit %s exceeded", e.opts.Timeout)
		}
	}
	out := st.Outcome(value, execErr)
	e.logger.Debugf("WASM合约执行完成: code=%s fn=%s status=%s instructions=%d elapsed=%s",
		c.hash.Hex()[:12], req.Function, out.Status, out.Resources.Instructions, time.Since(start))
	return out, nil
}

// call 实例化匿名模块、写入参数、调用并读回结果
func (e *Engine) call(ctx context.Context, c *compiledContract, st *host.State, req *enginepkg.ExecutionRequest) (types.TypedValue, error) {
	mod, err := e.vm.runtime.InstantiateModule(ctx, c.module, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return types.Void(), fmt.Errorf("instantiate: %w", err)
	}
	defer mod.Close(context.Background())

	args := types.EncodeValue(types.Vec(req.Args...))
	ptr, err := writeGuest(ctx, mod, args)
	if err != nil {
		return types.Void(), err
	}
	res, err := mod.ExportedFunction(req.Function).Call(ctx, uint64(ptr), uint64(len(args)))
	if mem := mod.Memory(); mem != nil {
		_ = st.ObserveMemory(uint64(mem.Size()))
	}
	if err != nil {
		return types.Void(), err
	}

	rptr, rlen := unpack(res[0])
	if rlen == 0 {
		return types.Void(), nil
	}
	b, ok := mod.Memory().Read(rptr, rlen)
	if !ok {
		return types.Void(), fmt.Errorf("return value out of bounds: ptr=%d len=%d", rptr, rlen)
	}
	v, err := types.DecodeValue(append([]byte(nil), b...))
	if err != nil {
		return types.Void(), fmt.Errorf("malformed return value: %w", err)
	}
	return v, nil
}

// CacheStats 编译缓存统计
func (e *Engine) CacheStats() compiler.CacheStats { return e.vm.cache.Stats() }

// Close 关闭运行时，等待进行中的执行结束
func (e *Engine) Close(ctx context.Context) error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed.Swap(true) {
		return nil
	}
	return e.vm.close(ctx)
}
