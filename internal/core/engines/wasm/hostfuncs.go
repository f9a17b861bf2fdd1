package wasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/weisyn/sandbox/internal/core/engines/host"
	"github.com/weisyn/sandbox/pkg/types"
)

// HostModule 宿主函数所在的导入模块名
const HostModule = "env"

var errNoInvocation = errors.New("host function called outside an invocation")

// invocation 单次调用的宿主上下文，随 ctx 传入宿主函数
type invocation struct {
	state *host.State
}

type invocationKey struct{}

func withInvocation(ctx context.Context, inv *invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

func invocationFrom(ctx context.Context) *invocation {
	inv, _ := ctx.Value(invocationKey{}).(*invocation)
	return inv
}

// instantiateHostModule 注册宿主函数
//
// 指针与长度均为 i32；返回数据的函数返回 i64 打包的 (ptr << 32 | len)，
// 0 表示不存在。宿主函数出错时先在 host.State 中记录中止原因再 panic，
// 结果分类以 State 为准。
func instantiateHostModule(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().WithFunc(ledgerGet).Export("ledger_get").
		NewFunctionBuilder().WithFunc(ledgerPut).Export("ledger_put").
		NewFunctionBuilder().WithFunc(ledgerDel).Export("ledger_del").
		NewFunctionBuilder().WithFunc(emitEvent).Export("emit_event").
		NewFunctionBuilder().WithFunc(getInvoker).Export("get_invoker").
		NewFunctionBuilder().WithFunc(getContract).Export("get_contract").
		NewFunctionBuilder().WithFunc(fail).Export("fail").
		Instantiate(ctx)
	return err
}

func ledgerGet(ctx context.Context, m api.Module, keyPtr, keyLen uint32) uint64 {
	st := mustState(ctx)
	key := readKey(st, m, keyPtr, keyLen)
	v, ok, err := st.Get(key)
	check(err)
	if !ok {
		return 0
	}
	return writeResult(ctx, st, m, types.EncodeValue(v))
}

func ledgerPut(ctx context.Context, m api.Module, keyPtr, keyLen, valPtr, valLen uint32) {
	st := mustState(ctx)
	key := readKey(st, m, keyPtr, keyLen)
	check(st.Put(key, readValue(st, m, valPtr, valLen)))
}

func ledgerDel(ctx context.Context, m api.Module, keyPtr, keyLen uint32) {
	st := mustState(ctx)
	check(st.Delete(readKey(st, m, keyPtr, keyLen)))
}

func emitEvent(ctx context.Context, m api.Module, topicPtr, topicLen, dataPtr, dataLen uint32) {
	st := mustState(ctx)
	topic := string(readBytes(st, m, topicPtr, topicLen))
	check(st.Emit(topic, readValue(st, m, dataPtr, dataLen)))
}

func getInvoker(ctx context.Context, m api.Module) uint64 {
	st := mustState(ctx)
	check(st.Charge(1))
	return writeResult(ctx, st, m, types.EncodeValue(types.AddressValue(st.Invoker())))
}

func getContract(ctx context.Context, m api.Module) uint64 {
	st := mustState(ctx)
	check(st.Charge(1))
	return writeResult(ctx, st, m, types.EncodeValue(types.AddressValue(st.Contract())))
}

func fail(ctx context.Context, m api.Module, msgPtr, msgLen uint32) {
	st := mustState(ctx)
	msg := string(readBytes(st, m, msgPtr, msgLen))
	panic(st.Fail(msg))
}

func mustState(ctx context.Context) *host.State {
	inv := invocationFrom(ctx)
	if inv == nil {
		panic(errNoInvocation)
	}
	return inv.state
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}

// readBytes 复制 guest 内存区间，越界视为陷入
func readBytes(st *host.State, m api.Module, ptr, n uint32) []byte {
	if n == 0 {
		return nil
	}
	b, ok := m.Memory().Read(ptr, n)
	if !ok {
		panic(st.Fail(fmt.Sprintf("out of bounds memory access: ptr=%d len=%d", ptr, n)))
	}
	return append([]byte(nil), b...)
}

func readKey(st *host.State, m api.Module, ptr, n uint32) types.LedgerKey {
	key, err := types.DecodeKey(readBytes(st, m, ptr, n))
	if err != nil {
		panic(st.Fail("malformed ledger key: " + err.Error()))
	}
	return key
}

// readValue 解码值，长度为 0 表示 Void
func readValue(st *host.State, m api.Module, ptr, n uint32) types.TypedValue {
	if n == 0 {
		return types.Void()
	}
	v, err := types.DecodeValue(readBytes(st, m, ptr, n))
	if err != nil {
		panic(st.Fail("malformed value: " + err.Error()))
	}
	return v
}

// writeResult 通过 guest 的 alloc 分配内存并写入数据
func writeResult(ctx context.Context, st *host.State, m api.Module, data []byte) uint64 {
	ptr, err := writeGuest(ctx, m, data)
	if err != nil {
		panic(st.Fail(err.Error()))
	}
	return pack(ptr, uint32(len(data)))
}

func writeGuest(ctx context.Context, m api.Module, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	alloc := m.ExportedFunction(allocExport)
	if alloc == nil {
		return 0, fmt.Errorf("missing %q export", allocExport)
	}
	res, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("alloc failed: %w", err)
	}
	ptr := uint32(res[0])
	if !m.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("alloc returned out of bounds region: ptr=%d len=%d", ptr, len(data))
	}
	return ptr, nil
}

func pack(ptr, n uint32) uint64 {
	return uint64(ptr)<<32 | uint64(n)
}

func unpack(v uint64) (ptr, n uint32) {
	return uint32(v >> 32), uint32(v)
}
