package wasm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/pkg/types"
)

// 测试用合约由下面的汇编器直接生成二进制，不依赖外部工具链

const (
	i32 = 0x7f
	i64 = 0x7e
)

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	return append(append([]byte{id}, uleb(uint64(len(content)))...), content...)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func i32const(v int) []byte { return append([]byte{0x41}, sleb(int64(v))...) }

// 函数索引：0 ledger_put、1 fail 为导入，其后依次为 definedFuncs
const (
	fnLedgerPut = 0
	fnFail      = 1
	fnNop       = 6
)

// fixture 测试合约的数据段内容
type fixture struct {
	key   []byte
	value []byte
	msg   string
	// spec 为 nil 时不写 contractspec 段
	spec []byte
	// skipExport 不导出的函数名
	skipExport string
}

const dataOffset = 16

// testSpec 测试合约的函数描述
func testSpec() types.ContractSpec {
	u32 := types.Scalar(types.TypeU32)
	void := types.Scalar(types.TypeVoid)
	return types.ContractSpec{Functions: []types.FunctionSpec{
		{Name: "echo", Params: []types.FunctionParam{{Name: "a", Type: u32}, {Name: "b", Type: u32}}, Returns: types.VecOf(u32)},
		{Name: "store", Returns: void},
		{Name: "spin", Returns: void},
		{Name: "boom", Returns: void},
		{Name: "fail", Returns: void},
		{Name: "grow", Returns: void},
		{Name: "hang", Returns: void},
	}}
}

func specJSON(t *testing.T, spec types.ContractSpec) []byte {
	t.Helper()
	b, err := json.Marshal(spec)
	require.NoError(t, err)
	return b
}

// build 组装合约二进制
func (f fixture) build() []byte {
	keyOff := dataOffset
	valOff := keyOff + len(f.key)
	msgOff := valOff + len(f.value)

	typeSec := vec(
		cat([]byte{0x60}, vec([]byte{i32}), vec([]byte{i32})),                             // 0 alloc
		cat([]byte{0x60}, vec([]byte{i32}, []byte{i32}), vec([]byte{i64})),                // 1 entry
		cat([]byte{0x60}, vec([]byte{i32}, []byte{i32}, []byte{i32}, []byte{i32}), vec()), // 2 ledger_put
		cat([]byte{0x60}, vec(), vec()),                                                   // 3 nop
		cat([]byte{0x60}, vec([]byte{i32}, []byte{i32}), vec()),                           // 4 fail
	)
	imports := vec(
		cat(name(HostModule), name("ledger_put"), []byte{0x00}, uleb(2)),
		cat(name(HostModule), name("fail"), []byte{0x00}, uleb(4)),
	)

	type def struct {
		name string
		typ  uint64
		body []byte
	}
	ret0 := []byte{0x42, 0x00}
	defs := []def{
		{"alloc", 0, []byte{0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00}},
		{"echo", 1, []byte{0x20, 0x00, 0xad, 0x42, 0x20, 0x86, 0x20, 0x01, 0xad, 0x84}},
		{"store", 1, cat(i32const(keyOff), i32const(len(f.key)), i32const(valOff), i32const(len(f.value)),
			[]byte{0x10, fnLedgerPut}, ret0)},
		{"spin", 1, []byte{0x03, 0x40, 0x10, fnNop, 0x0c, 0x00, 0x0b, 0x00}},
		{"nop", 3, nil},
		{"boom", 1, []byte{0x00}},
		{"fail", 1, cat(i32const(msgOff), i32const(len(f.msg)), []byte{0x10, fnFail}, ret0)},
		{"grow", 1, cat(i32const(4), []byte{0x40, 0x00, 0x1a}, ret0)},
		{"hang", 1, []byte{0x03, 0x40, 0x0c, 0x00, 0x0b, 0x00}},
	}

	var funcs, codes, exports [][]byte
	exports = append(exports, cat(name(memoryExport), []byte{0x02}, uleb(0)))
	for i, d := range defs {
		idx := uint64(2 + i)
		funcs = append(funcs, uleb(d.typ))
		body := cat([]byte{0x00}, d.body, []byte{0x0b})
		codes = append(codes, cat(uleb(uint64(len(body))), body))
		if d.name != "nop" && d.name != f.skipExport {
			exports = append(exports, cat(name(d.name), []byte{0x00}, uleb(idx)))
		}
	}

	memory := vec([]byte{0x00, 0x01})
	globals := vec(cat([]byte{i32, 0x01}, i32const(1024), []byte{0x0b}))
	payload := cat(f.key, f.value, []byte(f.msg))
	data := vec(cat([]byte{0x00}, i32const(dataOffset), []byte{0x0b}, uleb(uint64(len(payload))), payload))

	out := cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1, typeSec),
		section(2, imports),
		section(3, vec(funcs...)),
		section(5, memory),
		section(6, globals),
		section(7, vec(exports...)),
		section(10, vec(codes...)),
		section(11, data),
	)
	if f.spec != nil {
		out = append(out, section(0, cat(name(SpecSection), f.spec))...)
	}
	return out
}
