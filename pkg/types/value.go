package types

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// ValueKind TypedValue 的变体标签
//
// 标签的数值顺序即为跨类型比较时的全序，属于编码格式的一部分，不可调整。
type ValueKind uint8

const (
	KindVoid ValueKind = iota
	KindBool
	KindU32
	KindI32
	KindU64
	KindI64
	KindU128
	KindI128
	KindBytes
	KindString
	KindSymbol
	KindVec
	KindMap
	KindAddress
	KindContractInstance
)

var valueKindNames = [...]string{
	KindVoid:             "void",
	KindBool:             "bool",
	KindU32:              "u32",
	KindI32:              "i32",
	KindU64:              "u64",
	KindI64:              "i64",
	KindU128:             "u128",
	KindI128:             "i128",
	KindBytes:            "bytes",
	KindString:           "string",
	KindSymbol:           "symbol",
	KindVec:              "vec",
	KindMap:              "map",
	KindAddress:          "address",
	KindContractInstance: "contract_instance",
}

// String 返回变体名称
func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid 判断标签是否属于封闭变体集合
func (k ValueKind) Valid() bool {
	return k <= KindContractInstance
}

// MaxSymbolLength 符号的最大长度
const MaxSymbolLength = 32

var (
	// ErrDuplicateMapKey Map 中存在重复键
	ErrDuplicateMapKey = errors.New("duplicate map key")
	// ErrInvalidSymbol 符号格式非法
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrValueKind 值类型与访问方式不匹配
	ErrValueKind = errors.New("unexpected value kind")
)

// MapEntry Map 中的一个键值对
type MapEntry struct {
	Key   TypedValue
	Value TypedValue
}

// TypedValue 执行引擎交换的封闭值类型
//
// 零值为 Void。所有构造都通过本包的构造函数完成，
// 以保证 Map 键有序且唯一、Symbol 合法。值一经构造即视为不可变。
type TypedValue struct {
	kind  ValueKind
	flag  bool
	lo    uint64 // U32/U64/U128 低位、I32/I64 的补码、I128 低位
	hi    uint64 // U128/I128 高位
	raw   []byte // Bytes / String / Symbol
	items []TypedValue
	pairs []MapEntry
	addr  Address
	inst  ContractInstance
}

// Void 空值
func Void() TypedValue { return TypedValue{kind: KindVoid} }

// Bool 布尔值
func Bool(v bool) TypedValue { return TypedValue{kind: KindBool, flag: v} }

// U32 无符号32位整数
func U32(v uint32) TypedValue { return TypedValue{kind: KindU32, lo: uint64(v)} }

// I32 有符号32位整数
func I32(v int32) TypedValue { return TypedValue{kind: KindI32, lo: uint64(int64(v))} }

// U64 无符号64位整数
func U64(v uint64) TypedValue { return TypedValue{kind: KindU64, lo: v} }

// I64 有符号64位整数
func I64(v int64) TypedValue { return TypedValue{kind: KindI64, lo: uint64(v)} }

// U128 由高低两个64位组成的无符号128位整数
func U128(hi, lo uint64) TypedValue { return TypedValue{kind: KindU128, hi: hi, lo: lo} }

// I128 由高低两个64位组成的有符号128位整数（二进制补码）
func I128(hi int64, lo uint64) TypedValue {
	return TypedValue{kind: KindI128, hi: uint64(hi), lo: lo}
}

// Bytes 字节串，入参会被复制
func Bytes(b []byte) TypedValue {
	return TypedValue{kind: KindBytes, raw: append([]byte{}, b...)}
}

// String 字符串
func String(s string) TypedValue { return TypedValue{kind: KindString, raw: []byte(s)} }

// Symbol 创建符号值，名称必须为 1..32 个 [A-Za-z0-9_] 字符
func Symbol(s string) (TypedValue, error) {
	if err := ValidateSymbol(s); err != nil {
		return TypedValue{}, err
	}
	return TypedValue{kind: KindSymbol, raw: []byte(s)}, nil
}

// MustSymbol 与 Symbol 相同，非法时 panic，仅用于常量符号
func MustSymbol(s string) TypedValue {
	v, err := Symbol(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateSymbol 校验符号名称
func ValidateSymbol(s string) error {
	if len(s) == 0 || len(s) > MaxSymbolLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSymbol, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		return fmt.Errorf("%w: character %q at %d", ErrInvalidSymbol, c, i)
	}
	return nil
}

// Vec 有序序列，保持插入顺序
func Vec(items ...TypedValue) TypedValue {
	return TypedValue{kind: KindVec, items: append([]TypedValue{}, items...)}
}

// NewMap 创建 Map，键按全序排序，存在重复键时返回错误
func NewMap(entries []MapEntry) (TypedValue, error) {
	pairs := append([]MapEntry{}, entries...)
	sort.SliceStable(pairs, func(i, j int) bool {
		return Compare(pairs[i].Key, pairs[j].Key) < 0
	})
	for i := 1; i < len(pairs); i++ {
		if Compare(pairs[i-1].Key, pairs[i].Key) == 0 {
			return TypedValue{}, fmt.Errorf("%w: %s", ErrDuplicateMapKey, pairs[i].Key)
		}
	}
	return TypedValue{kind: KindMap, pairs: pairs}, nil
}

// MustMap 与 NewMap 相同，重复键时 panic
func MustMap(entries ...MapEntry) TypedValue {
	v, err := NewMap(entries)
	if err != nil {
		panic(err)
	}
	return v
}

// AddressValue 地址值
func AddressValue(a Address) TypedValue { return TypedValue{kind: KindAddress, addr: a} }

// InstanceValue 合约实例引用
func InstanceValue(inst ContractInstance) TypedValue {
	return TypedValue{kind: KindContractInstance, inst: inst}
}

// U128FromBig 由 big.Int 构造 U128，超出范围返回 false
func U128FromBig(n *big.Int) (TypedValue, bool) {
	if n.Sign() < 0 || n.BitLen() > 128 {
		return TypedValue{}, false
	}
	hi, lo := splitBig(n)
	return U128(hi, lo), true
}

// I128FromBig 由 big.Int 构造 I128，超出范围返回 false
func I128FromBig(n *big.Int) (TypedValue, bool) {
	if n.Cmp(minI128) < 0 || n.Cmp(maxI128) > 0 {
		return TypedValue{}, false
	}
	m := new(big.Int).Set(n)
	if m.Sign() < 0 {
		m.Add(m, two128)
	}
	hi, lo := splitBig(m)
	return TypedValue{kind: KindI128, hi: hi, lo: lo}, true
}

// I128FromInt64 便捷构造
func I128FromInt64(v int64) TypedValue {
	hi := int64(0)
	if v < 0 {
		hi = -1
	}
	return I128(hi, uint64(v))
}

var (
	two64   = new(big.Int).Lsh(big.NewInt(1), 64)
	two128  = new(big.Int).Lsh(big.NewInt(1), 128)
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

func splitBig(n *big.Int) (uint64, uint64) {
	lo := new(big.Int).And(n, new(big.Int).Sub(two64, big.NewInt(1)))
	hi := new(big.Int).Rsh(n, 64)
	return hi.Uint64(), lo.Uint64()
}

// Kind 返回变体标签
func (v TypedValue) Kind() ValueKind { return v.kind }

// IsVoid 是否为空值
func (v TypedValue) IsVoid() bool { return v.kind == KindVoid }

// AsBool 读取布尔值
func (v TypedValue) AsBool() (bool, bool) { return v.flag, v.kind == KindBool }

// AsU32 读取 U32
func (v TypedValue) AsU32() (uint32, bool) { return uint32(v.lo), v.kind == KindU32 }

// AsI32 读取 I32
func (v TypedValue) AsI32() (int32, bool) { return int32(int64(v.lo)), v.kind == KindI32 }

// AsU64 读取 U64
func (v TypedValue) AsU64() (uint64, bool) { return v.lo, v.kind == KindU64 }

// AsI64 读取 I64
func (v TypedValue) AsI64() (int64, bool) { return int64(v.lo), v.kind == KindI64 }

// Parts128 读取 128 位整数的高低位
func (v TypedValue) Parts128() (hi, lo uint64, ok bool) {
	return v.hi, v.lo, v.kind == KindU128 || v.kind == KindI128
}

// BigInt 以 big.Int 形式读取任意整数变体
func (v TypedValue) BigInt() (*big.Int, bool) {
	switch v.kind {
	case KindU32, KindU64:
		return new(big.Int).SetUint64(v.lo), true
	case KindI32, KindI64:
		return big.NewInt(int64(v.lo)), true
	case KindU128, KindI128:
		n := new(big.Int).Lsh(new(big.Int).SetUint64(v.hi), 64)
		n.Or(n, new(big.Int).SetUint64(v.lo))
		if v.kind == KindI128 && int64(v.hi) < 0 {
			n.Sub(n, two128)
		}
		return n, true
	default:
		return nil, false
	}
}

// AsBytes 读取字节串（返回副本）
func (v TypedValue) AsBytes() ([]byte, bool) {
	return append([]byte{}, v.raw...), v.kind == KindBytes
}

// AsString 读取字符串
func (v TypedValue) AsString() (string, bool) { return string(v.raw), v.kind == KindString }

// AsSymbol 读取符号
func (v TypedValue) AsSymbol() (string, bool) { return string(v.raw), v.kind == KindSymbol }

// Items 读取序列元素
func (v TypedValue) Items() ([]TypedValue, bool) {
	return append([]TypedValue{}, v.items...), v.kind == KindVec
}

// Entries 读取 Map 条目（按键有序）
func (v TypedValue) Entries() ([]MapEntry, bool) {
	return append([]MapEntry{}, v.pairs...), v.kind == KindMap
}

// Lookup 在 Map 中按键查找
func (v TypedValue) Lookup(key TypedValue) (TypedValue, bool) {
	if v.kind != KindMap {
		return TypedValue{}, false
	}
	i := sort.Search(len(v.pairs), func(i int) bool {
		return Compare(v.pairs[i].Key, key) >= 0
	})
	if i < len(v.pairs) && Compare(v.pairs[i].Key, key) == 0 {
		return v.pairs[i].Value, true
	}
	return TypedValue{}, false
}

// AsAddress 读取地址
func (v TypedValue) AsAddress() (Address, bool) { return v.addr, v.kind == KindAddress }

// AsInstance 读取合约实例引用
func (v TypedValue) AsInstance() (ContractInstance, bool) {
	return v.inst, v.kind == KindContractInstance
}

// Equal 逻辑相等
func (v TypedValue) Equal(o TypedValue) bool { return Compare(v, o) == 0 }

// String 调试输出
func (v TypedValue) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindBool:
		return fmt.Sprintf("%t", v.flag)
	case KindU32, KindI32, KindU64, KindI64, KindU128, KindI128:
		n, _ := v.BigInt()
		return fmt.Sprintf("%s:%s", n.String(), v.kind)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.raw)
	case KindString:
		return fmt.Sprintf("%q", string(v.raw))
	case KindSymbol:
		return ":" + string(v.raw)
	case KindVec:
		s := "["
		for i, it := range v.items {
			if i > 0 {
				s += ", "
			}
			s += it.String()
		}
		return s + "]"
	case KindMap:
		s := "{"
		for i, e := range v.pairs {
			if i > 0 {
				s += ", "
			}
			s += e.Key.String() + ": " + e.Value.String()
		}
		return s + "}"
	case KindAddress:
		return v.addr.String()
	case KindContractInstance:
		return "instance(" + v.inst.CodeHash.Hex() + ")"
	default:
		return v.kind.String()
	}
}

// Compare TypedValue 上的确定性全序
//
// 先比较变体标签，再比较载荷：整数按数值，字节类按字典序，
// 序列逐元素，Map 逐条目（先键后值），地址按 (种类, 哈希)。
func Compare(a, b TypedValue) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindVoid:
		return 0
	case KindBool:
		switch {
		case a.flag == b.flag:
			return 0
		case !a.flag:
			return -1
		default:
			return 1
		}
	case KindU32, KindU64:
		return cmpUint(a.lo, b.lo)
	case KindI32, KindI64:
		return cmpInt(int64(a.lo), int64(b.lo))
	case KindU128:
		if c := cmpUint(a.hi, b.hi); c != 0 {
			return c
		}
		return cmpUint(a.lo, b.lo)
	case KindI128:
		if c := cmpInt(int64(a.hi), int64(b.hi)); c != 0 {
			return c
		}
		return cmpUint(a.lo, b.lo)
	case KindBytes, KindString, KindSymbol:
		return bytes.Compare(a.raw, b.raw)
	case KindVec:
		for i := 0; i < len(a.items) && i < len(b.items); i++ {
			if c := Compare(a.items[i], b.items[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(a.items)), int64(len(b.items)))
	case KindMap:
		for i := 0; i < len(a.pairs) && i < len(b.pairs); i++ {
			if c := Compare(a.pairs[i].Key, b.pairs[i].Key); c != 0 {
				return c
			}
			if c := Compare(a.pairs[i].Value, b.pairs[i].Value); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(a.pairs)), int64(len(b.pairs)))
	case KindAddress:
		return a.addr.Compare(b.addr)
	case KindContractInstance:
		return bytes.Compare(a.inst.CodeHash[:], b.inst.CodeHash[:])
	}
	return 0
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
