package types

import (
	"fmt"
	"math/big"
	"sort"
)

// EntryKind 账本条目种类
type EntryKind uint8

const (
	// EntryAccount 账户条目
	EntryAccount EntryKind = iota
	// EntryContractCode 合约代码条目（按代码哈希内容寻址）
	EntryContractCode
	// EntryContractData 合约数据条目
	EntryContractData
)

// String 返回种类名称
func (k EntryKind) String() string {
	switch k {
	case EntryAccount:
		return "account"
	case EntryContractCode:
		return "contract_code"
	case EntryContractData:
		return "contract_data"
	default:
		return fmt.Sprintf("entry_kind(%d)", uint8(k))
	}
}

// Durability 合约数据的持久性等级
type Durability uint8

const (
	// DurabilityPersistent 持久数据
	DurabilityPersistent Durability = iota
	// DurabilityTemporary 临时数据，超过 LiveUntil 后视为不存在
	DurabilityTemporary
)

// String 返回持久性名称
func (d Durability) String() string {
	switch d {
	case DurabilityPersistent:
		return "persistent"
	case DurabilityTemporary:
		return "temporary"
	default:
		return fmt.Sprintf("durability(%d)", uint8(d))
	}
}

// InstanceKeySymbol 合约实例条目使用的数据键
const InstanceKeySymbol = "__instance"

// LedgerKey 账本条目键（判别联合）
//
// 只有与 Kind 对应的字段有意义：
//   - EntryAccount: Account
//   - EntryContractCode: CodeHash
//   - EntryContractData: Contract + DataKey + Durability
type LedgerKey struct {
	Kind       EntryKind
	Account    Address
	CodeHash   Hash
	Contract   Address
	DataKey    TypedValue
	Durability Durability
}

// AccountKey 账户键
func AccountKey(a Address) LedgerKey {
	return LedgerKey{Kind: EntryAccount, Account: a}
}

// CodeKey 合约代码键
func CodeKey(h Hash) LedgerKey {
	return LedgerKey{Kind: EntryContractCode, CodeHash: h}
}

// DataKey 合约数据键
func DataKey(contract Address, key TypedValue, durability Durability) LedgerKey {
	return LedgerKey{Kind: EntryContractData, Contract: contract, DataKey: key, Durability: durability}
}

// InstanceKey 合约实例条目键
func InstanceKey(contract Address) LedgerKey {
	return DataKey(contract, MustSymbol(InstanceKeySymbol), DurabilityPersistent)
}

// ID 规范编码后的键标识，可作为 map 键
func (k LedgerKey) ID() string {
	return string(EncodeKey(k))
}

// Equal 键相等
func (k LedgerKey) Equal(o LedgerKey) bool {
	return k.ID() == o.ID()
}

// String 日志用
func (k LedgerKey) String() string {
	switch k.Kind {
	case EntryAccount:
		return "account(" + k.Account.String() + ")"
	case EntryContractCode:
		return "code(" + k.CodeHash.Hex() + ")"
	case EntryContractData:
		return fmt.Sprintf("data(%s, %s, %s)", k.Contract, k.DataKey, k.Durability)
	default:
		return k.Kind.String()
	}
}

// LedgerEntry 账本条目
type LedgerEntry struct {
	Key LedgerKey
	// Value 条目载荷：账户为 Map，代码为 Bytes，数据为任意值
	Value TypedValue
	// LiveUntil 存活截止版本，0 表示不过期
	LiveUntil uint64
	// LastModified 最近一次写入时的快照版本
	LastModified uint64
}

// Expired 在给定快照版本下是否已过期
func (e *LedgerEntry) Expired(version uint64) bool {
	return e.LiveUntil != 0 && e.LiveUntil < version
}

// Delta 一次提交中的单条变更，Entry 为 nil 表示删除（墓碑）
type Delta struct {
	Key   LedgerKey
	Entry *LedgerEntry
}

// IsTombstone 是否为删除
func (d Delta) IsTombstone() bool { return d.Entry == nil }

// SortDeltas 按键的规范编码排序，保证提交与持久化顺序确定
func SortDeltas(deltas []Delta) {
	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].Key.ID() < deltas[j].Key.ID()
	})
}

var (
	symBalance = MustSymbol("balance")
	symSeqNum  = MustSymbol("seq_num")
)

// AccountValue 构造账户条目载荷 {balance: i128, seq_num: u64}
func AccountValue(balance *big.Int, seq uint64) (TypedValue, error) {
	b, ok := I128FromBig(balance)
	if !ok {
		return TypedValue{}, fmt.Errorf("balance %s out of i128 range", balance)
	}
	return NewMap([]MapEntry{
		{Key: symBalance, Value: b},
		{Key: symSeqNum, Value: U64(seq)},
	})
}

// AccountBalance 读取账户载荷中的余额与序号
func AccountBalance(v TypedValue) (*big.Int, uint64, bool) {
	b, ok := v.Lookup(symBalance)
	if !ok {
		return nil, 0, false
	}
	n, ok := b.BigInt()
	if !ok {
		return nil, 0, false
	}
	var seq uint64
	if s, ok := v.Lookup(symSeqNum); ok {
		seq, _ = s.AsU64()
	}
	return n, seq, true
}

// Footprint 一次调用被允许访问的条目集合
//
// 同一个键只会出现在一个集合中，读写集合优先。零值可直接使用。
type Footprint struct {
	ro map[string]LedgerKey
	rw map[string]LedgerKey
}

// NewFootprint 由两组键构造足迹
func NewFootprint(readOnly, readWrite []LedgerKey) Footprint {
	var f Footprint
	for _, k := range readOnly {
		f.AddReadOnly(k)
	}
	for _, k := range readWrite {
		f.AddReadWrite(k)
	}
	return f
}

// AddReadOnly 加入只读集合；已在读写集合中的键不变
func (f *Footprint) AddReadOnly(k LedgerKey) {
	id := k.ID()
	if _, ok := f.rw[id]; ok {
		return
	}
	if f.ro == nil {
		f.ro = make(map[string]LedgerKey)
	}
	f.ro[id] = k
}

// AddReadWrite 加入读写集合，并从只读集合移除
func (f *Footprint) AddReadWrite(k LedgerKey) {
	id := k.ID()
	delete(f.ro, id)
	if f.rw == nil {
		f.rw = make(map[string]LedgerKey)
	}
	f.rw[id] = k
}

// CanRead 是否允许读取
func (f Footprint) CanRead(k LedgerKey) bool {
	id := k.ID()
	if _, ok := f.ro[id]; ok {
		return true
	}
	_, ok := f.rw[id]
	return ok
}

// CanWrite 是否允许写入
func (f Footprint) CanWrite(k LedgerKey) bool {
	_, ok := f.rw[k.ID()]
	return ok
}

// ReadOnly 只读集合（按规范编码排序）
func (f Footprint) ReadOnly() []LedgerKey { return sortedKeys(f.ro) }

// ReadWrite 读写集合（按规范编码排序）
func (f Footprint) ReadWrite() []LedgerKey { return sortedKeys(f.rw) }

// Keys 全部键
func (f Footprint) Keys() []LedgerKey {
	return append(f.ReadOnly(), f.ReadWrite()...)
}

// Len 键总数
func (f Footprint) Len() int { return len(f.ro) + len(f.rw) }

// Clone 深拷贝
func (f Footprint) Clone() Footprint {
	return NewFootprint(f.ReadOnly(), f.ReadWrite())
}

// Merge 合并另一个足迹
func (f *Footprint) Merge(o Footprint) {
	for _, k := range o.ReadOnly() {
		f.AddReadOnly(k)
	}
	for _, k := range o.ReadWrite() {
		f.AddReadWrite(k)
	}
}

func sortedKeys(m map[string]LedgerKey) []LedgerKey {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]LedgerKey, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
