package types

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 规范二进制编码
//
// 同一逻辑值总是编码为相同字节：整数定长大端，长度用最短 uvarint，
// Map 按键全序排列。解码时拒绝任何非规范形式（多余字节、乱序键、
// 非最短长度），因此 Encode(Decode(b)) == b 对所有合法输入成立。

// MaxValueDepth 嵌套深度上限
const MaxValueDepth = 64

var (
	// ErrMalformedEncoding 编码格式错误或非规范
	ErrMalformedEncoding = errors.New("malformed encoding")
)

// EncodeValue 编码 TypedValue
func EncodeValue(v TypedValue) []byte {
	return appendValue(nil, v)
}

// DecodeValue 解码 TypedValue，要求消费全部输入
func DecodeValue(b []byte) (TypedValue, error) {
	d := decoder{buf: b}
	v, err := d.value(0)
	if err != nil {
		return TypedValue{}, err
	}
	if d.pos != len(d.buf) {
		return TypedValue{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedEncoding, len(d.buf)-d.pos)
	}
	return v, nil
}

// EncodeKey 编码账本键
func EncodeKey(k LedgerKey) []byte {
	return appendKey(nil, k)
}

// DecodeKey 解码账本键
func DecodeKey(b []byte) (LedgerKey, error) {
	d := decoder{buf: b}
	k, err := d.key()
	if err != nil {
		return LedgerKey{}, err
	}
	if d.pos != len(d.buf) {
		return LedgerKey{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedEncoding, len(d.buf)-d.pos)
	}
	return k, nil
}

// EncodeEntry 编码账本条目
func EncodeEntry(e *LedgerEntry) []byte {
	b := appendKey(nil, e.Key)
	b = appendValue(b, e.Value)
	b = binary.BigEndian.AppendUint64(b, e.LiveUntil)
	return binary.BigEndian.AppendUint64(b, e.LastModified)
}

// DecodeEntry 解码账本条目
func DecodeEntry(b []byte) (*LedgerEntry, error) {
	d := decoder{buf: b}
	k, err := d.key()
	if err != nil {
		return nil, err
	}
	v, err := d.value(0)
	if err != nil {
		return nil, err
	}
	live, err := d.u64()
	if err != nil {
		return nil, err
	}
	mod, err := d.u64()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedEncoding, len(d.buf)-d.pos)
	}
	return &LedgerEntry{Key: k, Value: v, LiveUntil: live, LastModified: mod}, nil
}

func appendValue(b []byte, v TypedValue) []byte {
	b = append(b, byte(v.kind))
	switch v.kind {
	case KindVoid:
	case KindBool:
		if v.flag {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	case KindU32, KindI32:
		b = binary.BigEndian.AppendUint32(b, uint32(v.lo))
	case KindU64, KindI64:
		b = binary.BigEndian.AppendUint64(b, v.lo)
	case KindU128, KindI128:
		b = binary.BigEndian.AppendUint64(b, v.hi)
		b = binary.BigEndian.AppendUint64(b, v.lo)
	case KindBytes, KindString, KindSymbol:
		b = binary.AppendUvarint(b, uint64(len(v.raw)))
		b = append(b, v.raw...)
	case KindVec:
		b = binary.AppendUvarint(b, uint64(len(v.items)))
		for _, it := range v.items {
			b = appendValue(b, it)
		}
	case KindMap:
		b = binary.AppendUvarint(b, uint64(len(v.pairs)))
		for _, e := range v.pairs {
			b = appendValue(b, e.Key)
			b = appendValue(b, e.Value)
		}
	case KindAddress:
		b = appendAddress(b, v.addr)
	case KindContractInstance:
		b = append(b, v.inst.CodeHash[:]...)
	}
	return b
}

func appendAddress(b []byte, a Address) []byte {
	b = append(b, byte(a.Kind))
	return append(b, a.Hash[:]...)
}

func appendKey(b []byte, k LedgerKey) []byte {
	b = append(b, byte(k.Kind))
	switch k.Kind {
	case EntryAccount:
		b = appendAddress(b, k.Account)
	case EntryContractCode:
		b = append(b, k.CodeHash[:]...)
	case EntryContractData:
		b = appendAddress(b, k.Contract)
		b = append(b, byte(k.Durability))
		b = appendValue(b, k.DataKey)
	}
	return b
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || len(d.buf)-d.pos < n {
		return nil, fmt.Errorf("%w: unexpected end of input at %d", ErrMalformedEncoding, d.pos)
	}
	out := d.buf[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) byte1() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) length() (int, error) {
	n, size := binary.Uvarint(d.buf[d.pos:])
	if size <= 0 {
		return 0, fmt.Errorf("%w: bad length at %d", ErrMalformedEncoding, d.pos)
	}
	if len(binary.AppendUvarint(nil, n)) != size {
		return 0, fmt.Errorf("%w: non-minimal length at %d", ErrMalformedEncoding, d.pos)
	}
	d.pos += size
	if n > uint64(len(d.buf)-d.pos) {
		return 0, fmt.Errorf("%w: length %d exceeds input", ErrMalformedEncoding, n)
	}
	return int(n), nil
}

func (d *decoder) address() (Address, error) {
	var a Address
	k, err := d.byte1()
	if err != nil {
		return a, err
	}
	if AddressKind(k) > AddressContract {
		return a, fmt.Errorf("%w: address kind %d", ErrMalformedEncoding, k)
	}
	a.Kind = AddressKind(k)
	h, err := d.take(AddressHashLength)
	if err != nil {
		return a, err
	}
	copy(a.Hash[:], h)
	return a, nil
}

func (d *decoder) value(depth int) (TypedValue, error) {
	if depth > MaxValueDepth {
		return TypedValue{}, fmt.Errorf("%w: nesting deeper than %d", ErrMalformedEncoding, MaxValueDepth)
	}
	tag, err := d.byte1()
	if err != nil {
		return TypedValue{}, err
	}
	kind := ValueKind(tag)
	if !kind.Valid() {
		return TypedValue{}, fmt.Errorf("%w: unknown value tag %d", ErrMalformedEncoding, tag)
	}
	v := TypedValue{kind: kind}
	switch kind {
	case KindVoid:
	case KindBool:
		b, err := d.byte1()
		if err != nil {
			return v, err
		}
		if b > 1 {
			return v, fmt.Errorf("%w: bool byte %d", ErrMalformedEncoding, b)
		}
		v.flag = b == 1
	case KindU32:
		b, err := d.take(4)
		if err != nil {
			return v, err
		}
		v.lo = uint64(binary.BigEndian.Uint32(b))
	case KindI32:
		b, err := d.take(4)
		if err != nil {
			return v, err
		}
		v.lo = uint64(int64(int32(binary.BigEndian.Uint32(b))))
	case KindU64, KindI64:
		if v.lo, err = d.u64(); err != nil {
			return v, err
		}
	case KindU128, KindI128:
		if v.hi, err = d.u64(); err != nil {
			return v, err
		}
		if v.lo, err = d.u64(); err != nil {
			return v, err
		}
	case KindBytes, KindString, KindSymbol:
		n, err := d.length()
		if err != nil {
			return v, err
		}
		raw, _ := d.take(n)
		v.raw = append([]byte{}, raw...)
		if kind == KindSymbol {
			if err := ValidateSymbol(string(v.raw)); err != nil {
				return v, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
			}
		}
	case KindVec:
		n, err := d.length()
		if err != nil {
			return v, err
		}
		v.items = make([]TypedValue, 0, n)
		for i := 0; i < n; i++ {
			it, err := d.value(depth + 1)
			if err != nil {
				return v, err
			}
			v.items = append(v.items, it)
		}
	case KindMap:
		n, err := d.length()
		if err != nil {
			return v, err
		}
		v.pairs = make([]MapEntry, 0, n)
		for i := 0; i < n; i++ {
			k, err := d.value(depth + 1)
			if err != nil {
				return v, err
			}
			val, err := d.value(depth + 1)
			if err != nil {
				return v, err
			}
			if i > 0 && Compare(v.pairs[i-1].Key, k) >= 0 {
				return v, fmt.Errorf("%w: map keys not strictly ascending", ErrMalformedEncoding)
			}
			v.pairs = append(v.pairs, MapEntry{Key: k, Value: val})
		}
	case KindAddress:
		if v.addr, err = d.address(); err != nil {
			return v, err
		}
	case KindContractInstance:
		h, err := d.take(32)
		if err != nil {
			return v, err
		}
		copy(v.inst.CodeHash[:], h)
	}
	return v, nil
}

func (d *decoder) key() (LedgerKey, error) {
	var k LedgerKey
	tag, err := d.byte1()
	if err != nil {
		return k, err
	}
	k.Kind = EntryKind(tag)
	switch k.Kind {
	case EntryAccount:
		k.Account, err = d.address()
		return k, err
	case EntryContractCode:
		h, err := d.take(32)
		if err != nil {
			return k, err
		}
		copy(k.CodeHash[:], h)
		return k, nil
	case EntryContractData:
		if k.Contract, err = d.address(); err != nil {
			return k, err
		}
		dur, err := d.byte1()
		if err != nil {
			return k, err
		}
		if Durability(dur) > DurabilityTemporary {
			return k, fmt.Errorf("%w: durability %d", ErrMalformedEncoding, dur)
		}
		k.Durability = Durability(dur)
		k.DataKey, err = d.value(0)
		return k, err
	default:
		return k, fmt.Errorf("%w: unknown key kind %d", ErrMalformedEncoding, tag)
	}
}
