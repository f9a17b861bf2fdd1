// Package conversion 在 JSON 表示与 TypedValue 之间双向转换
//
// 转换由类型描述符驱动，纯函数、无 I/O。输入的 JSON 应以 UseNumber 解码，
// 否则大整数会在 float64 中丢失精度。出错时返回 *ConversionError，
// 其中包含出错值的路径、参数位置以及期望与实际的形状。
package conversion

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/pkg/types"
)

// Encode 将 JSON 表示转换为符合 desc 的 TypedValue
func Encode(repr any, desc types.TypeDescriptor) (types.TypedValue, error) {
	return encode(repr, desc, rootPath())
}

// EncodeJSON 解析原始 JSON 后转换
func EncodeJSON(raw []byte, desc types.TypeDescriptor) (types.TypedValue, error) {
	repr, err := ParseJSON(raw)
	if err != nil {
		return types.TypedValue{}, err
	}
	return Encode(repr, desc)
}

// ParseJSON 以 UseNumber 解析 JSON，空输入视为 null
func ParseJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, &ConversionError{
			Kind:     KindShapeMismatch,
			Path:     "$",
			Position: NoPosition,
			Expected: "valid JSON",
			Actual:   "malformed input",
			cause:    err,
		}
	}
	if decoder.More() {
		return nil, &ConversionError{
			Kind:     KindShapeMismatch,
			Path:     "$",
			Position: NoPosition,
			Expected: "a single JSON value",
			Actual:   "trailing data",
		}
	}
	return v, nil
}

func encode(repr any, desc types.TypeDescriptor, p path) (types.TypedValue, error) {
	switch desc.Kind {
	case types.TypeVoid:
		if repr != nil {
			return types.TypedValue{}, shapeError(p, "null", repr)
		}
		return types.Void(), nil

	case types.TypeBool:
		b, ok := repr.(bool)
		if !ok {
			return types.TypedValue{}, shapeError(p, "bool", repr)
		}
		return types.Bool(b), nil

	case types.TypeU32, types.TypeI32, types.TypeU64, types.TypeI64, types.TypeU128, types.TypeI128:
		return encodeInteger(repr, desc.Kind, p)

	case types.TypeBytes:
		s, ok := repr.(string)
		if !ok {
			return types.TypedValue{}, shapeError(p, "hex string", repr)
		}
		b, err := decodeHex(s)
		if err != nil {
			return types.TypedValue{}, shapeError(p, "hex string", repr)
		}
		return types.Bytes(b), nil

	case types.TypeString:
		s, ok := repr.(string)
		if !ok {
			return types.TypedValue{}, shapeError(p, "string", repr)
		}
		return types.String(s), nil

	case types.TypeSymbol:
		s, ok := repr.(string)
		if !ok {
			return types.TypedValue{}, shapeError(p, "symbol string", repr)
		}
		v, err := types.Symbol(s)
		if err != nil {
			return types.TypedValue{}, shapeError(p, "symbol of [A-Za-z0-9_]{1,32}", repr)
		}
		return v, nil

	case types.TypeAddress:
		s, ok := repr.(string)
		if !ok {
			return types.TypedValue{}, shapeError(p, "address string", repr)
		}
		a, err := address.Parse(strings.TrimSpace(s))
		if err != nil {
			return types.TypedValue{}, &ConversionError{
				Kind:     KindInvalidAddress,
				Path:     p.String(),
				Position: p.position,
				Expected: "Base58Check address",
				Actual:   describe(repr),
				cause:    err,
			}
		}
		return types.AddressValue(a), nil

	case types.TypeContractInstance:
		s, ok := repr.(string)
		if !ok {
			return types.TypedValue{}, shapeError(p, "code hash hex string", repr)
		}
		h, err := types.ParseHash(s)
		if err != nil {
			return types.TypedValue{}, shapeError(p, "32-byte code hash hex", repr)
		}
		return types.InstanceValue(types.ContractInstance{CodeHash: h}), nil

	case types.TypeVec:
		arr, ok := repr.([]any)
		if !ok {
			return types.TypedValue{}, shapeError(p, "array", repr)
		}
		items := make([]types.TypedValue, len(arr))
		for i, it := range arr {
			v, err := encode(it, *desc.Element, p.index(i))
			if err != nil {
				return types.TypedValue{}, err
			}
			items[i] = v
		}
		return types.Vec(items...), nil

	case types.TypeMap:
		return encodeMap(repr, desc, p)

	case types.TypeOption:
		if repr == nil {
			return types.Void(), nil
		}
		return encode(repr, *desc.Element, p)

	case types.TypeStruct:
		return encodeStruct(repr, desc, p)

	case types.TypeEnum:
		return encodeEnum(repr, desc, p)

	default:
		return types.TypedValue{}, shapeError(p, "known type, got descriptor "+string(desc.Kind), repr)
	}
}

// stringKeyed Map 的键为 string/symbol 时使用 JSON 对象表示
func stringKeyed(desc types.TypeDescriptor) bool {
	return desc.Key != nil && (desc.Key.Kind == types.TypeString || desc.Key.Kind == types.TypeSymbol)
}

func encodeMap(repr any, desc types.TypeDescriptor, p path) (types.TypedValue, error) {
	var entries []types.MapEntry

	if stringKeyed(desc) {
		obj, ok := repr.(map[string]any)
		if !ok {
			return types.TypedValue{}, shapeError(p, "object", repr)
		}
		for _, name := range sortedNames(obj) {
			k, err := encode(name, *desc.Key, p.field(name))
			if err != nil {
				return types.TypedValue{}, err
			}
			v, err := encode(obj[name], *desc.Value, p.field(name))
			if err != nil {
				return types.TypedValue{}, err
			}
			entries = append(entries, types.MapEntry{Key: k, Value: v})
		}
	} else {
		arr, ok := repr.([]any)
		if !ok {
			return types.TypedValue{}, shapeError(p, "array of [key, value] pairs", repr)
		}
		for i, it := range arr {
			pair, ok := it.([]any)
			if !ok || len(pair) != 2 {
				return types.TypedValue{}, shapeError(p.index(i), "[key, value] pair", it)
			}
			k, err := encode(pair[0], *desc.Key, p.index(i).index(0))
			if err != nil {
				return types.TypedValue{}, err
			}
			v, err := encode(pair[1], *desc.Value, p.index(i).index(1))
			if err != nil {
				return types.TypedValue{}, err
			}
			entries = append(entries, types.MapEntry{Key: k, Value: v})
		}
	}

	m, err := types.NewMap(entries)
	if err != nil {
		return types.TypedValue{}, shapeError(p, "map with unique keys", repr)
	}
	return m, nil
}

func encodeStruct(repr any, desc types.TypeDescriptor, p path) (types.TypedValue, error) {
	obj, ok := repr.(map[string]any)
	if !ok {
		return types.TypedValue{}, shapeError(p, "object "+desc.String(), repr)
	}
	declared := make(map[string]bool, len(desc.Fields))
	for _, f := range desc.Fields {
		declared[f.Name] = true
	}
	for _, name := range sortedNames(obj) {
		if !declared[name] {
			return types.TypedValue{}, shapeError(p.field(name), "no field (not declared in "+desc.String()+")", obj[name])
		}
	}

	entries := make([]types.MapEntry, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		raw, present := obj[f.Name]
		if !present {
			return types.TypedValue{}, &ConversionError{
				Kind:     KindShapeMismatch,
				Path:     p.field(f.Name).String(),
				Position: p.position,
				Expected: "field " + f.Name + " of type " + f.Type.String(),
				Actual:   "missing",
			}
		}
		v, err := encode(raw, f.Type, p.field(f.Name))
		if err != nil {
			return types.TypedValue{}, err
		}
		entries = append(entries, types.MapEntry{Key: types.MustSymbol(f.Name), Value: v})
	}
	m, err := types.NewMap(entries)
	if err != nil {
		return types.TypedValue{}, shapeError(p, "object "+desc.String(), repr)
	}
	return m, nil
}

// encodeEnum 无载荷分支写作 "Case"，有载荷分支写作 {"Case": payload}，
// 多个载荷时 payload 为数组。TypedValue 形式为 Vec(Symbol(case), payload...)。
func encodeEnum(repr any, desc types.TypeDescriptor, p path) (types.TypedValue, error) {
	var (
		name    string
		payload any
		hasBody bool
	)
	switch x := repr.(type) {
	case string:
		name = x
	case map[string]any:
		if len(x) != 1 {
			return types.TypedValue{}, shapeError(p, "single-key object naming a case of "+desc.String(), repr)
		}
		for k, v := range x {
			name, payload, hasBody = k, v, true
		}
	default:
		return types.TypedValue{}, shapeError(p, "case of "+desc.String(), repr)
	}

	var c *types.EnumCase
	for i := range desc.Cases {
		if desc.Cases[i].Name == name {
			c = &desc.Cases[i]
			break
		}
	}
	if c == nil {
		return types.TypedValue{}, shapeError(p, "case of "+desc.String(), repr)
	}

	cp := p.field(name)
	items := []types.TypedValue{types.MustSymbol(c.Name)}
	switch {
	case len(c.Payload) == 0:
		if hasBody && payload != nil {
			return types.TypedValue{}, shapeError(cp, "no payload", payload)
		}
	case !hasBody:
		return types.TypedValue{}, shapeError(p, "object {\""+name+"\": payload}", repr)
	case len(c.Payload) == 1:
		v, err := encode(payload, c.Payload[0], cp)
		if err != nil {
			return types.TypedValue{}, err
		}
		items = append(items, v)
	default:
		arr, ok := payload.([]any)
		if !ok || len(arr) != len(c.Payload) {
			return types.TypedValue{}, shapeError(cp, "array of "+strconv.Itoa(len(c.Payload))+" payload values", payload)
		}
		for i, pd := range c.Payload {
			v, err := encode(arr[i], pd, cp.index(i))
			if err != nil {
				return types.TypedValue{}, err
			}
			items = append(items, v)
		}
	}
	return types.Vec(items...), nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

func sortedNames(obj map[string]any) []string {
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
