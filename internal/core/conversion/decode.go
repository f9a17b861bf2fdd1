package conversion

import (
	"encoding/hex"
	"strconv"

	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/pkg/types"
)

// Decode 将 TypedValue 按 desc 转换为 JSON 表示
//
// 输出形状与 Encode 接受的规范形状一致：32/64 位整数为 json.Number，
// 128 位整数为十进制字符串，字节为不带前缀的小写十六进制。
// 值与描述不符时返回 ShapeMismatch，可用于校验引擎返回值。
func Decode(v types.TypedValue, desc types.TypeDescriptor) (any, error) {
	return decode(v, desc, rootPath())
}

// Conform 校验 TypedValue 是否符合 desc
func Conform(v types.TypedValue, desc types.TypeDescriptor) error {
	_, err := Decode(v, desc)
	return err
}

func decode(v types.TypedValue, desc types.TypeDescriptor, p path) (any, error) {
	if want, scalar := typeToValueKind[desc.Kind]; scalar {
		if v.Kind() != want {
			return nil, shapeError(p, string(desc.Kind), valueShape(v))
		}
		return decodeScalar(v), nil
	}

	switch desc.Kind {
	case types.TypeVec:
		items, ok := v.Items()
		if !ok {
			return nil, shapeError(p, desc.String(), valueShape(v))
		}
		out := make([]any, len(items))
		for i, it := range items {
			d, err := decode(it, *desc.Element, p.index(i))
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil

	case types.TypeMap:
		entries, ok := v.Entries()
		if !ok {
			return nil, shapeError(p, desc.String(), valueShape(v))
		}
		if stringKeyed(desc) {
			obj := make(map[string]any, len(entries))
			for _, e := range entries {
				k, err := decode(e.Key, *desc.Key, p)
				if err != nil {
					return nil, err
				}
				name := k.(string)
				d, err := decode(e.Value, *desc.Value, p.field(name))
				if err != nil {
					return nil, err
				}
				obj[name] = d
			}
			return obj, nil
		}
		out := make([]any, len(entries))
		for i, e := range entries {
			k, err := decode(e.Key, *desc.Key, p.index(i).index(0))
			if err != nil {
				return nil, err
			}
			d, err := decode(e.Value, *desc.Value, p.index(i).index(1))
			if err != nil {
				return nil, err
			}
			out[i] = []any{k, d}
		}
		return out, nil

	case types.TypeOption:
		if v.IsVoid() {
			return nil, nil
		}
		return decode(v, *desc.Element, p)

	case types.TypeStruct:
		entries, ok := v.Entries()
		if !ok || len(entries) != len(desc.Fields) {
			return nil, shapeError(p, desc.String(), valueShape(v))
		}
		obj := make(map[string]any, len(desc.Fields))
		for _, f := range desc.Fields {
			fv, ok := v.Lookup(types.MustSymbol(f.Name))
			if !ok {
				return nil, shapeError(p.field(f.Name), "field "+f.Name, valueShapeText("missing"))
			}
			d, err := decode(fv, f.Type, p.field(f.Name))
			if err != nil {
				return nil, err
			}
			obj[f.Name] = d
		}
		return obj, nil

	case types.TypeEnum:
		return decodeEnum(v, desc, p)

	default:
		return nil, shapeError(p, "known type, got descriptor "+string(desc.Kind), valueShape(v))
	}
}

func decodeEnum(v types.TypedValue, desc types.TypeDescriptor, p path) (any, error) {
	items, ok := v.Items()
	if !ok || len(items) == 0 {
		return nil, shapeError(p, desc.String(), valueShape(v))
	}
	name, ok := items[0].AsSymbol()
	if !ok {
		return nil, shapeError(p.index(0), "case symbol", valueShape(items[0]))
	}
	for _, c := range desc.Cases {
		if c.Name != name {
			continue
		}
		payload := items[1:]
		if len(payload) != len(c.Payload) {
			return nil, shapeError(p.field(name), strconv.Itoa(len(c.Payload))+" payload values", valueShape(v))
		}
		switch len(payload) {
		case 0:
			return name, nil
		case 1:
			d, err := decode(payload[0], c.Payload[0], p.field(name))
			if err != nil {
				return nil, err
			}
			return map[string]any{name: d}, nil
		default:
			out := make([]any, len(payload))
			for i, pv := range payload {
				d, err := decode(pv, c.Payload[i], p.field(name).index(i))
				if err != nil {
					return nil, err
				}
				out[i] = d
			}
			return map[string]any{name: out}, nil
		}
	}
	return nil, shapeError(p, "case of "+desc.String(), valueShapeText("unknown case "+name))
}

// decodeScalar 标量的规范 JSON 表示
func decodeScalar(v types.TypedValue) any {
	switch v.Kind() {
	case types.KindVoid:
		return nil
	case types.KindBool:
		b, _ := v.AsBool()
		return b
	case types.KindU32, types.KindI32, types.KindU64, types.KindI64, types.KindU128, types.KindI128:
		return decodeInteger(v)
	case types.KindBytes:
		b, _ := v.AsBytes()
		return hex.EncodeToString(b)
	case types.KindString:
		s, _ := v.AsString()
		return s
	case types.KindSymbol:
		s, _ := v.AsSymbol()
		return s
	case types.KindAddress:
		a, _ := v.AsAddress()
		return address.Encode(a)
	case types.KindContractInstance:
		inst, _ := v.AsInstance()
		return inst.CodeHash.Hex()
	default:
		return nil
	}
}

// valueShape 用于错误信息的值描述
type valueShapeText string

func valueShape(v types.TypedValue) any {
	return valueShapeText(v.Kind().String() + " value")
}
