package conversion

import (
	"github.com/weisyn/sandbox/pkg/types"
)

// EncodeTagged 解析自描述的 JSON 值
//
// 形如 {"u32": 5}、{"vec": [{"symbol": "a"}]}、{"map": [[{"u32": 1}, {"bool": true}]]}，
// 用于没有类型描述可依据的场合（账本数据键、readEntry 输出、诊断事件）。
func EncodeTagged(repr any) (types.TypedValue, error) {
	return encodeTagged(repr, rootPath())
}

// EncodeTaggedJSON 解析原始 JSON 后按自描述形式转换
func EncodeTaggedJSON(raw []byte) (types.TypedValue, error) {
	repr, err := ParseJSON(raw)
	if err != nil {
		return types.TypedValue{}, err
	}
	return EncodeTagged(repr)
}

var kindByName = func() map[string]types.TypeKind {
	m := make(map[string]types.TypeKind, len(typeToValueKind))
	for tk, vk := range typeToValueKind {
		m[vk.String()] = tk
	}
	return m
}()

func encodeTagged(repr any, p path) (types.TypedValue, error) {
	obj, ok := repr.(map[string]any)
	if !ok || len(obj) != 1 {
		return types.TypedValue{}, shapeError(p, `single-key object such as {"u32": 1}`, repr)
	}
	var tag string
	var payload any
	for k, v := range obj {
		tag, payload = k, v
	}
	tp := p.field(tag)

	if scalar, ok := kindByName[tag]; ok {
		return encode(payload, types.Scalar(scalar), tp)
	}

	switch tag {
	case types.KindVec.String():
		arr, ok := payload.([]any)
		if !ok {
			return types.TypedValue{}, shapeError(tp, "array", payload)
		}
		items := make([]types.TypedValue, len(arr))
		for i, it := range arr {
			v, err := encodeTagged(it, tp.index(i))
			if err != nil {
				return types.TypedValue{}, err
			}
			items[i] = v
		}
		return types.Vec(items...), nil

	case types.KindMap.String():
		arr, ok := payload.([]any)
		if !ok {
			return types.TypedValue{}, shapeError(tp, "array of [key, value] pairs", payload)
		}
		entries := make([]types.MapEntry, len(arr))
		for i, it := range arr {
			pair, ok := it.([]any)
			if !ok || len(pair) != 2 {
				return types.TypedValue{}, shapeError(tp.index(i), "[key, value] pair", it)
			}
			k, err := encodeTagged(pair[0], tp.index(i).index(0))
			if err != nil {
				return types.TypedValue{}, err
			}
			v, err := encodeTagged(pair[1], tp.index(i).index(1))
			if err != nil {
				return types.TypedValue{}, err
			}
			entries[i] = types.MapEntry{Key: k, Value: v}
		}
		m, err := types.NewMap(entries)
		if err != nil {
			return types.TypedValue{}, shapeError(tp, "map with unique keys", payload)
		}
		return m, nil

	default:
		return types.TypedValue{}, shapeError(p, "known value kind", valueShapeText("tag "+tag))
	}
}

// DecodeTagged 任意 TypedValue 的自描述 JSON 形式，EncodeTagged 的逆
func DecodeTagged(v types.TypedValue) any {
	switch v.Kind() {
	case types.KindVec:
		items, _ := v.Items()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = DecodeTagged(it)
		}
		return map[string]any{types.KindVec.String(): out}
	case types.KindMap:
		entries, _ := v.Entries()
		out := make([]any, len(entries))
		for i, e := range entries {
			out[i] = []any{DecodeTagged(e.Key), DecodeTagged(e.Value)}
		}
		return map[string]any{types.KindMap.String(): out}
	default:
		return map[string]any{v.Kind().String(): decodeScalar(v)}
	}
}
