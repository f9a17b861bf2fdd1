package conversion

import (
	"encoding/json"
	"fmt"

	"github.com/weisyn/sandbox/pkg/types"
)

// ArgCount 返回原始参数的个数，不做类型转换
//
// 参数可以是按位置的数组，也可以是以参数名为键的对象；空输入或 null 视为零个参数。
func ArgCount(raw json.RawMessage) (int, error) {
	repr, err := ParseJSON(raw)
	if err != nil {
		return 0, err
	}
	switch x := repr.(type) {
	case nil:
		return 0, nil
	case []any:
		return len(x), nil
	case map[string]any:
		return len(x), nil
	default:
		return 0, shapeError(path{position: NoPosition, segments: []string{"args"}}, "array or object of arguments", repr)
	}
}

// EncodeArgs 按函数描述转换调用参数
//
// 错误中的 Position 为出错参数的序号，Path 以参数名开头。
// 个数校验由调用方（编排器）先行完成，这里个数不符只作为形状错误返回。
func EncodeArgs(fn *types.FunctionSpec, raw json.RawMessage) ([]types.TypedValue, error) {
	repr, err := ParseJSON(raw)
	if err != nil {
		return nil, err
	}
	return EncodeArgList(fn, repr)
}

// EncodeArgList 与 EncodeArgs 相同，输入为已解析的 JSON 值
func EncodeArgList(fn *types.FunctionSpec, repr any) ([]types.TypedValue, error) {
	var list []any
	switch x := repr.(type) {
	case nil:
	case []any:
		list = x
	case map[string]any:
		byName, err := namedArgs(fn, x)
		if err != nil {
			return nil, err
		}
		list = byName
	default:
		return nil, shapeError(path{position: NoPosition, segments: []string{"args"}}, "array or object of arguments", repr)
	}

	if len(list) != len(fn.Params) {
		return nil, &ConversionError{
			Kind:     KindShapeMismatch,
			Path:     "args",
			Position: NoPosition,
			Expected: fmt.Sprintf("%d arguments for %s", len(fn.Params), fn.Name),
			Actual:   fmt.Sprintf("%d", len(list)),
		}
	}

	out := make([]types.TypedValue, len(list))
	for i, param := range fn.Params {
		v, err := encode(list[i], param.Type, argPath(i, param.Name))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func namedArgs(fn *types.FunctionSpec, obj map[string]any) ([]any, error) {
	known := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		known[p.Name] = true
	}
	for _, name := range sortedNames(obj) {
		if !known[name] {
			return nil, shapeError(path{position: NoPosition, segments: []string{name}}, "no argument named "+name, obj[name])
		}
	}
	list := make([]any, len(fn.Params))
	for i, p := range fn.Params {
		v, ok := obj[p.Name]
		if !ok {
			return nil, &ConversionError{
				Kind:     KindShapeMismatch,
				Path:     p.Name,
				Position: i,
				Expected: "argument " + p.Name + " of type " + p.Type.String(),
				Actual:   "missing",
			}
		}
		list[i] = v
	}
	return list, nil
}

// ArgsFromEncoded 解析规范编码的参数 Vec，并校验与函数描述匹配的位置
//
// 个数不符时原样返回全部参数，交由编排器报告个数错误。
func ArgsFromEncoded(fn *types.FunctionSpec, encoded []byte) ([]types.TypedValue, error) {
	v, err := types.DecodeValue(encoded)
	if err != nil {
		return nil, &ConversionError{
			Kind:     KindShapeMismatch,
			Path:     "args_encoded",
			Position: NoPosition,
			Expected: "canonical encoding of a vec",
			Actual:   "undecodable bytes",
			cause:    err,
		}
	}
	items, ok := v.Items()
	if !ok {
		return nil, shapeError(path{position: NoPosition, segments: []string{"args_encoded"}}, "vec", valueShape(v))
	}
	if len(items) != len(fn.Params) {
		return items, nil
	}
	for i, param := range fn.Params {
		if _, err := decode(items[i], param.Type, argPath(i, param.Name)); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// DecodeResult 按函数返回类型转换结果
func DecodeResult(fn *types.FunctionSpec, v types.TypedValue) (any, error) {
	out, err := decode(v, fn.Returns, path{position: NoPosition, segments: []string{"result"}})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeArgs 参数的 JSON 表示（按位置），用于回显
func DecodeArgs(fn *types.FunctionSpec, args []types.TypedValue) ([]any, error) {
	if len(args) != len(fn.Params) {
		out := make([]any, len(args))
		for i, a := range args {
			out[i] = DecodeTagged(a)
		}
		return out, nil
	}
	out := make([]any, len(args))
	for i, param := range fn.Params {
		d, err := decode(args[i], param.Type, argPath(i, param.Name))
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
