package conversion

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind 转换错误分类
type ErrorKind string

const (
	// KindShapeMismatch 表示形状与类型描述不符（类型错误、多余或缺失字段、非法格式）
	KindShapeMismatch ErrorKind = "shape_mismatch"
	// KindOutOfRange 数值超出声明类型的范围
	KindOutOfRange ErrorKind = "out_of_range"
	// KindInvalidAddress 地址字符串未通过严格校验
	KindInvalidAddress ErrorKind = "invalid_address"
)

var (
	// ErrShapeMismatch 形状不匹配
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrOutOfRange 数值越界
	ErrOutOfRange = errors.New("out of range")
	// ErrInvalidAddress 地址非法
	ErrInvalidAddress = errors.New("invalid address")
)

// NoPosition 错误不属于某个位置参数
const NoPosition = -1

// ConversionError 带路径的转换错误
//
// Path 定位到出错的值，例如 "to"、"items[2].owner"；Position 为参数序号，
// 不在参数列表内转换时为 NoPosition。
type ConversionError struct {
	Kind     ErrorKind
	Path     string
	Position int
	Expected string
	Actual   string
	cause    error
}

// Error 实现 error
func (e *ConversionError) Error() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Position != NoPosition {
		fmt.Fprintf(&b, " (argument %d)", e.Position)
	}
	fmt.Fprintf(&b, ": expected %s, got %s", e.Expected, e.Actual)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap 同时暴露分类哨兵错误与底层原因
func (e *ConversionError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindOutOfRange:
		sentinel = ErrOutOfRange
	case KindInvalidAddress:
		sentinel = ErrInvalidAddress
	default:
		sentinel = ErrShapeMismatch
	}
	if e.cause != nil {
		return []error{sentinel, e.cause}
	}
	return []error{sentinel}
}

// AsConversionError 提取 ConversionError
func AsConversionError(err error) (*ConversionError, bool) {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func shapeError(p path, expected string, actual any) *ConversionError {
	return &ConversionError{
		Kind:     KindShapeMismatch,
		Path:     p.String(),
		Position: p.position,
		Expected: expected,
		Actual:   describe(actual),
	}
}

func rangeError(p path, expected string, actual string) *ConversionError {
	return &ConversionError{
		Kind:     KindOutOfRange,
		Path:     p.String(),
		Position: p.position,
		Expected: expected,
		Actual:   actual,
	}
}

// path 转换过程中的当前位置
type path struct {
	position int
	segments []string
}

func rootPath() path { return path{position: NoPosition} }

func argPath(position int, name string) path {
	return path{position: position, segments: []string{name}}
}

func (p path) field(name string) path {
	return p.push("." + name)
}

func (p path) index(i int) path {
	return p.push(fmt.Sprintf("[%d]", i))
}

func (p path) push(seg string) path {
	segs := make([]string, len(p.segments), len(p.segments)+1)
	copy(segs, p.segments)
	return path{position: p.position, segments: append(segs, seg)}
}

func (p path) String() string {
	if len(p.segments) == 0 {
		return "$"
	}
	s := strings.Join(p.segments, "")
	return strings.TrimPrefix(s, ".")
}

// describe 输入值形状的简短描述，用于错误信息
func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return fmt.Sprintf("bool %t", x)
	case string:
		if len(x) > 40 {
			x = x[:37] + "..."
		}
		return fmt.Sprintf("string %q", x)
	case []any:
		return fmt.Sprintf("array of %d", len(x))
	case map[string]any:
		return fmt.Sprintf("object with %d keys", len(x))
	case valueShapeText:
		return string(x)
	default:
		if s, ok := numberString(v); ok {
			return "number " + s
		}
		return fmt.Sprintf("%T", v)
	}
}
