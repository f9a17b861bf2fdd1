package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypeKind 类型描述符种类
type TypeKind string

const (
	TypeVoid             TypeKind = "void"
	TypeBool             TypeKind = "bool"
	TypeU32              TypeKind = "u32"
	TypeI32              TypeKind = "i32"
	TypeU64              TypeKind = "u64"
	TypeI64              TypeKind = "i64"
	TypeU128             TypeKind = "u128"
	TypeI128             TypeKind = "i128"
	TypeBytes            TypeKind = "bytes"
	TypeString           TypeKind = "string"
	TypeSymbol           TypeKind = "symbol"
	TypeAddress          TypeKind = "address"
	TypeContractInstance TypeKind = "contract_instance"
	TypeVec              TypeKind = "vec"
	TypeMap              TypeKind = "map"
	TypeOption           TypeKind = "option"
	TypeStruct           TypeKind = "struct"
	TypeEnum             TypeKind = "enum"
)

// ErrInvalidContractSpec 合约描述非法（解析失败即拒绝合约）
var ErrInvalidContractSpec = errors.New("invalid contract spec")

// TypeDescriptor 参数/返回值的类型描述符
type TypeDescriptor struct {
	Kind    TypeKind          `json:"type"`
	Element *TypeDescriptor   `json:"element,omitempty"` // vec / option
	Key     *TypeDescriptor   `json:"key,omitempty"`     // map
	Value   *TypeDescriptor   `json:"value,omitempty"`   // map
	Name    string            `json:"name,omitempty"`    // struct / enum
	Fields  []FieldDescriptor `json:"fields,omitempty"`  // struct
	Cases   []EnumCase        `json:"cases,omitempty"`   // enum
}

// FieldDescriptor 结构体字段
type FieldDescriptor struct {
	Name string         `json:"name"`
	Type TypeDescriptor `json:"type"`
}

// EnumCase 枚举分支，Payload 为空表示无载荷分支
type EnumCase struct {
	Name    string           `json:"name"`
	Payload []TypeDescriptor `json:"payload,omitempty"`
}

// FunctionParam 函数参数
type FunctionParam struct {
	Name string         `json:"name"`
	Type TypeDescriptor `json:"type"`
}

// FunctionSpec 合约函数描述
//
// 每次加载合约时由字节码的描述段派生一次，之后不可变。
type FunctionSpec struct {
	Name     string          `json:"name"`
	Params   []FunctionParam `json:"params"`
	Returns  TypeDescriptor  `json:"returns"`
	ReadOnly bool            `json:"read_only,omitempty"`
	Doc      string          `json:"doc,omitempty"`
}

// ContractSpec 合约全部函数描述
type ContractSpec struct {
	Functions []FunctionSpec `json:"functions"`
}

// Function 按名称查找函数
func (s *ContractSpec) Function(name string) (*FunctionSpec, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Functions {
		if s.Functions[i].Name == name {
			return &s.Functions[i], true
		}
	}
	return nil, false
}

// ParseContractSpec 解析并校验 JSON 形式的合约描述
func ParseContractSpec(data []byte) (*ContractSpec, error) {
	var spec ContractSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContractSpec, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate 校验合约描述，任何不确定的类型都视为错误
func (s *ContractSpec) Validate() error {
	seen := make(map[string]bool, len(s.Functions))
	for i := range s.Functions {
		fn := &s.Functions[i]
		if err := ValidateSymbol(fn.Name); err != nil {
			return fmt.Errorf("%w: function %q: %v", ErrInvalidContractSpec, fn.Name, err)
		}
		if seen[fn.Name] {
			return fmt.Errorf("%w: duplicate function %q", ErrInvalidContractSpec, fn.Name)
		}
		seen[fn.Name] = true
		params := make(map[string]bool, len(fn.Params))
		for _, p := range fn.Params {
			if err := ValidateSymbol(p.Name); err != nil {
				return fmt.Errorf("%w: %s.%s: %v", ErrInvalidContractSpec, fn.Name, p.Name, err)
			}
			if params[p.Name] {
				return fmt.Errorf("%w: %s: duplicate param %q", ErrInvalidContractSpec, fn.Name, p.Name)
			}
			params[p.Name] = true
			if err := p.Type.Validate(); err != nil {
				return fmt.Errorf("%w: %s.%s: %v", ErrInvalidContractSpec, fn.Name, p.Name, err)
			}
			if p.Type.Kind == TypeVoid {
				return fmt.Errorf("%w: %s.%s: void parameter", ErrInvalidContractSpec, fn.Name, p.Name)
			}
		}
		if fn.Returns.Kind == "" {
			fn.Returns.Kind = TypeVoid
		}
		if err := fn.Returns.Validate(); err != nil {
			return fmt.Errorf("%w: %s returns: %v", ErrInvalidContractSpec, fn.Name, err)
		}
	}
	return nil
}

// Validate 递归校验类型描述符
func (d TypeDescriptor) Validate() error {
	switch d.Kind {
	case TypeVoid, TypeBool, TypeU32, TypeI32, TypeU64, TypeI64, TypeU128, TypeI128,
		TypeBytes, TypeString, TypeSymbol, TypeAddress, TypeContractInstance:
		return nil
	case TypeVec, TypeOption:
		if d.Element == nil {
			return fmt.Errorf("%s without element type", d.Kind)
		}
		return d.Element.Validate()
	case TypeMap:
		if d.Key == nil || d.Value == nil {
			return fmt.Errorf("map without key/value type")
		}
		if err := d.Key.Validate(); err != nil {
			return err
		}
		return d.Value.Validate()
	case TypeStruct:
		if len(d.Fields) == 0 {
			return fmt.Errorf("struct %q without fields", d.Name)
		}
		names := make(map[string]bool, len(d.Fields))
		for _, f := range d.Fields {
			if err := ValidateSymbol(f.Name); err != nil {
				return fmt.Errorf("struct %q field: %v", d.Name, err)
			}
			if names[f.Name] {
				return fmt.Errorf("struct %q: duplicate field %q", d.Name, f.Name)
			}
			names[f.Name] = true
			if err := f.Type.Validate(); err != nil {
				return err
			}
		}
		return nil
	case TypeEnum:
		if len(d.Cases) == 0 {
			return fmt.Errorf("enum %q without cases", d.Name)
		}
		names := make(map[string]bool, len(d.Cases))
		for _, c := range d.Cases {
			if err := ValidateSymbol(c.Name); err != nil {
				return fmt.Errorf("enum %q case: %v", d.Name, err)
			}
			if names[c.Name] {
				return fmt.Errorf("enum %q: duplicate case %q", d.Name, c.Name)
			}
			names[c.Name] = true
			for _, p := range c.Payload {
				if err := p.Validate(); err != nil {
					return err
				}
			}
		}
		return nil
	case "":
		return fmt.Errorf("missing type kind")
	default:
		return fmt.Errorf("unknown type kind %q", d.Kind)
	}
}

// String 类型描述符的简短形式，用于错误信息
func (d TypeDescriptor) String() string {
	switch d.Kind {
	case TypeVec, TypeOption:
		if d.Element != nil {
			return fmt.Sprintf("%s<%s>", d.Kind, d.Element)
		}
	case TypeMap:
		if d.Key != nil && d.Value != nil {
			return fmt.Sprintf("map<%s,%s>", d.Key, d.Value)
		}
	case TypeStruct, TypeEnum:
		if d.Name != "" {
			return fmt.Sprintf("%s %s", d.Kind, d.Name)
		}
	}
	return string(d.Kind)
}

// Scalar 便捷构造标量描述符
func Scalar(kind TypeKind) TypeDescriptor { return TypeDescriptor{Kind: kind} }

// VecOf 便捷构造序列描述符
func VecOf(elem TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: TypeVec, Element: &elem}
}

// MapOf 便捷构造 Map 描述符
func MapOf(key, value TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: TypeMap, Key: &key, Value: &value}
}

// OptionOf 便捷构造可选描述符
func OptionOf(elem TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: TypeOption, Element: &elem}
}
