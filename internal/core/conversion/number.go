package conversion

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/weisyn/sandbox/pkg/types"
)

var (
	maxU32  = new(big.Int).SetUint64(math.MaxUint32)
	minI32  = big.NewInt(math.MinInt32)
	maxI32  = big.NewInt(math.MaxInt32)
	maxU64  = new(big.Int).SetUint64(math.MaxUint64)
	minI64  = big.NewInt(math.MinInt64)
	maxI64  = big.NewInt(math.MaxInt64)
	maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
)

// numberString 将各种数值表示转为十进制文本
func numberString(v any) (string, bool) {
	switch x := v.(type) {
	case json.Number:
		return strings.TrimSpace(x.String()), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	default:
		return "", false
	}
}

// isIntegerLiteral 只接受可选负号加十进制数字
func isIntegerLiteral(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// encodeInteger 整数转换
//
// 32 位整数只接受 JSON 数字；64/128 位还接受十进制字符串（JSON 数字无法精确表达大整数）。
func encodeInteger(repr any, kind types.TypeKind, p path) (types.TypedValue, error) {
	allowString := kind != types.TypeU32 && kind != types.TypeI32

	var text string
	if s, ok := repr.(string); ok {
		if !allowString {
			return types.TypedValue{}, shapeError(p, string(kind)+" number", repr)
		}
		text = strings.TrimSpace(s)
	} else if s, ok := numberString(repr); ok {
		text = s
	} else {
		return types.TypedValue{}, shapeError(p, string(kind)+" number", repr)
	}
	if !isIntegerLiteral(text) {
		return types.TypedValue{}, shapeError(p, "integer "+string(kind), repr)
	}
	n, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return types.TypedValue{}, shapeError(p, "integer "+string(kind), repr)
	}

	min, max := integerBounds(kind)
	if n.Cmp(min) < 0 || n.Cmp(max) > 0 {
		return types.TypedValue{}, rangeError(p, string(kind)+" in ["+min.String()+", "+max.String()+"]", text)
	}

	switch kind {
	case types.TypeU32:
		return types.U32(uint32(n.Uint64())), nil
	case types.TypeI32:
		return types.I32(int32(n.Int64())), nil
	case types.TypeU64:
		return types.U64(n.Uint64()), nil
	case types.TypeI64:
		return types.I64(n.Int64()), nil
	case types.TypeU128:
		v, _ := types.U128FromBig(n)
		return v, nil
	default:
		v, _ := types.I128FromBig(n)
		return v, nil
	}
}

func integerBounds(kind types.TypeKind) (*big.Int, *big.Int) {
	zero := new(big.Int)
	switch kind {
	case types.TypeU32:
		return zero, maxU32
	case types.TypeI32:
		return minI32, maxI32
	case types.TypeU64:
		return zero, maxU64
	case types.TypeI64:
		return minI64, maxI64
	case types.TypeU128:
		return zero, maxU128
	default:
		return minI128, maxI128
	}
}

func integerKind(kind types.TypeKind) bool {
	switch kind {
	case types.TypeU32, types.TypeI32, types.TypeU64, types.TypeI64, types.TypeU128, types.TypeI128:
		return true
	}
	return false
}

var typeToValueKind = map[types.TypeKind]types.ValueKind{
	types.TypeVoid:             types.KindVoid,
	types.TypeBool:             types.KindBool,
	types.TypeU32:              types.KindU32,
	types.TypeI32:              types.KindI32,
	types.TypeU64:              types.KindU64,
	types.TypeI64:              types.KindI64,
	types.TypeU128:             types.KindU128,
	types.TypeI128:             types.KindI128,
	types.TypeBytes:            types.KindBytes,
	types.TypeString:           types.KindString,
	types.TypeSymbol:           types.KindSymbol,
	types.TypeAddress:          types.KindAddress,
	types.TypeContractInstance: types.KindContractInstance,
}

// decodeInteger 32/64 位输出为 JSON 数字，128 位输出为十进制字符串
func decodeInteger(v types.TypedValue) any {
	n, _ := v.BigInt()
	switch v.Kind() {
	case types.KindU128, types.KindI128:
		return n.String()
	default:
		return json.Number(n.String())
	}
}
