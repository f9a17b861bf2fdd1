package conversion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/pkg/types"
)

func transferSpec() *types.FunctionSpec {
	return &types.FunctionSpec{
		Name: "transfer",
		Params: []types.FunctionParam{
			{Name: "from", Type: types.Scalar(types.TypeAddress)},
			{Name: "to", Type: types.Scalar(types.TypeAddress)},
			{Name: "amount", Type: types.Scalar(types.TypeU32)},
		},
		Returns: types.Scalar(types.TypeVoid),
	}
}

// TestNonNumericArgumentReportsPosition "abc" 传给 u32 参数时报告该参数位置
func TestNonNumericArgumentReportsPosition(t *testing.T) {
	raw := json.RawMessage(`["` + testAccount + `", "` + testAccount + `", "abc"]`)
	_, err := EncodeArgs(transferSpec(), raw)
	require.ErrorIs(t, err, ErrShapeMismatch)

	ce, ok := AsConversionError(err)
	require.True(t, ok)
	assert.Equal(t, 2, ce.Position)
	assert.Equal(t, "amount", ce.Path)
	assert.Equal(t, `string "abc"`, ce.Actual)
	assert.Contains(t, err.Error(), "(argument 2)")
}

func TestEncodeArgsPositionalAndNamed(t *testing.T) {
	positional, err := EncodeArgs(transferSpec(), json.RawMessage(`["`+testAccount+`", "`+testAccount+`", 30]`))
	require.NoError(t, err)
	require.Len(t, positional, 3)

	named, err := EncodeArgs(transferSpec(), json.RawMessage(`{"amount": 30, "to": "`+testAccount+`", "from": "`+testAccount+`"}`))
	require.NoError(t, err)
	for i := range positional {
		assert.True(t, positional[i].Equal(named[i]))
	}

	decoded, err := DecodeArgs(transferSpec(), named)
	require.NoError(t, err)
	assert.Equal(t, json.Number("30"), decoded[2])
}

func TestEncodeArgsNamedErrors(t *testing.T) {
	_, err := EncodeArgs(transferSpec(), json.RawMessage(`{"amount": 30, "to": "`+testAccount+`"}`))
	require.ErrorIs(t, err, ErrShapeMismatch)
	ce, _ := AsConversionError(err)
	assert.Equal(t, "from", ce.Path)
	assert.Equal(t, 0, ce.Position)

	_, err = EncodeArgs(transferSpec(), json.RawMessage(`{"amount": 30, "memo": "x", "to": "`+testAccount+`", "from": "`+testAccount+`"}`))
	require.ErrorIs(t, err, ErrShapeMismatch)
	ce, _ = AsConversionError(err)
	assert.Equal(t, "memo", ce.Path)
}

func TestArgCount(t *testing.T) {
	for raw, want := range map[string]int{
		``:              0,
		`null`:          0,
		`[1, 2]`:        2,
		`{"a": 1}`:      1,
		`[[1], [2], 3]`: 3,
	} {
		n, err := ArgCount(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, n, raw)
	}
	_, err := ArgCount(json.RawMessage(`"x"`))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = ArgCount(json.RawMessage(`[1,`))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestArgsFromEncoded(t *testing.T) {
	fn := &types.FunctionSpec{
		Name:   "set",
		Params: []types.FunctionParam{{Name: "k", Type: types.Scalar(types.TypeSymbol)}, {Name: "v", Type: types.Scalar(types.TypeU64)}},
	}
	args, err := ArgsFromEncoded(fn, types.EncodeValue(types.Vec(types.MustSymbol("a"), types.U64(1))))
	require.NoError(t, err)
	assert.Len(t, args, 2)

	_, err = ArgsFromEncoded(fn, types.EncodeValue(types.Vec(types.MustSymbol("a"), types.U32(1))))
	require.ErrorIs(t, err, ErrShapeMismatch)
	ce, _ := AsConversionError(err)
	assert.Equal(t, 1, ce.Position)

	short, err := ArgsFromEncoded(fn, types.EncodeValue(types.Vec(types.MustSymbol("a"))))
	require.NoError(t, err)
	assert.Len(t, short, 1)

	_, err = ArgsFromEncoded(fn, []byte{0xff})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDecodeResult(t *testing.T) {
	fn := &types.FunctionSpec{Name: "balance", Returns: types.Scalar(types.TypeI128)}
	out, err := DecodeResult(fn, types.I128FromInt64(-5))
	require.NoError(t, err)
	assert.Equal(t, "-5", out)

	_, err = DecodeResult(fn, types.U32(1))
	require.ErrorIs(t, err, ErrShapeMismatch)
	ce, _ := AsConversionError(err)
	assert.Equal(t, "result", ce.Path)
}
