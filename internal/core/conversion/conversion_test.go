package conversion

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/pkg/types"
)

const testAccount = "Cf1Kes6snEUeykiJJgrAtKPNPrAzPdPmSn"

var codeHashHex = types.HashBytes([]byte("code")).Hex()

func point() types.TypeDescriptor {
	return types.TypeDescriptor{
		Kind: types.TypeStruct,
		Name: "Point",
		Fields: []types.FieldDescriptor{
			{Name: "x", Type: types.Scalar(types.TypeI32)},
			{Name: "y", Type: types.Scalar(types.TypeI32)},
		},
	}
}

func action() types.TypeDescriptor {
	return types.TypeDescriptor{
		Kind: types.TypeEnum,
		Name: "Action",
		Cases: []types.EnumCase{
			{Name: "Idle"},
			{Name: "Pay", Payload: []types.TypeDescriptor{types.Scalar(types.TypeI128)}},
			{Name: "Move", Payload: []types.TypeDescriptor{types.Scalar(types.TypeU32), types.Scalar(types.TypeU32)}},
		},
	}
}

func mustParse(t *testing.T, s string) any {
	t.Helper()
	v, err := ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

// TestRoundTripCanonicalRepresentations Decode(Encode(x)) == x
func TestRoundTripCanonicalRepresentations(t *testing.T) {
	cases := []struct {
		name string
		json string
		desc types.TypeDescriptor
	}{
		{"void", `null`, types.Scalar(types.TypeVoid)},
		{"bool", `true`, types.Scalar(types.TypeBool)},
		{"u32", `4294967295`, types.Scalar(types.TypeU32)},
		{"i32", `-2147483648`, types.Scalar(types.TypeI32)},
		{"u64", `18446744073709551615`, types.Scalar(types.TypeU64)},
		{"i64", `-9223372036854775808`, types.Scalar(types.TypeI64)},
		{"u128", `"340282366920938463463374607431768211455"`, types.Scalar(types.TypeU128)},
		{"i128", `"-170141183460469231731687303715884105728"`, types.Scalar(types.TypeI128)},
		{"bytes", `"deadbeef"`, types.Scalar(types.TypeBytes)},
		{"empty bytes", `""`, types.Scalar(types.TypeBytes)},
		{"string", `"héllo"`, types.Scalar(types.TypeString)},
		{"symbol", `"transfer"`, types.Scalar(types.TypeSymbol)},
		{"address", `"` + testAccount + `"`, types.Scalar(types.TypeAddress)},
		{"instance", `"` + codeHashHex + `"`, types.Scalar(types.TypeContractInstance)},
		{"vec", `[1, 2, 3]`, types.VecOf(types.Scalar(types.TypeU32))},
		{"nested vec", `[[], ["a"]]`, types.VecOf(types.VecOf(types.Scalar(types.TypeString)))},
		{"symbol map", `{"a": 1, "b": 2}`, types.MapOf(types.Scalar(types.TypeSymbol), types.Scalar(types.TypeU64))},
		{"pair map", `[[1, true], [2, false]]`, types.MapOf(types.Scalar(types.TypeU32), types.Scalar(types.TypeBool))},
		{"option none", `null`, types.OptionOf(types.Scalar(types.TypeU32))},
		{"option some", `7`, types.OptionOf(types.Scalar(types.TypeU32))},
		{"struct", `{"x": -1, "y": 2}`, point()},
		{"enum unit", `"Idle"`, action()},
		{"enum single payload", `{"Pay": "100"}`, action()},
		{"enum tuple payload", `{"Move": [3, 4]}`, action()},
		{"vec of structs", `[{"x": 0, "y": 0}]`, types.VecOf(point())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.desc.Validate())
			repr := mustParse(t, tc.json)
			v, err := Encode(repr, tc.desc)
			require.NoError(t, err)
			back, err := Decode(v, tc.desc)
			require.NoError(t, err)
			assert.Equal(t, repr, back)

			again, err := Encode(back, tc.desc)
			require.NoError(t, err)
			assert.True(t, v.Equal(again))
		})
	}
}

func TestEncodeAcceptsAlternateForms(t *testing.T) {
	v, err := Encode("0xDEAD", types.Scalar(types.TypeBytes))
	require.NoError(t, err)
	b, _ := v.AsBytes()
	assert.Equal(t, []byte{0xde, 0xad}, b)

	v, err = Encode("42", types.Scalar(types.TypeU64))
	require.NoError(t, err)
	n, _ := v.AsU64()
	assert.Equal(t, uint64(42), n)

	v, err = Encode(json.Number("12"), types.Scalar(types.TypeI128))
	require.NoError(t, err)
	assert.True(t, v.Equal(types.I128FromInt64(12)))

	v, err = Encode(float64(3), types.Scalar(types.TypeU32))
	require.NoError(t, err)
	u, _ := v.AsU32()
	assert.Equal(t, uint32(3), u)
}

func TestScalarErrors(t *testing.T) {
	cases := []struct {
		name string
		repr any
		desc types.TypeKind
		want error
	}{
		{"string for u32", "abc", types.TypeU32, ErrShapeMismatch},
		{"numeric string for u32", "5", types.TypeU32, ErrShapeMismatch},
		{"fraction", json.Number("1.5"), types.TypeI32, ErrShapeMismatch},
		{"exponent", json.Number("1e3"), types.TypeU64, ErrShapeMismatch},
		{"u32 overflow", json.Number("4294967296"), types.TypeU32, ErrOutOfRange},
		{"negative unsigned", "-1", types.TypeU64, ErrOutOfRange},
		{"i128 overflow", "170141183460469231731687303715884105728", types.TypeI128, ErrOutOfRange},
		{"bool from number", json.Number("1"), types.TypeBool, ErrShapeMismatch},
		{"bad hex", "xyz", types.TypeBytes, ErrShapeMismatch},
		{"bad symbol", "has space", types.TypeSymbol, ErrShapeMismatch},
		{"void from value", false, types.TypeVoid, ErrShapeMismatch},
		{"bad address", "Cf1Kes6snEUeykiJJgrAtKPNPrAzPdPmST", types.TypeAddress, ErrInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.repr, types.Scalar(tc.desc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			ce, ok := AsConversionError(err)
			require.True(t, ok)
			assert.Equal(t, "$", ce.Path)
			assert.Equal(t, NoPosition, ce.Position)
		})
	}
}

func TestInvalidAddressKeepsCause(t *testing.T) {
	_, err := Encode("not-base58-0OIl", types.Scalar(types.TypeAddress))
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.ErrorIs(t, err, address.ErrInvalidAddress)
}

func TestStructFieldsMustMatchExactly(t *testing.T) {
	_, err := Encode(mustParse(t, `{"x": 1, "y": 2, "z": 3}`), point())
	require.ErrorIs(t, err, ErrShapeMismatch)
	ce, _ := AsConversionError(err)
	assert.Equal(t, "z", ce.Path)

	_, err = Encode(mustParse(t, `{"x": 1}`), point())
	require.ErrorIs(t, err, ErrShapeMismatch)
	ce, _ = AsConversionError(err)
	assert.Equal(t, "y", ce.Path)
	assert.Equal(t, "missing", ce.Actual)

	_, err = Encode(mustParse(t, `[{"x": 1, "y": "2"}]`), types.VecOf(point()))
	require.ErrorIs(t, err, ErrShapeMismatch)
	ce, _ = AsConversionError(err)
	assert.Equal(t, "[0].y", ce.Path)
}

func TestEnumErrors(t *testing.T) {
	for _, s := range []string{`"Unknown"`, `{"Idle": 1}`, `"Pay"`, `{"Move": [1]}`, `{"Pay": "1", "Idle": null}`} {
		_, err := Encode(mustParse(t, s), action())
		assert.ErrorIs(t, err, ErrShapeMismatch, s)
	}
}

func TestPairMapRejectsDuplicateKeys(t *testing.T) {
	_, err := Encode(mustParse(t, `[[1, true], [1, false]]`), types.MapOf(types.Scalar(types.TypeU32), types.Scalar(types.TypeBool)))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDecodeRejectsMismatchedValue(t *testing.T) {
	_, err := Decode(types.String("x"), types.Scalar(types.TypeU32))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	err = Conform(types.Vec(types.U32(1), types.String("x")), types.VecOf(types.Scalar(types.TypeU32)))
	require.ErrorIs(t, err, ErrShapeMismatch)
	ce, _ := AsConversionError(err)
	assert.Equal(t, "[1]", ce.Path)
}

func TestErrorMessageNamesPathAndShapes(t *testing.T) {
	_, err := Encode(mustParse(t, `{"x": true, "y": 1}`), point())
	require.Error(t, err)
	assert.Equal(t, `shape mismatch at x: expected i32 number, got bool true`, err.Error())
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}
