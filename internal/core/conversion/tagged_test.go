package conversion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/pkg/types"
)

// TestTaggedRoundTrip 任意值经自描述 JSON 往返后相等
func TestTaggedRoundTrip(t *testing.T) {
	acct := address.MustParse(testAccount)
	values := []types.TypedValue{
		types.Void(),
		types.Bool(true),
		types.U32(7),
		types.I64(-7),
		types.U128(1, 2),
		types.I128FromInt64(-70),
		types.Bytes([]byte{1, 2}),
		types.String("s"),
		types.MustSymbol("sym"),
		types.AddressValue(acct),
		types.InstanceValue(types.ContractInstance{CodeHash: types.HashBytes([]byte("c"))}),
		types.Vec(types.U32(1), types.Vec()),
		types.MustMap(
			types.MapEntry{Key: types.U32(2), Value: types.String("b")},
			types.MapEntry{Key: types.MustSymbol("a"), Value: types.Vec(types.Bool(false))},
		),
	}
	for _, v := range values {
		raw, err := json.Marshal(DecodeTagged(v))
		require.NoError(t, err)
		back, err := EncodeTaggedJSON(raw)
		require.NoError(t, err, string(raw))
		assert.True(t, v.Equal(back), "%s != %s (%s)", v, back, raw)
	}
}

func TestTaggedErrors(t *testing.T) {
	for _, s := range []string{`5`, `{"u32": 1, "u64": 2}`, `{"float": 1}`, `{"vec": 1}`, `{"map": [[{"u32": 1}]]}`} {
		_, err := EncodeTaggedJSON([]byte(s))
		assert.ErrorIs(t, err, ErrShapeMismatch, s)
	}
}

func TestLedgerKeyJSONRoundTrip(t *testing.T) {
	acct := address.MustParse(testAccount)
	contract := types.ContractAddress(types.HashBytes([]byte("wasm")), nil)
	keys := []types.LedgerKey{
		types.AccountKey(acct),
		types.CodeKey(types.HashBytes([]byte("wasm"))),
		types.InstanceKey(contract),
		types.DataKey(contract, types.MustSymbol("counter"), types.DurabilityPersistent),
		types.DataKey(contract, types.Vec(types.MustSymbol("Balance"), types.AddressValue(acct)), types.DurabilityTemporary),
	}
	for _, k := range keys {
		raw, err := json.Marshal(KeyJSON(k))
		require.NoError(t, err)
		back, err := ParseKeyJSON(raw)
		require.NoError(t, err, string(raw))
		assert.True(t, k.Equal(back), string(raw))
	}
}

func TestParseKeyShorthandAndErrors(t *testing.T) {
	contract := types.ContractAddress(types.HashBytes([]byte("wasm")), nil)
	raw := `{"data": {"contract": "` + address.Encode(contract) + `", "key": "counter"}}`
	k, err := ParseKeyJSON([]byte(raw))
	require.NoError(t, err)
	assert.True(t, k.Equal(types.DataKey(contract, types.MustSymbol("counter"), types.DurabilityPersistent)))

	_, err = ParseKeyJSON([]byte(`{"instance": "` + testAccount + `"}`))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ParseKeyJSON([]byte(`{"code": "abcd"}`))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = ParseKeyJSON([]byte(`{"ledger": 1}`))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
