package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAddress(kind AddressKind, seed byte) Address {
	a := Address{Kind: kind}
	for i := range a.Hash {
		a.Hash[i] = seed + byte(i)
	}
	return a
}

func sampleValues(t *testing.T) []TypedValue {
	t.Helper()
	big128, ok := U128FromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))
	require.True(t, ok)
	neg128, ok := I128FromBig(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127)))
	require.True(t, ok)

	nested := MustMap(
		MapEntry{Key: MustSymbol("owner"), Value: AddressValue(sampleAddress(AddressAccount, 1))},
		MapEntry{Key: MustSymbol("tags"), Value: Vec(String("a"), String("b"))},
	)
	return []TypedValue{
		Void(),
		Bool(true),
		Bool(false),
		U32(0),
		U32(4294967295),
		I32(-2147483648),
		U64(18446744073709551615),
		I64(-1),
		U128(0, 7),
		big128,
		I128FromInt64(-30),
		neg128,
		Bytes([]byte{0xde, 0xad, 0xbe, 0xef}),
		Bytes(nil),
		String("héllo"),
		MustSymbol("transfer"),
		Vec(),
		Vec(U32(1), Vec(I64(-2), Void())),
		nested,
		MustMap(MapEntry{Key: U32(2), Value: Bool(true)}, MapEntry{Key: U32(1), Value: Bool(false)}),
		AddressValue(sampleAddress(AddressContract, 9)),
		InstanceValue(ContractInstance{CodeHash: HashBytes([]byte("code"))}),
	}
}

// TestValueRoundTrip 所有变体编码后解码得到相同值，且再次编码字节一致
func TestValueRoundTrip(t *testing.T) {
	for _, v := range sampleValues(t) {
		enc := EncodeValue(v)
		got, err := DecodeValue(enc)
		require.NoError(t, err, v.String())
		assert.True(t, v.Equal(got), "want %s got %s", v, got)
		assert.Equal(t, enc, EncodeValue(got))
	}
}

func TestDecodeValueRejectsNonCanonical(t *testing.T) {
	t.Run("trailing bytes", func(t *testing.T) {
		enc := append(EncodeValue(U32(1)), 0)
		_, err := DecodeValue(enc)
		assert.ErrorIs(t, err, ErrMalformedEncoding)
	})

	t.Run("unsorted map keys", func(t *testing.T) {
		b := []byte{byte(KindMap), 2}
		b = append(b, EncodeValue(U32(2))...)
		b = append(b, EncodeValue(Void())...)
		b = append(b, EncodeValue(U32(1))...)
		b = append(b, EncodeValue(Void())...)
		_, err := DecodeValue(b)
		assert.ErrorIs(t, err, ErrMalformedEncoding)
	})

	t.Run("non-minimal length", func(t *testing.T) {
		_, err := DecodeValue([]byte{byte(KindBytes), 0x80, 0x00})
		assert.ErrorIs(t, err, ErrMalformedEncoding)
	})

	t.Run("unknown tag", func(t *testing.T) {
		_, err := DecodeValue([]byte{0xff})
		assert.ErrorIs(t, err, ErrMalformedEncoding)
	})

	t.Run("invalid symbol", func(t *testing.T) {
		_, err := DecodeValue([]byte{byte(KindSymbol), 1, '-'})
		assert.ErrorIs(t, err, ErrMalformedEncoding)
	})

	t.Run("length beyond input", func(t *testing.T) {
		_, err := DecodeValue([]byte{byte(KindVec), 5})
		assert.ErrorIs(t, err, ErrMalformedEncoding)
	})
}

func TestEntryRoundTrip(t *testing.T) {
	contract := sampleAddress(AddressContract, 3)
	keys := []LedgerKey{
		AccountKey(sampleAddress(AddressAccount, 1)),
		CodeKey(HashBytes([]byte("wasm"))),
		DataKey(contract, MustSymbol("counter"), DurabilityTemporary),
		InstanceKey(contract),
	}
	for _, k := range keys {
		e := &LedgerEntry{Key: k, Value: Vec(U32(1)), LiveUntil: 12, LastModified: 3}
		got, err := DecodeEntry(EncodeEntry(e))
		require.NoError(t, err)
		assert.Equal(t, k.ID(), got.Key.ID())
		assert.True(t, e.Value.Equal(got.Value))
		assert.Equal(t, uint64(12), got.LiveUntil)
		assert.Equal(t, uint64(3), got.LastModified)

		dk, err := DecodeKey(EncodeKey(k))
		require.NoError(t, err)
		assert.True(t, k.Equal(dk))
	}
}

// TestCanonicalEncodingIsOrderIndependent 构造顺序不同的同一 Map 编码一致
func TestCanonicalEncodingIsOrderIndependent(t *testing.T) {
	a := MustMap(
		MapEntry{Key: String("b"), Value: U32(2)},
		MapEntry{Key: String("a"), Value: U32(1)},
	)
	b := MustMap(
		MapEntry{Key: String("a"), Value: U32(1)},
		MapEntry{Key: String("b"), Value: U32(2)},
	)
	assert.Equal(t, EncodeValue(a), EncodeValue(b))
}
