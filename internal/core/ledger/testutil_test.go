package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/pkg/types"
)

func testAccount(seed byte) types.Address {
	a := types.Address{Kind: types.AddressAccount}
	for i := range a.Hash {
		a.Hash[i] = seed
	}
	return a
}

func accountDelta(t *testing.T, a types.Address, balance int64) types.Delta {
	t.Helper()
	v, err := types.AccountValue(big.NewInt(balance), 0)
	require.NoError(t, err)
	k := types.AccountKey(a)
	return types.Delta{Key: k, Entry: &types.LedgerEntry{Key: k, Value: v}}
}

func balanceOf(t *testing.T, s interface {
	Get(types.LedgerKey) (*types.LedgerEntry, bool)
}, a types.Address) int64 {
	t.Helper()
	e, ok := s.Get(types.AccountKey(a))
	require.True(t, ok, "account %s missing", a)
	b, _, ok := types.AccountBalance(e.Value)
	require.True(t, ok)
	return b.Int64()
}

func codeDelta(code []byte) types.Delta {
	k := types.CodeKey(types.HashBytes(code))
	return types.Delta{Key: k, Entry: &types.LedgerEntry{Key: k, Value: types.Bytes(code)}}
}
