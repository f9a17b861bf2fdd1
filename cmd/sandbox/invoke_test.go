package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/internal/core/conversion"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/types"
)

func TestPositionalArgs(t *testing.T) {
	raw := positionalArgs([]string{"30", "abc", `{"a":1}`, `"quoted"`})
	assert.JSONEq(t, `[30,"abc",{"a":1},"quoted"]`, string(raw))
	assert.JSONEq(t, `[]`, string(positionalArgs(nil)))
}

func TestParseKeyFlag(t *testing.T) {
	a := types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xb}}
	k, err := parseKeyFlag(address.Encode(a))
	require.NoError(t, err)
	assert.Equal(t, types.AccountKey(a), k)

	k, err = parseKeyFlag(`{"account":"` + address.Encode(a) + `"}`)
	require.NoError(t, err)
	assert.Equal(t, types.AccountKey(a), k)

	_, err = parseKeyFlag("nope")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(&statusError{status: "trapped"}))
	assert.Equal(t, 1, exitCode(assert.AnError))
}

func TestInvokeParamsCarriesKeysAndBudget(t *testing.T) {
	a := types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xb}}
	req := &sandbox.InvokeRequest{
		Function:  "transfer",
		Args:      positionalArgs([]string{"1"}),
		ReadWrite: []types.LedgerKey{types.AccountKey(a)},
		Budget:    types.Budget{InstructionLimit: 10},
	}
	p, err := invokeParams(req)
	require.NoError(t, err)
	require.Len(t, p.ReadWrite, 1)
	back, err := conversion.ParseKeyJSON(p.ReadWrite[0])
	require.NoError(t, err)
	assert.Equal(t, types.AccountKey(a), back)
	require.NotNil(t, p.Budget)
	assert.EqualValues(t, 10, p.Budget.InstructionLimit)

	p, err = invokeParams(&sandbox.InvokeRequest{Function: "balance"})
	require.NoError(t, err)
	assert.Nil(t, p.Budget)
	assert.Empty(t, p.ReadOnly)
}
