package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/pkg/types"
)

func TestGenerateAccount(t *testing.T) {
	acc, err := GenerateAccount()
	require.NoError(t, err)
	assert.Len(t, acc.PrivateKey, 32)
	assert.Len(t, acc.PublicKey, CompressedPublicKeyLength)
	assert.Equal(t, types.AddressAccount, acc.Address.Kind)

	restored, err := AccountFromPrivateKey(acc.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, acc.Address, restored.Address)

	parsed, err := Parse(Encode(acc.Address))
	require.NoError(t, err)
	assert.Equal(t, acc.Address, parsed)
}

func TestAccountFromPrivateKeyRejectsBadInput(t *testing.T) {
	_, err := AccountFromPrivateKey(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)

	_, err = AccountFromPrivateKey(make([]byte, 32))
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}
