package address

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/pkg/types"
)

func TestFromPublicKeyKnownVector(t *testing.T) {
	pub, err := hex.DecodeString("5c09ebc499a5c427660546fb0f155db604f4e2300d897a9fc711a5ce1380eac2cae1dde1df9dfa7542d8ade1da86083cb2161b9f7bbd6d5cf8230d3e300ad664")
	require.NoError(t, err)

	addr, err := FromPublicKey(pub)
	require.NoError(t, err)
	assert.Equal(t, "Cf1Kes6snEUeykiJJgrAtKPNPrAzPdPmSn", Encode(addr))

	_, err = FromPublicKey(pub[:10])
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestEncodeParseRoundTrip(t *testing.T) {
	for _, kind := range []types.AddressKind{types.AddressAccount, types.AddressContract} {
		a := types.Address{Kind: kind}
		for i := range a.Hash {
			a.Hash[i] = byte(i * 7)
		}
		s := Encode(a)
		got, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	valid := "Cf1Kes6snEUeykiJJgrAtKPNPrAzPdPmSn"

	cases := map[string]string{
		"空字符串":    "",
		"过短":      "Cf1Kes",
		"非法字符":    "Cf1Kes6snEUeykiJJgrAtKPNPrAzPdPm0n",
		"校验和错误":   valid[:len(valid)-1] + "T",
		"比特币版本字节": "1BoatSLRHtKNngkdXEeobR76b53LETtpyT",
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(s)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}
