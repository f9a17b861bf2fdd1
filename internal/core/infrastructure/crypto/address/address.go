// Package address 账户与合约地址的字符串编码
//
// 字符串形式为 Base58Check(版本字节 + 20 字节哈希)。账户与合约使用不同的版本字节，
// 字符串本身即可区分地址种类。
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/ripemd160"

	"github.com/weisyn/sandbox/pkg/types"
)

const (
	AccountVersion  byte = 0x1C
	ContractVersion byte = 0x9C

	// 压缩公钥 33 字节；未压缩公钥去掉 0x04 前缀后 64 字节
	CompressedPublicKeyLength   = 33
	UncompressedPublicKeyLength = 64
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key format")
	// ErrInvalidAddress Parse 的所有错误都包装它
	ErrInvalidAddress = errors.New("invalid address format")
)

func versionOf(k types.AddressKind) byte {
	if k == types.AddressContract {
		return ContractVersion
	}
	return AccountVersion
}

// Encode 地址的字符串形式
func Encode(a types.Address) string {
	return base58.CheckEncode(a.Hash[:], versionOf(a.Kind))
}

// Parse 严格解析地址字符串
func Parse(s string) (types.Address, error) {
	var a types.Address
	payload, version, err := base58.CheckDecode(s)
	switch {
	case errors.Is(err, base58.ErrChecksum):
		return a, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	case err != nil:
		return a, fmt.Errorf("%w: not base58check", ErrInvalidAddress)
	case len(payload) != types.AddressHashLength:
		return a, fmt.Errorf("%w: hash is %d bytes", ErrInvalidAddress, len(payload))
	}
	switch version {
	case AccountVersion:
		a.Kind = types.AddressAccount
	case ContractVersion:
		a.Kind = types.AddressContract
	default:
		return a, fmt.Errorf("%w: unknown version 0x%02x", ErrInvalidAddress, version)
	}
	copy(a.Hash[:], payload)
	return a, nil
}

// MustParse 仅用于常量与测试
func MustParse(s string) types.Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromPublicKey 账户地址 = RIPEMD160(SHA256(公钥))
func FromPublicKey(pub []byte) (types.Address, error) {
	if n := len(pub); n != CompressedPublicKeyLength && n != UncompressedPublicKeyLength {
		return types.Address{}, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, n)
	}
	sum := sha256.Sum256(pub)
	h := ripemd160.New()
	h.Write(sum[:])
	a := types.Address{Kind: types.AddressAccount}
	copy(a.Hash[:], h.Sum(nil))
	return a, nil
}
