package address

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/weisyn/sandbox/pkg/types"
)

// ErrInvalidPrivateKey 无效的私钥
var ErrInvalidPrivateKey = errors.New("invalid private key")

// Account 本地生成的账户密钥对
type Account struct {
	PrivateKey []byte
	PublicKey  []byte
	Address    types.Address
}

// PrivateKeyHex 私钥十六进制
func (a *Account) PrivateKeyHex() string { return hex.EncodeToString(a.PrivateKey) }

// PublicKeyHex 压缩公钥十六进制
func (a *Account) PublicKeyHex() string { return hex.EncodeToString(a.PublicKey) }

// GenerateAccount 生成 secp256k1 密钥对并推导账户地址
func GenerateAccount() (*Account, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("生成私钥失败: %w", err)
	}
	return accountFromKey(priv)
}

// AccountFromPrivateKey 由 32 字节私钥恢复账户
func AccountFromPrivateKey(privateKey []byte) (*Account, error) {
	if len(privateKey) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidPrivateKey, len(privateKey))
	}
	priv, _ := btcec.PrivKeyFromBytes(privateKey)
	if priv.Key.IsZero() {
		return nil, ErrInvalidPrivateKey
	}
	return accountFromKey(priv)
}

func accountFromKey(priv *btcec.PrivateKey) (*Account, error) {
	pub := priv.PubKey().SerializeCompressed()
	addr, err := FromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Account{
		PrivateKey: priv.Serialize(),
		PublicKey:  pub,
		Address:    addr,
	}, nil
}
