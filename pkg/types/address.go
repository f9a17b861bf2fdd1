package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// AddressHashLength 地址哈希长度（20字节）
const AddressHashLength = 20

// AddressKind 地址种类
type AddressKind uint8

const (
	// AddressAccount 普通账户地址
	AddressAccount AddressKind = iota
	// AddressContract 合约地址
	AddressContract
)

// String 返回种类名称
func (k AddressKind) String() string {
	switch k {
	case AddressAccount:
		return "account"
	case AddressContract:
		return "contract"
	default:
		return fmt.Sprintf("address_kind(%d)", uint8(k))
	}
}

// Address 账户或合约地址
//
// 字符串形式（Base58Check）由 internal/core/infrastructure/crypto/address 负责，
// 这里只保留原始字节，String 仅用于日志。
type Address struct {
	Kind AddressKind
	Hash [AddressHashLength]byte
}

// Compare 按 (种类, 哈希) 比较
func (a Address) Compare(b Address) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.Hash[:], b.Hash[:])
}

// IsZero 是否为零地址
func (a Address) IsZero() bool {
	return a == Address{}
}

// String 日志用的十六进制形式
func (a Address) String() string {
	return fmt.Sprintf("%s:%x", a.Kind, a.Hash[:])
}

// Hash 32字节哈希（SHA-256）
type Hash [32]byte

// HashBytes 计算 SHA-256
func HashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// Hex 十六进制形式
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// IsZero 是否为零值
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash 解析十六进制哈希，允许 0x 前缀
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash length: expected %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ContractInstance 合约实例引用：实例运行的 WASM 代码哈希
type ContractInstance struct {
	CodeHash Hash
}

// ContractAddress 由代码哈希和盐值派生合约地址
//
// 地址 = SHA-256("contract" || codeHash || salt) 的前20字节
func ContractAddress(codeHash Hash, salt []byte) Address {
	h := sha256.New()
	h.Write([]byte("contract"))
	h.Write(codeHash[:])
	h.Write(salt)
	sum := h.Sum(nil)
	a := Address{Kind: AddressContract}
	copy(a.Hash[:], sum[:AddressHashLength])
	return a
}
