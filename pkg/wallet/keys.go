// Package wallet converts between stored key strings and secp256k1 key material.
package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/cb58"
	"github.com/ava-labs/avalanchego/utils/crypto/secp256k1"
	"github.com/ava-labs/libevm/common"
)

const cb58Prefix = "PrivateKey-"

// Format is a textual private key encoding.
type Format string

const (
	FormatCB58 Format = "cb58"
	FormatHex  Format = "hex"
)

// ParsePrivateKey parses a private key from various formats.
// Supported formats:
//   - PrivateKey-... (Avalanche CB58 format)
//   - 0x... (hex format)
//   - Raw CB58 string
//   - Raw hex string
//
// The decoded key must be a valid secp256k1 private key. The caller should
// clear the returned slice.
func ParsePrivateKey(keyStr string) ([]byte, error) {
	keyStr = strings.TrimSpace(keyStr)

	var keyBytes []byte
	var err error

	switch {
	case strings.HasPrefix(keyStr, "0x") || strings.HasPrefix(keyStr, "0X"):
		keyBytes, err = hex.DecodeString(keyStr[2:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode hex private key: %w", err)
		}
	case strings.HasPrefix(keyStr, cb58Prefix):
		keyBytes, err = cb58.Decode(strings.TrimPrefix(keyStr, cb58Prefix))
		if err != nil {
			return nil, fmt.Errorf("failed to decode CB58 private key: %w", err)
		}
	default:
		keyBytes, err = cb58.Decode(keyStr)
		if err != nil {
			keyBytes, err = hex.DecodeString(keyStr)
			if err != nil {
				return nil, fmt.Errorf("failed to decode private key (tried CB58 and hex): %w", err)
			}
		}
	}

	if len(keyBytes) != secp256k1.PrivateKeyLen {
		return nil, fmt.Errorf("invalid private key length %d, want %d", len(keyBytes), secp256k1.PrivateKeyLen)
	}
	return keyBytes, nil
}

// ToPrivateKey converts raw key bytes to a secp256k1 private key.
func ToPrivateKey(keyBytes []byte) (*secp256k1.PrivateKey, error) {
	key, err := secp256k1.ToPrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// GenerateKey returns the bytes of a new random private key.
// The caller should clear the returned slice.
func GenerateKey() ([]byte, error) {
	key, err := secp256k1.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return key.Bytes(), nil
}

// FormatPrivateKey encodes key bytes. The CB58 form is the one stored in the keystore.
func FormatPrivateKey(keyBytes []byte, format Format) (string, error) {
	switch format {
	case FormatCB58, "":
		encoded, err := cb58.Encode(keyBytes)
		if err != nil {
			return "", fmt.Errorf("failed to encode key: %w", err)
		}
		return cb58Prefix + encoded, nil
	case FormatHex:
		return "0x" + hex.EncodeToString(keyBytes), nil
	default:
		return "", fmt.Errorf("unsupported format: %s (use cb58 or hex)", format)
	}
}

// Addresses are the addresses controlled by a private key.
type Addresses struct {
	PChain ids.ShortID
	EVM    common.Address
}

// DeriveAddresses derives both P-Chain and EVM addresses from a private key.
func DeriveAddresses(keyBytes []byte) (Addresses, error) {
	key, err := ToPrivateKey(keyBytes)
	if err != nil {
		return Addresses{}, err
	}
	return DeriveAddressesFromKey(key), nil
}

// DeriveAddressesFromKey derives addresses from a secp256k1 private key.
func DeriveAddressesFromKey(key *secp256k1.PrivateKey) Addresses {
	pub := key.PublicKey()
	return Addresses{
		PChain: pub.Address(),
		EVM:    pub.EthAddress(),
	}
}
