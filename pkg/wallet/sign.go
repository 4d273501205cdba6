package wallet

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/crypto/secp256k1"
	"github.com/ava-labs/avalanchego/utils/hashing"
	"github.com/ava-labs/libevm/accounts"
	"github.com/awnumar/memguard"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
)

// SignHash signs a 32-byte digest and returns a 65-byte recoverable signature [r || s || v].
func SignHash(keyBytes, digest []byte) ([]byte, error) {
	if len(digest) != hashing.HashLen {
		return nil, fmt.Errorf("invalid digest length %d, want %d", len(digest), hashing.HashLen)
	}
	key, err := ToPrivateKey(keyBytes)
	if err != nil {
		return nil, err
	}
	sig, err := key.SignHash(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	return sig, nil
}

// RecoverSigner returns the P-Chain short address that produced sig over digest.
func RecoverSigner(digest, sig []byte) (ids.ShortID, error) {
	if len(sig) != secp256k1.SignatureLen {
		return ids.ShortEmpty, fmt.Errorf("invalid signature length %d, want %d", len(sig), secp256k1.SignatureLen)
	}
	pub, err := secp256k1.RecoverPublicKeyFromHash(digest, sig)
	if err != nil {
		return ids.ShortEmpty, fmt.Errorf("failed to recover public key: %w", err)
	}
	return pub.Address(), nil
}

// PersonalMessageHash returns the EIP-191 digest signed by personal_sign.
func PersonalMessageHash(msg []byte) []byte {
	return accounts.TextHash(msg)
}

// KeySource decrypts stored private key data. *keystore.Keystore implements it.
type KeySource interface {
	PrivateKeyData(keyID string, password []byte) (keystore.PrivateKeyData, error)
}

// SignWithKey decrypts keyID, signs digest and discards the key material.
// A missing key keeps its KeyNotFoundError; any other failure to obtain a usable
// key, including a stored string that does not parse, is a WrongPasswordError.
func SignWithKey(src KeySource, keyID string, password, digest []byte) ([]byte, error) {
	if len(digest) != hashing.HashLen {
		return nil, &keystore.Error{
			Kind:   keystore.KindInvalidArgument,
			KeyID:  keyID,
			Reason: fmt.Sprintf("digest must be %d bytes", hashing.HashLen),
		}
	}

	priv, err := src.PrivateKeyData(keyID, password)
	if err != nil {
		if errors.Is(err, keystore.ErrKeyNotFound) {
			return nil, err
		}
		return nil, &keystore.Error{Kind: keystore.KindWrongPassword, KeyID: keyID}
	}

	keyBytes, err := ParsePrivateKey(priv.PrivateKey)
	if err != nil {
		return nil, &keystore.Error{Kind: keystore.KindWrongPassword, KeyID: keyID}
	}
	defer memguard.WipeBytes(keyBytes)

	sig, err := SignHash(keyBytes, digest)
	if err != nil {
		return nil, &keystore.Error{Kind: keystore.KindWrongPassword, KeyID: keyID}
	}
	return sig, nil
}
