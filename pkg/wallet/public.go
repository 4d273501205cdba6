package wallet

import (
	"time"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
	"github.com/ava-labs/keystore-cli/pkg/network"
)

// NewPublicKeyData builds the plaintext metadata stored next to an encrypted key.
func NewPublicKeyData(name string, keyBytes []byte, net network.Config, hasPassword bool) (keystore.PublicKeyData, error) {
	addrs, err := DeriveAddresses(keyBytes)
	if err != nil {
		return keystore.PublicKeyData{}, err
	}
	pAddr, err := net.FormatAddress("P", addrs.PChain)
	if err != nil {
		return keystore.PublicKeyData{}, err
	}

	return keystore.PublicKeyData{
		Name:       name,
		Password:   hasPassword,
		PublicKey:  pAddr,
		Testnet:    net.Testnet,
		EVMAddress: addrs.EVM.Hex(),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}, nil
}
