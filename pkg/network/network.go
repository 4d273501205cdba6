// Package network maps Avalanche network names to the settings stored with a key.
package network

import (
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/constants"
	"github.com/ava-labs/avalanchego/utils/formatting/address"
)

// Config holds network-specific configuration.
type Config struct {
	Name      string
	NetworkID uint32
	// Testnet is recorded in a key's public data.
	Testnet bool
}

// Mainnet configuration
var Mainnet = Config{
	Name:      "mainnet",
	NetworkID: constants.MainnetID,
}

// Fuji testnet configuration
var Fuji = Config{
	Name:      "fuji",
	NetworkID: constants.FujiID,
	Testnet:   true,
}

// Local network configuration
var Local = Config{
	Name:      "local",
	NetworkID: constants.LocalID,
	Testnet:   true,
}

// GetConfig returns the network configuration for the given network name.
func GetConfig(name string) (Config, error) {
	switch name {
	case "mainnet":
		return Mainnet, nil
	case "fuji", "testnet":
		return Fuji, nil
	case "local":
		return Local, nil
	default:
		return Config{}, fmt.Errorf("unknown network %q (use mainnet, fuji or local)", name)
	}
}

// ForTestnet returns the network a stored testnet flag refers to.
func ForTestnet(testnet bool) Config {
	if testnet {
		return Fuji
	}
	return Mainnet
}

// HRP returns the bech32 human-readable part for the network.
func (c Config) HRP() string {
	return GetHRP(c.NetworkID)
}

// FormatAddress formats a short ID as a bech32 address on the given chain alias.
func (c Config) FormatAddress(chain string, addr ids.ShortID) (string, error) {
	return address.Format(chain, c.HRP(), addr.Bytes())
}

// GetHRP returns the bech32 human-readable part for a network ID.
func GetHRP(networkID uint32) string {
	return constants.GetHRP(networkID)
}
