package cmd

import (
	"context"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/formatting/address"
	"github.com/spf13/cobra"

	"github.com/ava-labs/keystore-cli/pkg/network"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Wallet operations",
	Long:  `Wallet operations on stored keys that do not need the private key.`,
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show wallet addresses",
	Long: `Display the P-Chain, X-Chain and EVM addresses of a stored key on the
selected network. Addresses are derived from the public data, so no password is needed.

Examples:
  keystore wallet address --name mykey
  keystore wallet address --name mykey --network mainnet`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(func(ctx context.Context, svc keyService, net network.Config) error {
			k, err := resolveKey(ctx, svc, keyName)
			if err != nil {
				return err
			}
			if k.Public.PublicKey == "" {
				return fmt.Errorf("key %q has no stored address", keyName)
			}

			addr, err := shortIDFromAddress(k.Public.PublicKey)
			if err != nil {
				return fmt.Errorf("key %q has an invalid stored address: %w", keyName, err)
			}

			pAddr, err := net.FormatAddress("P", addr)
			if err != nil {
				return err
			}
			xAddr, err := net.FormatAddress("X", addr)
			if err != nil {
				return err
			}

			fmt.Printf("Network:         %s\n", net.Name)
			fmt.Printf("P-Chain Address: %s\n", pAddr)
			fmt.Printf("X-Chain Address: %s\n", xAddr)
			if k.Public.EVMAddress != "" {
				fmt.Printf("EVM Address:     %s\n", k.Public.EVMAddress)
			}
			return nil
		})
	},
}

// shortIDFromAddress extracts the address bytes from a chain-prefixed bech32 address.
func shortIDFromAddress(addrStr string) (ids.ShortID, error) {
	_, _, addrBytes, err := address.Parse(addrStr)
	if err != nil {
		return ids.ShortID{}, err
	}
	return ids.ToShortID(addrBytes)
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(addressCmd)

	addressCmd.Flags().StringVar(&keyName, "name", "", "Name or ID of the key (required)")
}
