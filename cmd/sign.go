package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ava-labs/keystore-cli/pkg/network"
	"github.com/ava-labs/keystore-cli/pkg/wallet"
)

var (
	// sign flags
	signHash    string
	signMessage string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a digest or message with a stored key",
	Long: `Sign a 32-byte digest, or a message hashed as an Ethereum personal message,
with a stored key. The 65-byte recoverable signature is printed as hex.

If the key is encrypted, KEYSTORE_PASSWORD is used or you will be prompted for the password.

Examples:
  keystore sign --name mykey --hash 0x9c22ff5f21f0b81b113e63f7db6da94fedef11b2119b4088b89664fb9a3cb658
  keystore sign --name mykey --message "hello"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		digest, err := signingDigest(signHash, signMessage)
		if err != nil {
			return err
		}

		return withKeyService(func(ctx context.Context, svc keyService, _ network.Config) error {
			k, err := resolveKey(ctx, svc, keyName)
			if err != nil {
				return err
			}

			password, err := unlockPassword(k)
			if err != nil {
				return err
			}
			defer clearBytes(password)

			sig, err := svc.SignHash(ctx, k.ID, password, digest)
			if err != nil {
				return describeError(keyName, err)
			}

			fmt.Println(encodeHex(sig))
			return nil
		})
	},
}

// signingDigest returns the digest to sign from exactly one of hash or message.
func signingDigest(hash, message string) ([]byte, error) {
	switch {
	case hash != "" && message != "":
		return nil, fmt.Errorf("--hash and --message are mutually exclusive")
	case hash != "":
		digest, err := decodeDigest(hash)
		if err != nil {
			return nil, fmt.Errorf("invalid --hash: %w", err)
		}
		return digest, nil
	case message != "":
		return wallet.PersonalMessageHash([]byte(message)), nil
	default:
		return nil, fmt.Errorf("one of --hash or --message is required")
	}
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().StringVar(&keyName, "name", "", "Name or ID of the signing key (required)")
	signCmd.Flags().StringVar(&signHash, "hash", "", "32-byte digest to sign (hex, optional 0x prefix)")
	signCmd.Flags().StringVar(&signMessage, "message", "", "Message to sign as an Ethereum personal message")
}
