package cmd

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
	"github.com/ava-labs/keystore-cli/pkg/network"
	"github.com/ava-labs/keystore-cli/pkg/wallet"
)

const (
	passwordEnv       = "KEYSTORE_PASSWORD"
	newPasswordEnv    = "KEYSTORE_NEW_PASSWORD"
	privateKeyEnv     = "KEYSTORE_PRIVATE_KEY"
	minPasswordLength = 8
)

// clearBytes zeros a byte slice holding a password or key.
func clearBytes(b []byte) {
	memguard.WipeBytes(b)
}

var (
	// keys flags
	keyName       string
	keyNewName    string
	keyPrivateKey string
	keyEncrypt    bool
	keyFormat     string
	keyForce      bool
	keyRemovePass bool
	showAddrs     bool
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Key management operations",
	Long: `Manage keys stored in the keystore (default: ~/.keystore/keys.json).

Keys are encrypted with a password by default. New keys use Argon2id for key
derivation and NaCl secretbox (XSalsa20-Poly1305) for encryption. Keys are
addressed with --name, which accepts either the key name or its ID.

Subcommands:
  list      List all stored keys
  show      Show the public data of a key
  import    Import a private key
  generate  Generate a new random key
  export    Export a key (show private key)
  label     Rename a key
  passwd    Change or remove the password of a key
  delete    Remove a stored key`,
}

var keysImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a private key",
	Long: `Import a private key into the keystore.

If --private-key is not provided, KEYSTORE_PRIVATE_KEY is used, otherwise you
will be prompted to enter it (hidden input). Keys are encrypted by default.
Use --encrypt=false to store unencrypted keys (unsafe). Set KEYSTORE_PASSWORD
for non-interactive use or follow the password prompt.

Examples:
  keystore keys import --name mykey --private-key "PrivateKey-..."
  keystore keys import --name mykey
  keystore keys import --name mykey --encrypt=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyName == "" {
			return fmt.Errorf("--name is required")
		}
		if err := validateKeyName(keyName); err != nil {
			return err
		}

		return withKeyService(func(ctx context.Context, svc keyService, net network.Config) error {
			if err := ensureNameFree(ctx, svc, keyName); err != nil {
				return err
			}

			keyStr := keyPrivateKey
			if keyStr == "" {
				keyStr = os.Getenv(privateKeyEnv)
			}
			if keyStr == "" {
				fmt.Print("Enter private key: ")
				inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("failed to read private key: %w", err)
				}
				keyStr = string(inputBytes)
				clearBytes(inputBytes)
			}

			keyBytes, err := wallet.ParsePrivateKey(keyStr)
			if err != nil {
				return fmt.Errorf("invalid private key: %w", err)
			}
			defer clearBytes(keyBytes)

			password, err := encryptionPassword()
			if err != nil {
				return err
			}
			defer clearBytes(password)

			k, err := storeKey(ctx, svc, net, keyName, keyBytes, password)
			if err != nil {
				return err
			}

			fmt.Printf("Key imported successfully!\n")
			printKey(k)
			return nil
		})
	},
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new random key",
	Long: `Generate a new random secp256k1 private key.

Keys are encrypted by default. Use --encrypt=false to store unencrypted keys (unsafe).
Set KEYSTORE_PASSWORD for non-interactive use or follow the password prompt.

Examples:
  keystore keys generate --name mykey
  keystore keys generate --name mykey --network mainnet
  keystore keys generate --name mykey --encrypt=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyName == "" {
			return fmt.Errorf("--name is required")
		}
		if err := validateKeyName(keyName); err != nil {
			return err
		}

		return withKeyService(func(ctx context.Context, svc keyService, net network.Config) error {
			if err := ensureNameFree(ctx, svc, keyName); err != nil {
				return err
			}

			password, err := encryptionPassword()
			if err != nil {
				return err
			}
			defer clearBytes(password)

			keyBytes, err := wallet.GenerateKey()
			if err != nil {
				return err
			}
			defer clearBytes(keyBytes)

			k, err := storeKey(ctx, svc, net, keyName, keyBytes, password)
			if err != nil {
				return err
			}

			fmt.Printf("Key generated successfully!\n")
			printKey(k)
			fmt.Println()
			fmt.Println("WARNING: Back up your key! Use 'keystore keys export' to view the private key.")
			return nil
		})
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored keys",
	Long: `List all keys stored in the keystore.

Use --show-addresses to display P-Chain and EVM addresses.

Examples:
  keystore keys list
  keystore keys list --show-addresses`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(func(ctx context.Context, svc keyService, _ network.Config) error {
			keys, err := listKeys(ctx, svc)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("No keys found. Use 'keystore keys import' or 'keystore keys generate' to add a key.")
				return nil
			}

			sort.Slice(keys, func(i, j int) bool {
				if keys[i].Public.Name != keys[j].Public.Name {
					return keys[i].Public.Name < keys[j].Public.Name
				}
				return keys[i].ID < keys[j].ID
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			if showAddrs {
				fmt.Fprintln(w, "NAME\tID\tENCRYPTED\tNETWORK\tP-CHAIN\tEVM\tCREATED")
				for _, k := range keys {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						k.Public.Name, k.ID, yesNo(k.Public.Password), networkLabel(k.Public), k.Public.PublicKey, k.Public.EVMAddress, createdLabel(k.Public))
				}
			} else {
				fmt.Fprintln(w, "NAME\tID\tENCRYPTED\tNETWORK\tCREATED")
				for _, k := range keys {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						k.Public.Name, k.ID, yesNo(k.Public.Password), networkLabel(k.Public), createdLabel(k.Public))
				}
			}
			w.Flush()

			fmt.Printf("\nTotal: %d key(s)\n", len(keys))

			weak, err := countWeakKeys(ctx, svc, keys)
			if err != nil {
				return err
			}
			if weak > 0 {
				fmt.Printf("%d key(s) use weaker encryption settings than the current configuration; run 'keystore keys passwd' to re-encrypt.\n", weak)
			}
			return nil
		})
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the public data of a key",
	Long: `Show the public data of a key. No password is needed.

Examples:
  keystore keys show --name mykey`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(func(ctx context.Context, svc keyService, _ network.Config) error {
			k, err := resolveKey(ctx, svc, keyName)
			if err != nil {
				return err
			}
			printKey(k)

			weak, err := svc.NeedsRehash(ctx, k.ID)
			if err != nil {
				return describeError(keyName, err)
			}
			if weak {
				fmt.Printf("  Rehash:        recommended (run 'keystore keys passwd --name %s')\n", keyName)
			}
			return nil
		})
	},
}

var keysExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a key (show private key)",
	Long: `Export a key by displaying its private key.

WARNING: This will display your private key in plaintext!

If the key is encrypted, KEYSTORE_PASSWORD is used or you will be prompted for the password.

Examples:
  keystore keys export --name mykey
  keystore keys export --name mykey --format hex`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := wallet.Format(keyFormat)
		if format != wallet.FormatCB58 && format != wallet.FormatHex {
			return fmt.Errorf("unsupported format: %s (use cb58 or hex)", keyFormat)
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

			priv, err := svc.PrivateKeyData(ctx, k.ID, password)
			if err != nil {
				return describeError(keyName, err)
			}

			keyBytes, err := wallet.ParsePrivateKey(priv.PrivateKey)
			if err != nil {
				return fmt.Errorf("stored key %q is not a valid private key: %w", keyName, err)
			}
			defer clearBytes(keyBytes)

			exported, err := wallet.FormatPrivateKey(keyBytes, format)
			if err != nil {
				return err
			}

			fmt.Println(exported)
			return nil
		})
	},
}

var keysLabelCmd = &cobra.Command{
	Use:   "label",
	Short: "Rename a key",
	Long: `Change the name of a key. The encrypted private key is not touched and no
password is needed.

Examples:
  keystore keys label --name mykey --new-name treasury`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateKeyName(keyNewName); err != nil {
			return err
		}

		return withKeyService(func(ctx context.Context, svc keyService, _ network.Config) error {
			k, err := resolveKey(ctx, svc, keyName)
			if err != nil {
				return err
			}
			if k.Public.Name == keyNewName {
				fmt.Printf("Key %q already has that name.\n", keyNewName)
				return nil
			}
			if err := ensureNameFree(ctx, svc, keyNewName); err != nil {
				return err
			}

			public := k.Public
			public.Name = keyNewName
			if err := svc.SavePublicKeyData(ctx, k.ID, public); err != nil {
				return describeError(keyName, err)
			}

			fmt.Printf("Key %q renamed to %q.\n", k.Public.Name, keyNewName)
			return nil
		})
	},
}

var keysPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change or remove the password of a key",
	Long: `Re-encrypt a key under a new password.

The current password is read from KEYSTORE_PASSWORD or prompted for. The new
password is read from KEYSTORE_NEW_PASSWORD or prompted for with confirmation.
Use --remove to store the key without a password (unsafe).

Examples:
  keystore keys passwd --name mykey
  keystore keys passwd --name mykey --remove`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(func(ctx context.Context, svc keyService, _ network.Config) error {
			k, err := resolveKey(ctx, svc, keyName)
			if err != nil {
				return err
			}

			oldPassword, err := unlockPassword(k)
			if err != nil {
				return err
			}
			defer clearBytes(oldPassword)

			var newPassword []byte
			if !keyRemovePass {
				newPassword, err = readNewPassword(newPasswordEnv, "new password")
				if err != nil {
					return err
				}
				defer clearBytes(newPassword)
			}

			if err := svc.ChangePassword(ctx, k.ID, oldPassword, newPassword); err != nil {
				return describeError(keyName, err)
			}

			if keyRemovePass {
				fmt.Printf("Password removed from key %q. The key is now stored unencrypted.\n", k.Public.Name)
			} else {
				fmt.Printf("Password changed for key %q.\n", k.Public.Name)
			}
			return nil
		})
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a stored key",
	Long: `Delete a key from the keystore.

This action is irreversible! Make sure you have a backup of your key.

Examples:
  keystore keys delete --name mykey
  keystore keys delete --name mykey --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyService(func(ctx context.Context, svc keyService, _ network.Config) error {
			k, err := resolveKey(ctx, svc, keyName)
			if err != nil {
				return err
			}

			if !keyForce {
				fmt.Printf("Are you sure you want to delete key %q? This cannot be undone.\n", k.Public.Name)
				fmt.Print("Type 'yes' to confirm: ")

				reader := bufio.NewReader(os.Stdin)
				response, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read response: %w", err)
				}

				if strings.TrimSpace(strings.ToLower(response)) != "yes" {
					fmt.Println("Deletion cancelled.")
					return nil
				}
			}

			if err := svc.RemoveKey(ctx, k.ID); err != nil {
				return describeError(keyName, err)
			}

			fmt.Printf("Key %q deleted successfully.\n", k.Public.Name)
			return nil
		})
	},
}

// withKeyService loads settings, opens the key service and runs fn under the operation context.
func withKeyService(fn func(ctx context.Context, svc keyService, net network.Config) error) error {
	cfg, log, err := loadSettings()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	net, err := network.GetConfig(cfg.Network)
	if err != nil {
		return err
	}

	ctx, cancel := getOperationContext(cfg)
	defer cancel()

	svc, err := openKeyService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(ctx, svc, net)
}

// storeKey saves keyBytes under a fresh key ID with public data for net.
func storeKey(ctx context.Context, svc keyService, net network.Config, name string, keyBytes, password []byte) (storedKey, error) {
	public, err := wallet.NewPublicKeyData(name, keyBytes, net, len(password) > 0)
	if err != nil {
		return storedKey{}, err
	}

	keyStr, err := wallet.FormatPrivateKey(keyBytes, wallet.FormatCB58)
	if err != nil {
		return storedKey{}, err
	}

	id := uuid.NewString()
	if err := svc.SaveKey(ctx, id, password, keystore.PrivateKeyData{PrivateKey: keyStr}, &public); err != nil {
		return storedKey{}, fmt.Errorf("failed to save key: %w", err)
	}
	return storedKey{ID: id, Public: public}, nil
}

func ensureNameFree(ctx context.Context, svc keyService, name string) error {
	taken, err := nameTaken(ctx, svc, name)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("key %q already exists. Use a different name or delete the existing key first", name)
	}
	return nil
}

func printKey(k storedKey) {
	fmt.Printf("  Name:          %s\n", k.Public.Name)
	fmt.Printf("  ID:            %s\n", k.ID)
	if k.Public.PublicKey != "" {
		fmt.Printf("  P-Chain:       %s\n", k.Public.PublicKey)
	}
	if k.Public.EVMAddress != "" {
		fmt.Printf("  EVM:           %s\n", k.Public.EVMAddress)
	}
	fmt.Printf("  Encrypted:     %v\n", k.Public.Password)
	fmt.Printf("  Network:       %s\n", networkLabel(k.Public))
	if k.Public.CosignerOf != "" {
		fmt.Printf("  Cosigner of:   %s\n", k.Public.CosignerOf)
	}
	if !k.Public.CreatedAt.IsZero() {
		fmt.Printf("  Created:       %s\n", k.Public.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
}

// countWeakKeys counts entries encrypted with less work than the current KDF settings.
func countWeakKeys(ctx context.Context, svc keyService, keys []storedKey) (int, error) {
	weak := 0
	for _, k := range keys {
		ok, err := svc.NeedsRehash(ctx, k.ID)
		if errors.Is(err, keystore.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to check key %q: %w", k.ID, err)
		}
		if ok {
			weak++
		}
	}
	return weak, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func networkLabel(p keystore.PublicKeyData) string {
	if p.Testnet {
		return "testnet"
	}
	return "mainnet"
}

func createdLabel(p keystore.PublicKeyData) string {
	if p.CreatedAt.IsZero() {
		return "-"
	}
	return p.CreatedAt.Format("2006-01-02")
}

// encryptionPassword returns the password for a new key, or nil when --encrypt=false.
func encryptionPassword() ([]byte, error) {
	if !keyEncrypt {
		fmt.Fprintln(os.Stderr, "WARNING: storing key without a password")
		return nil, nil
	}
	return readNewPassword(passwordEnv, "password")
}

// readNewPassword reads a password that will encrypt a key, from envVar or a confirmed prompt.
// The returned password must be cleared by the caller when no longer needed.
func readNewPassword(envVar, label string) ([]byte, error) {
	var password []byte
	if envPwd := os.Getenv(envVar); envPwd != "" {
		password = []byte(envPwd)
	} else {
		var err error
		password, err = promptPassword(label, true)
		if err != nil {
			return nil, err
		}
	}

	if len(password) < minPasswordLength {
		clearBytes(password)
		if os.Getenv(envVar) != "" {
			return nil, fmt.Errorf("%s must be at least %d characters", envVar, minPasswordLength)
		}
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return password, nil
}

// unlockPassword returns the password needed to decrypt k. Keys stored without a
// password use the empty password.
func unlockPassword(k storedKey) ([]byte, error) {
	if !k.Public.Password {
		return nil, nil
	}
	// Support non-interactive usage in scripts/CI.
	if envPwd := os.Getenv(passwordEnv); envPwd != "" {
		return []byte(envPwd), nil
	}
	return promptPassword("password", false)
}

// promptPassword prompts for a password. If confirm is true, asks for confirmation.
// The returned password must be cleared by the caller when no longer needed.
func promptPassword(label string, confirm bool) ([]byte, error) {
	fmt.Printf("Enter %s: ", label)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	if confirm {
		fmt.Printf("Confirm %s: ", label)
		confirmPwd, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			clearBytes(password)
			return nil, fmt.Errorf("failed to read password confirmation: %w", err)
		}

		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare(password, confirmPwd) != 1 {
			clearBytes(password)
			clearBytes(confirmPwd)
			return nil, fmt.Errorf("passwords do not match")
		}
		clearBytes(confirmPwd)
	}

	return password, nil
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysShowCmd)
	keysCmd.AddCommand(keysImportCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysExportCmd)
	keysCmd.AddCommand(keysLabelCmd)
	keysCmd.AddCommand(keysPasswdCmd)
	keysCmd.AddCommand(keysDeleteCmd)

	// Import flags
	keysImportCmd.Flags().StringVar(&keyName, "name", "", "Name for the key (required)")
	keysImportCmd.Flags().StringVarP(&keyPrivateKey, "private-key", "k", "", "Private key (PrivateKey-... or 0x... format; prefer the prompt or KEYSTORE_PRIVATE_KEY)")
	keysImportCmd.Flags().BoolVar(&keyEncrypt, "encrypt", true, "Encrypt the key with a password (default true)")

	// Generate flags
	keysGenerateCmd.Flags().StringVar(&keyName, "name", "", "Name for the key (required)")
	keysGenerateCmd.Flags().BoolVar(&keyEncrypt, "encrypt", true, "Encrypt the key with a password (default true)")

	// List flags
	keysListCmd.Flags().BoolVar(&showAddrs, "show-addresses", false, "Show P-Chain and EVM addresses")

	// Show flags
	keysShowCmd.Flags().StringVar(&keyName, "name", "", "Name or ID of the key (required)")

	// Export flags
	keysExportCmd.Flags().StringVar(&keyName, "name", "", "Name or ID of the key to export (required)")
	keysExportCmd.Flags().StringVar(&keyFormat, "format", "cb58", "Output format: cb58 or hex")

	// Label flags
	keysLabelCmd.Flags().StringVar(&keyName, "name", "", "Name or ID of the key to rename (required)")
	keysLabelCmd.Flags().StringVar(&keyNewName, "new-name", "", "New name for the key (required)")

	// Passwd flags
	keysPasswdCmd.Flags().StringVar(&keyName, "name", "", "Name or ID of the key (required)")
	keysPasswdCmd.Flags().BoolVar(&keyRemovePass, "remove", false, "Store the key without a password (unsafe)")

	// Delete flags
	keysDeleteCmd.Flags().StringVar(&keyName, "name", "", "Name or ID of the key to delete (required)")
	keysDeleteCmd.Flags().BoolVar(&keyForce, "force", false, "Skip confirmation prompt")
}
