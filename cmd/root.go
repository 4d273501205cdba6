package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ava-labs/keystore-cli/internal/config"
	"github.com/ava-labs/keystore-cli/internal/logger"
)

// defaultOperationTimeout applies when KEYSTORE_TIMEOUT is not positive.
const defaultOperationTimeout = 2 * time.Minute

var (
	// Global flags. Empty values fall back to KEYSTORE_* configuration.
	keystoreDir string
	backendName string
	networkName string
	remoteAddr  string
	logLevel    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "keystore",
	Short:         "Password-protected local keystore",
	SilenceErrors: true,
	SilenceUsage:  true,
	Long: `Store secp256k1 private keys encrypted under a password and sign with them.

Example usage:
  keystore keys generate --name mykey
  keystore keys list --show-addresses
  keystore sign --name mykey --message "hello"
  keystore serve --token s3cret

Environment Variables:
  KEYSTORE_PASSWORD        Password for encrypted keys (safer than prompting in scripts)
  KEYSTORE_DIR             Keystore directory (default: ~/.keystore)
  KEYSTORE_BACKEND         Storage backend: file, badger or object (default: file)
  KEYSTORE_NETWORK         Address network: mainnet, fuji or local (default: fuji)
  KEYSTORE_TIMEOUT         Operation timeout duration (e.g., "5m", "30s", default: 2m)
  KEYSTORE_RPC_REMOTE      Use a running 'keystore serve' instead of local storage
  KEYSTORE_RPC_TOKEN       Bearer token for the keystore server
  KEYSTORE_KDF_ALGORITHM   Key derivation for new keys: argon2id or pbkdf2-sha256`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&keystoreDir, "keystore-dir", "", "Keystore directory (default: ~/.keystore)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Storage backend: file, badger or object")
	rootCmd.PersistentFlags().StringVarP(&networkName, "network", "n", "", "Network used to format addresses: mainnet, fuji or local")
	rootCmd.PersistentFlags().StringVar(&remoteAddr, "remote", "", "Address of a keystore server to use instead of local storage")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// loadSettings reads KEYSTORE_* configuration, applies command line overrides
// and builds the logger.
func loadSettings() (*config.Config, *zap.Logger, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, err
	}

	if keystoreDir != "" {
		cfg.Dir = keystoreDir
	}
	if backendName != "" {
		cfg.Backend = backendName
	}
	if networkName != "" {
		cfg.Network = networkName
	}
	if remoteAddr != "" {
		cfg.RPC.Remote = remoteAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// getOperationContext returns a context with timeout and signal handling.
// The context will be cancelled on SIGINT/SIGTERM or when the timeout expires.
// The returned cancel function must be called to release resources.
func getOperationContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nOperation cancelled by user")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
