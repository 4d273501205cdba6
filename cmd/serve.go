package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ava-labs/keystore-cli/internal/config"
	"github.com/ava-labs/keystore-cli/internal/logger"
	"github.com/ava-labs/keystore-cli/pkg/rpc"
)

const shutdownTimeout = 10 * time.Second

var (
	// serve flags
	serveListen string
	serveToken  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the keystore over gRPC",
	Long: `Run a keystore server so that other processes can use keys without reading
the keystore file. Clients pass --remote (or KEYSTORE_RPC_REMOTE) and the same token.

Passwords travel inside requests. Bind to loopback or put the server behind TLS.

Examples:
  keystore serve --token s3cret
  keystore serve --listen 127.0.0.1:50551 --backend badger`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadSettings()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if cfg.RPC.Remote != "" {
			return fmt.Errorf("serve uses local storage; unset --remote")
		}
		if serveListen != "" {
			cfg.RPC.Listen = serveListen
		}
		if serveToken != "" {
			cfg.RPC.Token = serveToken
		}
		if logLevel == "" && os.Getenv(config.EnvPrefix+"LOG_LEVEL") == "" {
			// The server reports its address and requests at info.
			if log, err = logger.New("info", cfg.Log.Format, os.Stderr); err != nil {
				return err
			}
		}
		if cfg.RPC.Token == "" {
			log.Warn("no token configured; any local process can use the keystore server")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ks, backend, err := openKeystore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer backend.Close()

		srv := rpc.NewServer(ks, cfg.RPC.Listen, rpc.WithToken(cfg.RPC.Token), rpc.WithServerLogger(log))

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("keystore server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down keystore server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Warn("forced keystore server shutdown", zap.Error(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default: 127.0.0.1:50551)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token required from clients")
}
