package cmd

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ava-labs/keystore-cli/internal/config"
	"github.com/ava-labs/keystore-cli/pkg/keystore"
	"github.com/ava-labs/keystore-cli/pkg/rpc"
	"github.com/ava-labs/keystore-cli/pkg/storage"
	"github.com/ava-labs/keystore-cli/pkg/wallet"
)

// keyService is the set of keystore operations the commands need.
// It is served either by a local keystore or by a remote keystore server.
type keyService interface {
	KeyIDs(ctx context.Context) ([]string, error)
	PublicKeyData(ctx context.Context, keyID string) (keystore.PublicKeyData, error)
	PrivateKeyData(ctx context.Context, keyID string, password []byte) (keystore.PrivateKeyData, error)
	SaveKey(ctx context.Context, keyID string, password []byte, privateData keystore.PrivateKeyData, publicData *keystore.PublicKeyData) error
	SavePublicKeyData(ctx context.Context, keyID string, publicData keystore.PublicKeyData) error
	RemoveKey(ctx context.Context, keyID string) error
	ChangePassword(ctx context.Context, keyID string, oldPassword, newPassword []byte) error
	SignHash(ctx context.Context, keyID string, password, digest []byte) ([]byte, error)
	NeedsRehash(ctx context.Context, keyID string) (bool, error)
	Close() error
}

var _ keyService = (*rpc.Client)(nil)

// localService adapts a Keystore backed by local storage.
type localService struct {
	ks      *keystore.Keystore
	backend storage.Backend
}

func (s *localService) KeyIDs(context.Context) ([]string, error) {
	return s.ks.KeyIDs(), nil
}

func (s *localService) PublicKeyData(_ context.Context, keyID string) (keystore.PublicKeyData, error) {
	return s.ks.PublicKeyData(keyID)
}

func (s *localService) PrivateKeyData(_ context.Context, keyID string, password []byte) (keystore.PrivateKeyData, error) {
	return s.ks.PrivateKeyData(keyID, password)
}

func (s *localService) SaveKey(_ context.Context, keyID string, password []byte, privateData keystore.PrivateKeyData, publicData *keystore.PublicKeyData) error {
	return s.ks.SaveKey(keyID, password, privateData, publicData)
}

func (s *localService) SavePublicKeyData(_ context.Context, keyID string, publicData keystore.PublicKeyData) error {
	return s.ks.SavePublicKeyData(keyID, publicData)
}

func (s *localService) RemoveKey(_ context.Context, keyID string) error {
	return s.ks.RemoveKey(keyID)
}

func (s *localService) ChangePassword(_ context.Context, keyID string, oldPassword, newPassword []byte) error {
	return s.ks.ChangePassword(keyID, oldPassword, newPassword)
}

func (s *localService) SignHash(_ context.Context, keyID string, password, digest []byte) ([]byte, error) {
	return wallet.SignWithKey(s.ks, keyID, password, digest)
}

func (s *localService) NeedsRehash(_ context.Context, keyID string) (bool, error) {
	return s.ks.NeedsRehash(keyID)
}

func (s *localService) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// openKeystore loads the configured backend into a Keystore that persists back to it.
// The caller must close the returned backend.
func openKeystore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*keystore.Keystore, storage.Backend, error) {
	kdf, err := cfg.KDFConfig()
	if err != nil {
		return nil, nil, err
	}

	backend, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	state, err := backend.Load()
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("failed to load keystore: %w", err)
	}

	ks := keystore.New(backend, state, keystore.WithKDF(kdf), keystore.WithLogger(log))
	log.Debug("keystore loaded",
		zap.String("backend", cfg.Backend),
		zap.Int("keys", ks.Len()),
		zap.String("kdf", string(ks.KDF().Algorithm)))
	return ks, backend, nil
}

// openKeyService connects to the configured keystore server, or opens local storage.
func openKeyService(ctx context.Context, cfg *config.Config, log *zap.Logger) (keyService, error) {
	if cfg.RPC.Remote != "" {
		client, err := rpc.Dial(cfg.RPC.Remote, cfg.RPC.Token)
		if err != nil {
			return nil, err
		}
		log.Debug("using remote keystore", zap.String("remote", cfg.RPC.Remote))
		return client, nil
	}

	ks, backend, err := openKeystore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &localService{ks: ks, backend: backend}, nil
}

// keyNamePattern restricts key names to a safe subset (1-64 chars).
var keyNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// validateKeyName validates a human-readable key name.
func validateKeyName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("key name cannot be empty")
	}
	if !keyNamePattern.MatchString(name) {
		return fmt.Errorf("invalid key name %q: use 1-64 characters [a-zA-Z0-9._-], starting with alphanumeric", name)
	}
	return nil
}

// storedKey is an entry as seen by the commands.
type storedKey struct {
	ID     string
	Public keystore.PublicKeyData
}

// listKeys returns every entry with its public data.
func listKeys(ctx context.Context, svc keyService) ([]storedKey, error) {
	ids, err := svc.KeyIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	keys := make([]storedKey, 0, len(ids))
	for _, id := range ids {
		public, err := svc.PublicKeyData(ctx, id)
		if errors.Is(err, keystore.ErrKeyNotFound) {
			// Removed concurrently.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read key %q: %w", id, err)
		}
		keys = append(keys, storedKey{ID: id, Public: public})
	}
	return keys, nil
}

// resolveKey finds an entry by key ID or by its unique name.
func resolveKey(ctx context.Context, svc keyService, ref string) (storedKey, error) {
	if ref == "" {
		return storedKey{}, fmt.Errorf("--name is required")
	}

	public, err := svc.PublicKeyData(ctx, ref)
	if err == nil {
		return storedKey{ID: ref, Public: public}, nil
	}
	if !errors.Is(err, keystore.ErrKeyNotFound) {
		return storedKey{}, err
	}

	if err := validateKeyName(ref); err != nil {
		return storedKey{}, err
	}

	keys, err := listKeys(ctx, svc)
	if err != nil {
		return storedKey{}, err
	}

	var matches []storedKey
	for _, k := range keys {
		if k.Public.Name == ref {
			matches = append(matches, k)
		}
	}

	switch len(matches) {
	case 0:
		return storedKey{}, fmt.Errorf("key %q not found", ref)
	case 1:
		return matches[0], nil
	default:
		return storedKey{}, fmt.Errorf("key name %q is ambiguous (%d keys); use the key ID", ref, len(matches))
	}
}

// nameTaken reports whether any entry already uses name.
func nameTaken(ctx context.Context, svc keyService, name string) (bool, error) {
	keys, err := listKeys(ctx, svc)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k.Public.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// describeError rewrites keystore errors for display, naming the key as the user typed it.
func describeError(ref string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keystore.ErrWrongPassword):
		return errors.New("wrong password")
	case errors.Is(err, keystore.ErrKeyNotFound):
		return fmt.Errorf("key %q not found", ref)
	default:
		return err
	}
}
