// Package storage provides persistence backends for the keystore document.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendObject = "object"
)

// DefaultTimeout bounds remote backend operations.
const DefaultTimeout = 10 * time.Second

// Backend loads and persists the complete keystore document.
type Backend interface {
	keystore.Persister
	// Load returns the stored document, or an empty one when nothing is stored yet.
	Load() (keystore.State, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend   string
	Dir       string
	BadgerDir string
	Object    ObjectConfig
	Timeout   time.Duration
}

// Open opens the backend named by cfg.Backend. An empty name selects the file backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return OpenFile(cfg.Dir)
	case BackendBadger:
		dir := cfg.BadgerDir
		if dir == "" {
			dir = cfg.Dir
		}
		return OpenBadger(BadgerConfig{Dir: dir})
	case BackendObject:
		objCfg := cfg.Object
		if objCfg.Timeout == 0 {
			objCfg.Timeout = cfg.Timeout
		}
		return OpenObject(ctx, objCfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q (use file, badger or object)", cfg.Backend)
	}
}

func emptyState(state keystore.State) keystore.State {
	if state == nil {
		return keystore.State{}
	}
	return state
}
