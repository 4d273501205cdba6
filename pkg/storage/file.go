package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
)

const (
	keystoreDir  = ".keystore"
	documentFile = "keys.json"
	lockFile     = "keys.lock"
)

// ErrLocked is returned by OpenFile when another process holds the keystore.
var ErrLocked = errors.New("keystore is locked by another process")

// File stores the keystore as a single JSON document on disk.
type File struct {
	dir  string
	lock *flock.Flock
}

// DefaultDir returns the default keystore directory (~/.keystore).
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, keystoreDir), nil
}

// OpenFile opens the keystore directory, creating it if needed, and takes the
// writer lock. An empty dir selects DefaultDir.
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to secure keystore directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock keystore: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	return &File{dir: dir, lock: lock}, nil
}

// Path returns the path of the JSON document.
func (f *File) Path() string {
	return filepath.Join(f.dir, documentFile)
}

// Load reads the document. A missing file is an empty keystore.
func (f *File) Load() (keystore.State, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return keystore.State{}, nil
		}
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}

	var state keystore.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse keystore: %w", err)
	}
	return emptyState(state), nil
}

// Persist replaces the document atomically.
func (f *File) Persist(state keystore.State) error {
	data, err := json.MarshalIndent(emptyState(state), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}
	if err := writeFileAtomic(f.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return nil
}

// Close releases the writer lock.
func (f *File) Close() error {
	return f.lock.Unlock()
}

// writeFileAtomic writes data to a temp file in the same directory, syncs it,
// and renames it over path. Readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return err
	}

	// Persist the rename itself. Not all platforms support syncing a directory.
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
