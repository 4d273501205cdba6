package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v3"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
)

// entryPrefix namespaces keystore entries inside the database.
const entryPrefix = "key/"

// BadgerConfig configures the embedded database backend.
type BadgerConfig struct {
	Dir      string
	InMemory bool
}

// Badger stores one database record per keystore entry.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens or creates the database.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			dir, err := DefaultDir()
			if err != nil {
				return nil, err
			}
			cfg.Dir = dir + "-badger"
		}
		if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &Badger{db: db}, nil
}

// Load reads every entry record.
func (b *Badger) Load() (keystore.State, error) {
	state := keystore.State{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			keyID := strings.TrimPrefix(string(item.Key()), entryPrefix)
			if keyID == "" {
				continue
			}

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var entry keystore.KeyEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				return fmt.Errorf("failed to parse entry %q: %w", keyID, err)
			}
			state[keyID] = entry
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load keystore: %w", err)
	}
	return state, nil
}

// Persist writes all entries and deletes records of removed entries in one transaction.
func (b *Badger) Persist(state keystore.State) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		stale, err := existingKeys(txn)
		if err != nil {
			return err
		}

		for keyID, entry := range state {
			value, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal entry %q: %w", keyID, err)
			}
			if err := txn.Set([]byte(entryPrefix+keyID), value); err != nil {
				return err
			}
			delete(stale, keyID)
		}

		for keyID := range stale {
			if err := txn.Delete([]byte(entryPrefix + keyID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist keystore: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func existingKeys(txn *badger.Txn) (map[string]struct{}, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(entryPrefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	keys := make(map[string]struct{})
	for it.Rewind(); it.Valid(); it.Next() {
		keys[strings.TrimPrefix(string(it.Item().KeyCopy(nil)), entryPrefix)] = struct{}{}
	}
	return keys, nil
}
