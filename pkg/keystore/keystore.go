// Package keystore stores private keys encrypted under user passwords.
//
// Each entry carries plaintext public metadata and a secretbox ciphertext of its
// private data. Encryption keys are derived from the password with Argon2id or
// PBKDF2-SHA256 and a fresh random salt on every save. Every mutation hands the
// complete updated State to the injected Persister.
//
// Derived keys and decrypted plaintext buffers are wiped after use. This is best
// effort: strings and buffers copied by the runtime or by callers are out of reach.
package keystore

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Persister writes the complete keystore document to durable storage.
type Persister interface {
	Persist(state State) error
}

// PersistFunc adapts a function to the Persister interface.
type PersistFunc func(state State) error

// Persist calls f(state).
func (f PersistFunc) Persist(state State) error {
	return f(state)
}

// Option configures a Keystore.
type Option func(*Keystore)

// WithKDF sets the work factor used for all future saves.
func WithKDF(cfg KDFConfig) Option {
	return func(ks *Keystore) {
		ks.kdf = cfg
	}
}

// WithLogger sets the logger. Only operation names and key IDs are logged.
func WithLogger(log *zap.Logger) Option {
	return func(ks *Keystore) {
		ks.log = log
	}
}

// Keystore manages password-protected key entries.
// It is safe for concurrent use; mutations are serialized.
type Keystore struct {
	mu        sync.RWMutex
	state     State
	persister Persister
	kdf       KDFConfig
	log       *zap.Logger
}

// New creates a keystore seeded with initial, which is copied.
// A nil initial state is treated as empty. An entry stored under an empty key ID is dropped.
func New(persister Persister, initial State, opts ...Option) *Keystore {
	ks := &Keystore{
		state:     initial.Clone(),
		persister: persister,
		kdf:       DefaultKDFConfig(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ks)
	}
	if _, ok := ks.state[""]; ok {
		ks.log.Warn("dropping entry with empty key ID")
		delete(ks.state, "")
	}
	return ks
}

// KDF returns the work factor used for new saves.
func (ks *Keystore) KDF() KDFConfig {
	return ks.kdf
}

// KeyIDs returns all key IDs in map iteration order.
func (ks *Keystore) KeyIDs() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	ids := make([]string, 0, len(ks.state))
	for id := range ks.state {
		ids = append(ids, id)
	}
	return ids
}

// Has reports whether an entry exists for keyID.
func (ks *Keystore) Has(keyID string) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	_, ok := ks.state[keyID]
	return ok
}

// Len returns the number of entries.
func (ks *Keystore) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.state)
}

// State returns a deep copy of the current document.
func (ks *Keystore) State() State {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.state.Clone()
}

// PublicKeyData returns the plaintext metadata of an entry.
func (ks *Keystore) PublicKeyData(keyID string) (PublicKeyData, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	entry, ok := ks.state[keyID]
	if !ok {
		return PublicKeyData{}, errKeyNotFound(keyID)
	}
	return entry.Public, nil
}

// PrivateKeyData decrypts the private data of an entry.
// A wrong password and a corrupted entry both yield a WrongPasswordError.
func (ks *Keystore) PrivateKeyData(keyID string, password []byte) (PrivateKeyData, error) {
	ks.mu.RLock()
	entry, ok := ks.state[keyID]
	if ok {
		entry = entry.clone()
	}
	ks.mu.RUnlock()

	if !ok {
		return PrivateKeyData{}, errKeyNotFound(keyID)
	}

	ks.log.Debug("decrypting key", zap.String("key_id", keyID))
	return decryptEntry(keyID, entry, password)
}

// NeedsRehash reports whether an entry was encrypted with less work than the current KDF configuration.
// Entries are never upgraded implicitly; a save or password change re-encrypts with current parameters.
func (ks *Keystore) NeedsRehash(keyID string) (bool, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	entry, ok := ks.state[keyID]
	if !ok {
		return false, errKeyNotFound(keyID)
	}
	return ks.kdf.weakerThan(entry.Metadata), nil
}

// SaveKey encrypts privateData under password and stores it as keyID, replacing any existing entry.
// If publicData is nil the existing public data is kept; a new entry requires publicData.
func (ks *Keystore) SaveKey(keyID string, password []byte, privateData PrivateKeyData, publicData *PublicKeyData) error {
	if keyID == "" {
		return errInvalidArgument(keyID, "key ID must not be empty")
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	var public PublicKeyData
	if publicData != nil {
		public = *publicData
	} else {
		existing, ok := ks.state[keyID]
		if !ok {
			return errInvalidArgument(keyID, "public data is required for a new key")
		}
		public = existing.Public
	}

	entry, err := ks.encryptEntry(password, privateData, public)
	if err != nil {
		return err
	}

	ks.state[keyID] = entry
	ks.log.Debug("saved key", zap.String("key_id", keyID), zap.String("kdf", string(entry.Metadata.Algorithm)))
	return ks.persist()
}

// SavePublicKeyData replaces the public data of an existing entry. The ciphertext is left untouched.
func (ks *Keystore) SavePublicKeyData(keyID string, publicData PublicKeyData) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	entry, ok := ks.state[keyID]
	if !ok {
		return errKeyNotFound(keyID)
	}
	entry.Public = publicData
	ks.state[keyID] = entry

	ks.log.Debug("saved public key data", zap.String("key_id", keyID))
	return ks.persist()
}

// RemoveKey deletes an entry. Removing an absent key succeeds without persisting.
func (ks *Keystore) RemoveKey(keyID string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, ok := ks.state[keyID]; !ok {
		return nil
	}
	delete(ks.state, keyID)

	ks.log.Debug("removed key", zap.String("key_id", keyID))
	return ks.persist()
}

// ChangePassword re-encrypts an entry under newPassword with fresh parameters.
// The private data is unchanged; the public password flag follows newPassword.
func (ks *Keystore) ChangePassword(keyID string, oldPassword, newPassword []byte) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	entry, ok := ks.state[keyID]
	if !ok {
		return errKeyNotFound(keyID)
	}

	privateData, err := decryptEntry(keyID, entry, oldPassword)
	if err != nil {
		return err
	}

	public := entry.Public
	public.Password = len(newPassword) > 0

	updated, err := ks.encryptEntry(newPassword, privateData, public)
	if err != nil {
		return err
	}

	ks.state[keyID] = updated
	ks.log.Debug("changed key password", zap.String("key_id", keyID))
	return ks.persist()
}

// RemovePassword re-encrypts an entry under the empty password.
func (ks *Keystore) RemovePassword(keyID string, oldPassword []byte) error {
	return ks.ChangePassword(keyID, oldPassword, nil)
}

// persist hands a copy of the state to the persister. Must be called with mu held.
// The in-memory state is not rolled back on failure.
func (ks *Keystore) persist() error {
	if ks.persister == nil {
		return nil
	}
	if err := ks.persister.Persist(ks.state.Clone()); err != nil {
		ks.log.Warn("failed to persist keystore", zap.Error(err))
		return errPersistence(err)
	}
	return nil
}

func (ks *Keystore) encryptEntry(password []byte, privateData PrivateKeyData, public PublicKeyData) (KeyEntry, error) {
	if err := ks.kdf.Validate(); err != nil {
		return KeyEntry{}, errInvalidArgument("", err.Error())
	}

	plaintext, err := json.Marshal(privateData)
	if err != nil {
		return KeyEntry{}, errInvalidArgument("", "failed to encode private data")
	}
	defer clearBytes(plaintext)

	params, ciphertext, err := Encrypt(plaintext, password, ks.kdf)
	if err != nil {
		return KeyEntry{}, err
	}

	return KeyEntry{
		Metadata: params,
		Public:   public,
		Private:  ciphertext,
	}, nil
}

func decryptEntry(keyID string, entry KeyEntry, password []byte) (PrivateKeyData, error) {
	plaintext, err := Decrypt(entry.Metadata, entry.Private, password)
	if err != nil {
		return PrivateKeyData{}, errWrongPassword(keyID)
	}
	defer clearBytes(plaintext)

	var privateData PrivateKeyData
	if err := json.Unmarshal(plaintext, &privateData); err != nil {
		return PrivateKeyData{}, errWrongPassword(keyID)
	}
	return privateData, nil
}
