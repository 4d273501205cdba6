package keystore

import (
	"bytes"
	"time"
)

// State is the full persisted keystore document, keyed by key ID.
type State map[string]KeyEntry

// KeyEntry is one password-protected key.
//
// The JSON layout matches the documents written by legacy desktop wallets,
// so existing keystores load without migration.
type KeyEntry struct {
	Metadata KDFParams     `json:"metadata"`
	Public   PublicKeyData `json:"public"`
	Private  []byte        `json:"private"` // secretbox ciphertext, base64 in JSON
}

// KDFParams holds everything needed to re-derive the encryption key of an entry.
type KDFParams struct {
	Nonce      []byte    `json:"nonce"`
	Iterations uint32    `json:"iterations"`
	Algorithm  Algorithm `json:"kdf,omitempty"`
	Salt       []byte    `json:"salt,omitempty"`
	MemoryKiB  uint32    `json:"memory,omitempty"`
	Threads    uint8     `json:"threads,omitempty"`
}

// PublicKeyData is the plaintext metadata of an entry. It never holds secrets.
type PublicKeyData struct {
	Name       string    `json:"name"`
	Password   bool      `json:"password"`
	PublicKey  string    `json:"publicKey"`
	Testnet    bool      `json:"testnet"`
	CosignerOf string    `json:"cosignerOf,omitempty"`
	EVMAddress string    `json:"evmAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// PrivateKeyData is the secret payload of an entry, stored encrypted.
type PrivateKeyData struct {
	PrivateKey string `json:"privateKey"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for id, entry := range s {
		out[id] = entry.clone()
	}
	return out
}

func (e KeyEntry) clone() KeyEntry {
	e.Private = bytes.Clone(e.Private)
	e.Metadata.Nonce = bytes.Clone(e.Metadata.Nonce)
	e.Metadata.Salt = bytes.Clone(e.Metadata.Salt)
	return e
}
