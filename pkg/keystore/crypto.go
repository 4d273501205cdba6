package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm identifies the password-based key derivation function of an entry.
type Algorithm string

const (
	// AlgorithmPBKDF2SHA256 is PBKDF2 with HMAC-SHA256, as used by legacy keystores.
	AlgorithmPBKDF2SHA256 Algorithm = "pbkdf2-sha256"
	// AlgorithmArgon2id is Argon2id, the default for new entries.
	AlgorithmArgon2id Algorithm = "argon2id"
)

const (
	// Argon2id parameters - these are the OWASP recommended values
	argon2Time    = 3         // Number of iterations
	argon2Memory  = 64 * 1024 // Memory in KiB (64 MiB)
	argon2Threads = 4         // Number of threads

	// DefaultPBKDF2Iterations is the iteration count of legacy keystores.
	DefaultPBKDF2Iterations = 10000

	// Upper bounds on work factors read from a stored document.
	maxArgon2Time       = 100
	maxArgon2MemoryKiB  = 1 << 22 // 4 GiB
	maxArgon2Threads    = 64
	maxPBKDF2Iterations = 10_000_000

	keyLen    = 32 // secretbox key size
	saltSize  = 16 // 128 bits
	nonceSize = 24 // secretbox nonce size
)

// errDecrypt is returned by open for any failure. Callers turn it into a WrongPasswordError.
var errDecrypt = errors.New("decryption failed")

// KDFConfig is the work factor used when new entries are encrypted.
type KDFConfig struct {
	Algorithm  Algorithm
	Iterations uint32
	MemoryKiB  uint32
	Threads    uint8
}

// DefaultKDFConfig returns the Argon2id parameters used for new entries.
func DefaultKDFConfig() KDFConfig {
	return KDFConfig{
		Algorithm:  AlgorithmArgon2id,
		Iterations: argon2Time,
		MemoryKiB:  argon2Memory,
		Threads:    argon2Threads,
	}
}

// PBKDF2Config returns a PBKDF2-SHA256 configuration with the given iteration count.
func PBKDF2Config(iterations uint32) KDFConfig {
	if iterations == 0 {
		iterations = DefaultPBKDF2Iterations
	}
	return KDFConfig{Algorithm: AlgorithmPBKDF2SHA256, Iterations: iterations}
}

// Validate checks that the configuration can derive keys within the supported work bounds.
func (c KDFConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmPBKDF2SHA256:
		if c.Iterations == 0 || c.Iterations > maxPBKDF2Iterations {
			return fmt.Errorf("pbkdf2 iterations must be between 1 and %d", maxPBKDF2Iterations)
		}
	case AlgorithmArgon2id:
		if c.Iterations == 0 || c.MemoryKiB == 0 || c.Threads == 0 {
			return fmt.Errorf("argon2id time, memory and threads must be positive")
		}
		if c.Iterations > maxArgon2Time || c.MemoryKiB > maxArgon2MemoryKiB || c.Threads > maxArgon2Threads {
			return fmt.Errorf("argon2id parameters exceed limits (time %d, memory %d KiB, threads %d)",
				maxArgon2Time, maxArgon2MemoryKiB, maxArgon2Threads)
		}
	default:
		return fmt.Errorf("unsupported kdf algorithm %q", c.Algorithm)
	}
	return nil
}

// strength orders algorithms; Argon2id is memory-hard and ranks above PBKDF2.
func strength(alg Algorithm) int {
	switch alg {
	case AlgorithmArgon2id:
		return 2
	case "", AlgorithmPBKDF2SHA256:
		return 1
	default:
		return 0
	}
}

// weakerThan reports whether params were derived with less work than c.
// An entry under a stronger algorithm than c is never weaker.
func (c KDFConfig) weakerThan(params KDFParams) bool {
	alg := params.Algorithm
	if alg == "" {
		alg = AlgorithmPBKDF2SHA256
	}
	if alg != c.Algorithm {
		return strength(alg) < strength(c.Algorithm)
	}
	if params.Iterations < c.Iterations {
		return true
	}
	return alg == AlgorithmArgon2id && params.MemoryKiB < c.MemoryKiB
}

// GenerateSalt generates a random salt for key derivation.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateNonce generates a random nonce for secretbox.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// withinLimits reports whether stored params can be derived without unbounded work.
func withinLimits(params KDFParams) bool {
	switch params.Algorithm {
	case "", AlgorithmPBKDF2SHA256:
		return params.Iterations <= maxPBKDF2Iterations
	case AlgorithmArgon2id:
		return params.Iterations <= maxArgon2Time &&
			params.MemoryKiB <= maxArgon2MemoryKiB &&
			params.Threads <= maxArgon2Threads
	default:
		return false
	}
}

// DeriveKey derives the secretbox key for params from a password.
// The caller must clear the returned slice.
func DeriveKey(password []byte, params KDFParams) ([]byte, error) {
	switch params.Algorithm {
	case "", AlgorithmPBKDF2SHA256:
		if params.Iterations == 0 {
			return nil, fmt.Errorf("invalid iteration count")
		}
		salt := params.Salt
		if params.Algorithm == "" && len(salt) == 0 {
			// Legacy entries salt PBKDF2 with the base64 text of the nonce.
			salt = []byte(base64.StdEncoding.EncodeToString(params.Nonce))
		}
		return pbkdf2.Key(password, salt, int(params.Iterations), keyLen, sha256.New), nil
	case AlgorithmArgon2id:
		if params.Iterations == 0 || params.MemoryKiB == 0 || params.Threads == 0 || len(params.Salt) == 0 {
			return nil, fmt.Errorf("invalid argon2id parameters")
		}
		return argon2.IDKey(password, params.Salt, params.Iterations, params.MemoryKiB, params.Threads, keyLen), nil
	default:
		return nil, fmt.Errorf("unsupported kdf algorithm %q", params.Algorithm)
	}
}

// newParams creates fresh derivation parameters with a new random salt and nonce.
func newParams(cfg KDFConfig) (KDFParams, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return KDFParams{}, err
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return KDFParams{}, err
	}
	params := KDFParams{
		Nonce:      nonce,
		Iterations: cfg.Iterations,
		Algorithm:  cfg.Algorithm,
		Salt:       salt,
	}
	if cfg.Algorithm == AlgorithmArgon2id {
		params.MemoryKiB = cfg.MemoryKiB
		params.Threads = cfg.Threads
	}
	return params, nil
}

// Encrypt seals plaintext under a key derived from password with fresh parameters.
func Encrypt(plaintext, password []byte, cfg KDFConfig) (KDFParams, []byte, error) {
	params, err := newParams(cfg)
	if err != nil {
		return KDFParams{}, nil, err
	}

	derived, err := DeriveKey(password, params)
	if err != nil {
		return KDFParams{}, nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clearBytes(derived)

	var key [keyLen]byte
	copy(key[:], derived)
	defer clearBytes(key[:])

	var nonce [nonceSize]byte
	copy(nonce[:], params.Nonce)

	return params, secretbox.Seal(nil, plaintext, &nonce, &key), nil
}

// Decrypt opens ciphertext with a key derived from password and params.
// Every failure, including malformed parameters, returns the same error.
// The caller must clear the returned plaintext.
func Decrypt(params KDFParams, ciphertext, password []byte) ([]byte, error) {
	if len(params.Nonce) != nonceSize || len(ciphertext) < secretbox.Overhead || !withinLimits(params) {
		return nil, errDecrypt
	}

	derived, err := DeriveKey(password, params)
	if err != nil {
		return nil, errDecrypt
	}
	defer clearBytes(derived)

	var key [keyLen]byte
	copy(key[:], derived)
	defer clearBytes(key[:])

	var nonce [nonceSize]byte
	copy(nonce[:], params.Nonce)

	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, errDecrypt
	}
	return plaintext, nil
}

// clearBytes zeros a byte slice holding sensitive data.
func clearBytes(b []byte) {
	memguard.WipeBytes(b)
}
