package keystore

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/nacl/secretbox"
)

// testArgon2 keeps argon2id cheap enough for unit tests.
var testArgon2 = KDFConfig{Algorithm: AlgorithmArgon2id, Iterations: 1, MemoryKiB: 8 * 1024, Threads: 1}

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	if len(salt1) != saltSize {
		t.Errorf("GenerateSalt() length = %d, want %d", len(salt1), saltSize)
	}

	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() second call error = %v", err)
	}
	if bytes.Equal(salt1, salt2) {
		t.Error("GenerateSalt() returned identical salts")
	}
}

func TestGenerateNonce(t *testing.T) {
	nonce1, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce() error = %v", err)
	}
	if len(nonce1) != nonceSize {
		t.Errorf("GenerateNonce() length = %d, want %d", len(nonce1), nonceSize)
	}

	nonce2, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce() second call error = %v", err)
	}
	if bytes.Equal(nonce1, nonce2) {
		t.Error("GenerateNonce() returned identical nonces")
	}
}

func TestDeriveKey(t *testing.T) {
	password := []byte("testpassword123")

	tests := []struct {
		name   string
		params KDFParams
	}{
		{
			name:   "pbkdf2",
			params: KDFParams{Algorithm: AlgorithmPBKDF2SHA256, Iterations: 1000, Salt: make([]byte, saltSize)},
		},
		{
			name: "argon2id",
			params: KDFParams{
				Algorithm:  AlgorithmArgon2id,
				Iterations: testArgon2.Iterations,
				MemoryKiB:  testArgon2.MemoryKiB,
				Threads:    testArgon2.Threads,
				Salt:       make([]byte, saltSize),
			},
		},
		{
			name:   "legacy pbkdf2 salted with nonce",
			params: KDFParams{Iterations: 1000, Nonce: make([]byte, nonceSize)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey(password, tt.params)
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if len(key) != keyLen {
				t.Errorf("DeriveKey() length = %d, want %d", len(key), keyLen)
			}

			// Same password and parameters should produce same key
			key2, err := DeriveKey(password, tt.params)
			if err != nil {
				t.Fatalf("DeriveKey() second call error = %v", err)
			}
			if !bytes.Equal(key, key2) {
				t.Error("DeriveKey() with same inputs produced different keys")
			}

			key3, err := DeriveKey([]byte("differentpassword"), tt.params)
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if bytes.Equal(key, key3) {
				t.Error("DeriveKey() with different password produced same key")
			}
		})
	}
}

func TestDeriveKeyDifferentSalt(t *testing.T) {
	password := []byte("testpassword123")
	params := KDFParams{Algorithm: AlgorithmPBKDF2SHA256, Iterations: 1000, Salt: make([]byte, saltSize)}

	key1, err := DeriveKey(password, params)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	params.Salt = bytes.Clone(params.Salt)
	params.Salt[0] = 1
	key2, err := DeriveKey(password, params)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if bytes.Equal(key1, key2) {
		t.Error("DeriveKey() with different salt produced same key")
	}
}

func TestDeriveKeyInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params KDFParams
	}{
		{"zero iterations", KDFParams{Algorithm: AlgorithmPBKDF2SHA256, Salt: []byte("salt")}},
		{"argon2 missing memory", KDFParams{Algorithm: AlgorithmArgon2id, Iterations: 1, Threads: 1, Salt: []byte("salt")}},
		{"argon2 missing salt", KDFParams{Algorithm: AlgorithmArgon2id, Iterations: 1, MemoryKiB: 1024, Threads: 1}},
		{"unknown algorithm", KDFParams{Algorithm: "scrypt", Iterations: 1, Salt: []byte("salt")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveKey([]byte("pw"), tt.params); err == nil {
				t.Error("DeriveKey() expected error")
			}
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
		password  []byte
		cfg       KDFConfig
	}{
		{
			name:      "simple text",
			plaintext: []byte("hello world"),
			password:  []byte("password123"),
			cfg:       PBKDF2Config(1000),
		},
		{
			name:      "private key bytes",
			plaintext: make([]byte, 32),
			password:  []byte("strongpassword!@#$"),
			cfg:       testArgon2,
		},
		{
			name:      "empty plaintext",
			plaintext: []byte{},
			password:  []byte("password"),
			cfg:       PBKDF2Config(1000),
		},
		{
			name:      "empty password",
			plaintext: []byte("test data"),
			password:  nil,
			cfg:       PBKDF2Config(1000),
		},
		{
			name:      "long password",
			plaintext: []byte("test data"),
			password:  []byte("this is a very long password that exceeds typical length requirements"),
			cfg:       testArgon2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, ciphertext, err := Encrypt(tt.plaintext, tt.password, tt.cfg)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if params.Algorithm != tt.cfg.Algorithm {
				t.Errorf("Encrypt() algorithm = %q, want %q", params.Algorithm, tt.cfg.Algorithm)
			}
			if len(ciphertext) != len(tt.plaintext)+secretbox.Overhead {
				t.Errorf("Encrypt() ciphertext length = %d, want %d", len(ciphertext), len(tt.plaintext)+secretbox.Overhead)
			}

			decrypted, err := Decrypt(params, ciphertext, tt.password)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted, tt.plaintext) {
				t.Errorf("Decrypt() = %v, want %v", decrypted, tt.plaintext)
			}
		})
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	params, ciphertext, err := Encrypt([]byte("secret data"), []byte("correctpassword"), PBKDF2Config(1000))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := Decrypt(params, ciphertext, []byte("wrongpassword")); err != errDecrypt {
		t.Errorf("Decrypt() with wrong password error = %v, want errDecrypt", err)
	}
}

func TestDecryptTampered(t *testing.T) {
	password := []byte("password")
	params, ciphertext, err := Encrypt([]byte("secret data"), password, PBKDF2Config(1000))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tests := []struct {
		name       string
		params     KDFParams
		ciphertext []byte
	}{
		{
			name:       "flipped ciphertext bit",
			params:     params,
			ciphertext: func() []byte { c := bytes.Clone(ciphertext); c[len(c)-1] ^= 0x01; return c }(),
		},
		{
			name:       "truncated ciphertext",
			params:     params,
			ciphertext: ciphertext[:secretbox.Overhead-1],
		},
		{
			name:       "short nonce",
			params:     KDFParams{Algorithm: params.Algorithm, Iterations: params.Iterations, Salt: params.Salt, Nonce: params.Nonce[:8]},
			ciphertext: ciphertext,
		},
		{
			name:       "changed salt",
			params:     KDFParams{Algorithm: params.Algorithm, Iterations: params.Iterations, Salt: make([]byte, saltSize), Nonce: params.Nonce},
			ciphertext: ciphertext,
		},
		{
			name:       "unknown algorithm",
			params:     KDFParams{Algorithm: "md5", Iterations: params.Iterations, Salt: params.Salt, Nonce: params.Nonce},
			ciphertext: ciphertext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.params, tt.ciphertext, password); err != errDecrypt {
				t.Errorf("Decrypt() error = %v, want errDecrypt", err)
			}
		})
	}
}

func TestDecryptExcessiveWorkFactor(t *testing.T) {
	password := []byte("password")
	params, ciphertext, err := Encrypt([]byte("secret data"), password, testArgon2)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tests := []struct {
		name   string
		tamper func(p *KDFParams)
	}{
		{"argon2 memory", func(p *KDFParams) { p.MemoryKiB = 1<<32 - 1 }},
		{"argon2 time", func(p *KDFParams) { p.Iterations = maxArgon2Time + 1 }},
		{"argon2 threads", func(p *KDFParams) { p.Threads = maxArgon2Threads + 1 }},
		{"pbkdf2 iterations", func(p *KDFParams) {
			p.Algorithm = AlgorithmPBKDF2SHA256
			p.Iterations = 20_000_000
		}},
		{"legacy iterations", func(p *KDFParams) {
			p.Algorithm = ""
			p.Salt = nil
			p.Iterations = 1<<32 - 1
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := params
			tt.tamper(&tampered)
			if _, err := Decrypt(tampered, ciphertext, password); err != errDecrypt {
				t.Errorf("Decrypt() error = %v, want errDecrypt", err)
			}
		})
	}
}

func TestClearBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	clearBytes(data)

	for i, b := range data {
		if b != 0 {
			t.Errorf("clearBytes() did not zero byte at index %d: got %d", i, b)
		}
	}
}

func TestEncryptProducesDifferentCiphertext(t *testing.T) {
	plaintext := []byte("same plaintext")
	password := []byte("same password")

	params1, ciphertext1, err := Encrypt(plaintext, password, PBKDF2Config(1000))
	if err != nil {
		t.Fatalf("First Encrypt() error = %v", err)
	}

	params2, ciphertext2, err := Encrypt(plaintext, password, PBKDF2Config(1000))
	if err != nil {
		t.Fatalf("Second Encrypt() error = %v", err)
	}

	if bytes.Equal(params1.Salt, params2.Salt) {
		t.Error("Encrypt() produced identical salts")
	}
	if bytes.Equal(params1.Nonce, params2.Nonce) {
		t.Error("Encrypt() produced identical nonces")
	}
	if bytes.Equal(ciphertext1, ciphertext2) {
		t.Error("Encrypt() produced identical ciphertext (salt/nonce should make it different)")
	}
}

func TestKDFConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KDFConfig
		wantErr bool
	}{
		{"default", DefaultKDFConfig(), false},
		{"pbkdf2", PBKDF2Config(0), false},
		{"pbkdf2 zero iterations", KDFConfig{Algorithm: AlgorithmPBKDF2SHA256}, true},
		{"argon2 zero threads", KDFConfig{Algorithm: AlgorithmArgon2id, Iterations: 1, MemoryKiB: 1024}, true},
		{"unknown", KDFConfig{Algorithm: "bcrypt", Iterations: 10}, true},
		{"pbkdf2 too many iterations", PBKDF2Config(maxPBKDF2Iterations + 1), true},
		{"argon2 memory limit", KDFConfig{Algorithm: AlgorithmArgon2id, Iterations: 1, MemoryKiB: maxArgon2MemoryKiB, Threads: 1}, false},
		{"argon2 too much memory", KDFConfig{Algorithm: AlgorithmArgon2id, Iterations: 1, MemoryKiB: maxArgon2MemoryKiB + 1, Threads: 1}, true},
		{"argon2 too many passes", KDFConfig{Algorithm: AlgorithmArgon2id, Iterations: maxArgon2Time + 1, MemoryKiB: 1024, Threads: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPBKDF2ConfigDefaultIterations(t *testing.T) {
	if got := PBKDF2Config(0).Iterations; got != DefaultPBKDF2Iterations {
		t.Errorf("PBKDF2Config(0).Iterations = %d, want %d", got, DefaultPBKDF2Iterations)
	}
}
