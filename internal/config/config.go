// Package config loads settings from KEYSTORE_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
	"github.com/ava-labs/keystore-cli/pkg/storage"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "KEYSTORE_"

// Config contains CLI and server configuration.
type Config struct {
	Dir     string        `env:"DIR"`
	Backend string        `env:"BACKEND" envDefault:"file"`
	Network string        `env:"NETWORK" envDefault:"fuji"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"2m"`

	Log    Log    `envPrefix:"LOG_"`
	KDF    KDF    `envPrefix:"KDF_"`
	RPC    RPC    `envPrefix:"RPC_"`
	Badger Badger `envPrefix:"BADGER_"`
	Object Object `envPrefix:"MINIO_"`
}

// Log contains logger parameters.
type Log struct {
	Level  string `env:"LEVEL" envDefault:"warn"`
	Format string `env:"FORMAT" envDefault:"console"`
}

// KDF contains the work factor for newly encrypted keys.
type KDF struct {
	Algorithm  string `env:"ALGORITHM" envDefault:"argon2id"`
	Time       uint32 `env:"TIME" envDefault:"3"`
	MemKiB     uint32 `env:"MEM" envDefault:"65536"`
	Par        uint8  `env:"PAR" envDefault:"4"`
	Iterations uint32 `env:"ITERATIONS" envDefault:"10000"`
}

// RPC contains keystore server and client parameters.
type RPC struct {
	Listen string `env:"LISTEN" envDefault:"127.0.0.1:50551"`
	Remote string `env:"REMOTE"`
	Token  string `env:"TOKEN"`
}

// Badger contains embedded database parameters.
type Badger struct {
	Dir string `env:"DIR"`
}

// Object contains object storage parameters.
type Object struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"keystore"`
	Object    string `env:"OBJECT_NAME" envDefault:"keys.json"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// KDFConfig returns the keystore work factor described by c.KDF.
func (c *Config) KDFConfig() (keystore.KDFConfig, error) {
	var kdf keystore.KDFConfig
	switch keystore.Algorithm(c.KDF.Algorithm) {
	case keystore.AlgorithmArgon2id:
		kdf = keystore.KDFConfig{
			Algorithm:  keystore.AlgorithmArgon2id,
			Iterations: c.KDF.Time,
			MemoryKiB:  c.KDF.MemKiB,
			Threads:    c.KDF.Par,
		}
	case keystore.AlgorithmPBKDF2SHA256, "pbkdf2":
		kdf = keystore.PBKDF2Config(c.KDF.Iterations)
	default:
		return keystore.KDFConfig{}, fmt.Errorf("unsupported kdf algorithm %q (use argon2id or pbkdf2-sha256)", c.KDF.Algorithm)
	}
	if err := kdf.Validate(); err != nil {
		return keystore.KDFConfig{}, fmt.Errorf("invalid kdf configuration: %w", err)
	}
	return kdf, nil
}

// StorageConfig returns the backend selection described by c.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Backend:   c.Backend,
		Dir:       c.Dir,
		BadgerDir: c.Badger.Dir,
		Timeout:   c.Timeout,
		Object: storage.ObjectConfig{
			Endpoint:  c.Object.Endpoint,
			AccessKey: c.Object.AccessKey,
			SecretKey: c.Object.SecretKey,
			Bucket:    c.Object.Bucket,
			Object:    c.Object.Object,
			UseSSL:    c.Object.UseSSL,
		},
	}
}
