package config

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	minJWTSecretBytes = 32
	minRSAKeyBits     = 2048
)

type Config struct {
	Port         string        `env:"PORT,          default=8080"`
	Env          string        `env:"ENV,           default=development"`
	LogLevel     string        `env:"LOG_LEVEL,     default=info"`
	Store        string        `env:"STORE,         default=mongo"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT, default=10s"`
	APIKeyMaxTTL time.Duration `env:"APIKEY_MAX_TTL, default=720h"`

	JWT      JWTConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Crypto   CryptoConfig
	TOTP     TOTPConfig
	Rotation RotationConfig
}

type JWTConfig struct {
	Secret string        `env:"JWT_SECRET"`
	TTL    time.Duration `env:"JWT_TTL,    default=24h"`
	Leeway time.Duration `env:"JWT_LEEWAY, default=30s"`
	Issuer string        `env:"JWT_ISSUER, default=sealnote"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017/?replicaSet=rs0"`
	Database string `env:"MONGO_DB,  default=sealnote"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type CryptoConfig struct {
	RSAKeyBits  int    `env:"RSA_KEY_BITS,  default=4096"`
	BcryptCost  int    `env:"BCRYPT_COST,   default=12"`
	KDFTime     uint32 `env:"KDF_TIME,      default=1"`
	KDFMemoryKB uint32 `env:"KDF_MEMORY_KB, default=65536"`
	KDFThreads  uint8  `env:"KDF_THREADS,   default=4"`
	// Workers <= 0 means one per CPU.
	Workers int `env:"CRYPTO_WORKERS, default=0"`
}

type TOTPConfig struct {
	// EncryptionKey is 32 bytes, hex encoded.
	EncryptionKey string        `env:"TOTP_ENCRYPTION_KEY"`
	Issuer        string        `env:"TOTP_ISSUER, default=sealnote"`
	Skew          int           `env:"TOTP_SKEW,   default=2"`
	Period        time.Duration `env:"TOTP_PERIOD, default=30s"`
}

type RotationConfig struct {
	LeaseTTL time.Duration `env:"ROTATION_LEASE_TTL, default=5m"`
	Timeout  time.Duration `env:"ROTATION_TIMEOUT,   default=4m"`
}

// Load reads configuration from environment variables using go-envconfig and
// validates it.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit source of variables.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWT.Secret) < minJWTSecretBytes {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretBytes))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if _, err := c.TOTPKey(); err != nil {
		errs = append(errs, err)
	}
	if c.Crypto.RSAKeyBits < minRSAKeyBits {
		errs = append(errs, fmt.Errorf("RSA_KEY_BITS must be at least %d", minRSAKeyBits))
	}
	if c.Crypto.BcryptCost < 4 || c.Crypto.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	switch c.Store {
	case StoreMongo, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q", StoreMongo, StoreMemory))
	}
	if c.TOTP.Period < time.Second || c.TOTP.Period%time.Second != 0 {
		errs = append(errs, errors.New("TOTP_PERIOD must be a whole number of seconds"))
	}
	if c.TOTP.Skew < 0 {
		errs = append(errs, errors.New("TOTP_SKEW must not be negative"))
	}
	if c.APIKeyMaxTTL <= 0 {
		errs = append(errs, errors.New("APIKEY_MAX_TTL must be positive"))
	}
	if c.Rotation.Timeout <= 0 || c.Rotation.Timeout >= c.Rotation.LeaseTTL {
		errs = append(errs, errors.New("ROTATION_TIMEOUT must be positive and below ROTATION_LEASE_TTL"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// TOTPKey decodes TOTP_ENCRYPTION_KEY.
func (c *Config) TOTPKey() ([]byte, error) {
	key, err := hex.DecodeString(c.TOTP.EncryptionKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("TOTP_ENCRYPTION_KEY must be 64 hex characters")
	}
	return key, nil
}

// IsDevelopment reports whether ENV selects development defaults such as
// console logging.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
