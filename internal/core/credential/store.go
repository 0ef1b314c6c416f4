package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

const (
	DefaultKeyBits = 4096
	MinKeyBits     = 2048
	DefaultCost    = 12
)

// Config tunes the cost of hashing and key generation.
type Config struct {
	BcryptCost int
	KeyBits    int
	KDF        KDFParams
}

// KeyPair is the persisted form of a user's key pair: a PEM encoded public
// key and an opaque blob holding the wrapped private key.
type KeyPair struct {
	PublicKey         string
	WrappedPrivateKey []byte
}

// Store implements password hashing and key pair generation.
type Store struct {
	cfg       Config
	dummyHash []byte
}

// NewStore validates cfg and fills in defaults for zero values.
func NewStore(cfg Config) (*Store, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credential: bcrypt cost %d out of range", cfg.BcryptCost)
	}
	if cfg.KeyBits == 0 {
		cfg.KeyBits = DefaultKeyBits
	}
	if cfg.KeyBits < MinKeyBits {
		return nil, fmt.Errorf("credential: key size %d below minimum %d", cfg.KeyBits, MinKeyBits)
	}
	if cfg.KDF == (KDFParams{}) {
		cfg.KDF = DefaultKDFParams()
	}
	if err := cfg.KDF.validate(); err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}

	// Compared against when there is no stored hash, so an unknown user
	// costs the same as a wrong password.
	dummy, err := bcrypt.GenerateFromPassword([]byte("no-such-user-placeholder"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credential: dummy hash: %w", err)
	}
	return &Store{cfg: cfg, dummyHash: dummy}, nil
}

// KeyBits is the modulus size of newly generated key pairs.
func (s *Store) KeyBits() int { return s.cfg.KeyBits }

// HashPassword returns a salted bcrypt hash of password.
func (s *Store) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. An empty or broken
// hash still costs one full bcrypt comparison.
func (s *Store) CheckPassword(password, hash string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		}
		return false
	}
	return true
}

// GenerateKeyPair creates an RSA key pair and wraps the private half under
// passphrase. It is CPU heavy; callers run it on the crypto worker pool.
func (s *Store) GenerateKeyPair(passphrase string) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, s.cfg.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	defer wipe(der)

	wrapped, err := wrap(der, passphrase, s.cfg.KDF)
	if err != nil {
		return nil, fmt.Errorf("wrap private key: %w", err)
	}

	pub, err := EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{PublicKey: pub, WrappedPrivateKey: wrapped}, nil
}

// UnwrapPrivateKey recovers the private key from its wrapped form. Any
// failure is reported as domain.ErrDecryption.
func UnwrapPrivateKey(wrapped []byte, passphrase string) (*rsa.PrivateKey, error) {
	der, err := unwrap(wrapped, passphrase)
	if err != nil {
		return nil, domain.ErrDecryption
	}
	defer wipe(der)

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, domain.ErrDecryption
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, domain.ErrDecryption
	}
	return priv, nil
}

// EncodePublicKey renders pub as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePublicKey decodes a PEM public key produced by EncodePublicKey.
func ParsePublicKey(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}
