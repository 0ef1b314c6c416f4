// Package notecrypto seals transaction notes to a user's public key and
// opens them again with the password-wrapped private key.
//
// Notes are encrypted with RSA-OAEP (SHA-256) and carried as standard
// base64 text. Plaintext size is bounded by the key modulus; Capacity
// reports the bound and Seal refuses longer notes before encrypting.
package notecrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/sealnote/transfer-service/internal/core/credential"
	"github.com/sealnote/transfer-service/internal/core/domain"
)

// Capacity returns the largest plaintext, in bytes, that can be sealed to
// pub. For OAEP that is k - 2*hLen - 2.
func Capacity(pub *rsa.PublicKey) int {
	n := pub.Size() - 2*sha256.Size - 2
	if n < 0 {
		return 0
	}
	return n
}

// CapacityOf parses a PEM public key and returns its capacity.
func CapacityOf(publicKeyPEM string) (int, error) {
	pub, err := credential.ParsePublicKey(publicKeyPEM)
	if err != nil {
		return 0, fmt.Errorf("parse public key: %w", err)
	}
	return Capacity(pub), nil
}

// CheckNote returns a violation message when note does not fit under a key
// with the given capacity, or "" when it fits.
func CheckNote(field, note string, capacity int) string {
	if len(note) > capacity {
		return fmt.Sprintf("%s must be at most %d bytes", field, capacity)
	}
	return ""
}

// Seal encrypts note to the PEM encoded public key.
func Seal(publicKeyPEM, note string) (string, error) {
	pub, err := credential.ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	return SealTo(pub, note)
}

// SealTo encrypts note to pub. A note over capacity fails with a
// *domain.ValidationError before any encryption is attempted.
func SealTo(pub *rsa.PublicKey, note string) (string, error) {
	if v := CheckNote("note", note, Capacity(pub)); v != "" {
		return "", domain.NewValidationError(v)
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(note), nil)
	if err != nil {
		return "", fmt.Errorf("seal note: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Open unwraps the private key with passphrase and decrypts ciphertext.
// Every failure is domain.ErrDecryption.
func Open(wrappedPrivateKey []byte, passphrase, ciphertext string) (string, error) {
	kr, err := Unlock(wrappedPrivateKey, passphrase)
	if err != nil {
		return "", err
	}
	return kr.Open(ciphertext)
}

// Keyring holds an unwrapped private key so a batch of notes can be opened
// without paying the key derivation cost per note.
type Keyring struct {
	priv *rsa.PrivateKey
}

// Unlock unwraps the private key once.
func Unlock(wrappedPrivateKey []byte, passphrase string) (*Keyring, error) {
	priv, err := credential.UnwrapPrivateKey(wrappedPrivateKey, passphrase)
	if err != nil {
		return nil, domain.ErrDecryption
	}
	return &Keyring{priv: priv}, nil
}

// Open decrypts a single sealed note.
func (k *Keyring) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", domain.ErrDecryption
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, k.priv, raw, nil)
	if err != nil {
		return "", domain.ErrDecryption
	}
	return string(pt), nil
}

// PublicKey returns the public half of the unlocked key.
func (k *Keyring) PublicKey() *rsa.PublicKey {
	return &k.priv.PublicKey
}
