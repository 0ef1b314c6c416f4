package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	wrapVersion  byte = 1
	wrapSaltSize      = 16
	wrapKeySize       = 32
	// version | time | memory | threads | salt
	wrapHeaderSize = 1 + 4 + 4 + 1 + wrapSaltSize
)

var errMalformedWrap = errors.New("malformed wrapped key")

// KDFParams are the argon2id parameters used to turn a password into a
// wrapping key. They are recorded in every blob so they can be raised later
// without breaking existing keys.
type KDFParams struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
}

// DefaultKDFParams matches the argon2id settings used for master keys.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 1, MemoryKB: 64 * 1024, Threads: 4}
}

func (p KDFParams) validate() error {
	if p.Time == 0 || p.MemoryKB < 8*1024 || p.MemoryKB > 4<<20 || p.Threads == 0 {
		return fmt.Errorf("invalid kdf params: time=%d memory=%dKiB threads=%d", p.Time, p.MemoryKB, p.Threads)
	}
	return nil
}

// wrap seals secret under a key derived from passphrase with AES-256-GCM.
// The header is bound as additional data so parameters cannot be swapped.
func wrap(secret []byte, passphrase string, p KDFParams) ([]byte, error) {
	header := make([]byte, wrapHeaderSize)
	header[0] = wrapVersion
	binary.BigEndian.PutUint32(header[1:5], p.Time)
	binary.BigEndian.PutUint32(header[5:9], p.MemoryKB)
	header[9] = p.Threads
	if _, err := rand.Read(header[10:]); err != nil {
		return nil, fmt.Errorf("wrap: salt: %w", err)
	}

	aead, err := wrapAEAD(passphrase, header[10:], p)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wrap: nonce: %w", err)
	}

	out := make([]byte, 0, len(header)+len(nonce)+len(secret)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, secret, header), nil
}

// unwrap reverses wrap. A wrong passphrase and a damaged blob both fail
// authentication and are not told apart.
func unwrap(blob []byte, passphrase string) ([]byte, error) {
	if len(blob) < wrapHeaderSize || blob[0] != wrapVersion {
		return nil, errMalformedWrap
	}
	header := blob[:wrapHeaderSize]
	p := KDFParams{
		Time:     binary.BigEndian.Uint32(header[1:5]),
		MemoryKB: binary.BigEndian.Uint32(header[5:9]),
		Threads:  header[9],
	}
	if err := p.validate(); err != nil {
		return nil, errMalformedWrap
	}

	aead, err := wrapAEAD(passphrase, header[10:], p)
	if err != nil {
		return nil, err
	}
	rest := blob[wrapHeaderSize:]
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return nil, errMalformedWrap
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, header)
}

func wrapAEAD(passphrase string, salt []byte, p KDFParams) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKB, p.Threads, wrapKeySize)
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
