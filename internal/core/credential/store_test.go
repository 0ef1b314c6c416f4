package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{
		BcryptCost: bcrypt.MinCost,
		KeyBits:    MinKeyBits,
		KDF:        KDFParams{Time: 1, MemoryKB: 8 * 1024, Threads: 1},
	})
	require.NoError(t, err)
	return s
}

func TestNewStore_Defaults(t *testing.T) {
	s, err := NewStore(Config{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	assert.Equal(t, DefaultKeyBits, s.KeyBits())
	assert.Equal(t, DefaultKDFParams(), s.cfg.KDF)
}

func TestNewStore_RejectsWeakSettings(t *testing.T) {
	_, err := NewStore(Config{BcryptCost: bcrypt.MinCost, KeyBits: 1024})
	assert.Error(t, err)

	_, err = NewStore(Config{BcryptCost: 40})
	assert.Error(t, err)

	_, err = NewStore(Config{BcryptCost: bcrypt.MinCost, KDF: KDFParams{Time: 1, MemoryKB: 16, Threads: 1}})
	assert.Error(t, err)
}

func TestHashAndCheckPassword(t *testing.T) {
	s := testStore(t)

	for _, pw := range []string{"Abcdefg1", "Zyxwvut2", "pässwörd9X"} {
		hash, err := s.HashPassword(pw)
		require.NoError(t, err)
		assert.NotEqual(t, pw, hash)
		assert.True(t, s.CheckPassword(pw, hash), "password should match its own hash")
		assert.False(t, s.CheckPassword(pw+"x", hash))
		assert.False(t, s.CheckPassword("", hash))
	}

	a, _ := s.HashPassword("Abcdefg1")
	b, _ := s.HashPassword("Abcdefg1")
	assert.NotEqual(t, a, b, "hashes must be salted")
}

func TestCheckPassword_EmptyOrBrokenHash(t *testing.T) {
	s := testStore(t)
	assert.False(t, s.CheckPassword("Abcdefg1", ""))
	assert.False(t, s.CheckPassword("Abcdefg1", "not-a-bcrypt-hash"))
}

func TestGenerateKeyPair_RoundTrip(t *testing.T) {
	s := testStore(t)

	kp, err := s.GenerateKeyPair("Abcdefg1")
	require.NoError(t, err)
	assert.Contains(t, kp.PublicKey, "-----BEGIN PUBLIC KEY-----")

	pub, err := ParsePublicKey(kp.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, MinKeyBits, pub.N.BitLen())

	priv, err := UnwrapPrivateKey(kp.WrappedPrivateKey, "Abcdefg1")
	require.NoError(t, err)
	assert.Equal(t, 0, priv.PublicKey.N.Cmp(pub.N))
}

func TestUnwrapPrivateKey_Failures(t *testing.T) {
	s := testStore(t)
	kp, err := s.GenerateKeyPair("Abcdefg1")
	require.NoError(t, err)

	_, err = UnwrapPrivateKey(kp.WrappedPrivateKey, "Abcdefg2")
	assert.ErrorIs(t, err, domain.ErrDecryption)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	tampered := append([]byte(nil), kp.WrappedPrivateKey...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = UnwrapPrivateKey(tampered, "Abcdefg1")
	assert.ErrorIs(t, err, domain.ErrDecryption)

	// the KDF parameters are authenticated too
	tampered = append([]byte(nil), kp.WrappedPrivateKey...)
	tampered[1] ^= 0x01
	_, err = UnwrapPrivateKey(tampered, "Abcdefg1")
	assert.ErrorIs(t, err, domain.ErrDecryption)

	_, err = UnwrapPrivateKey([]byte("short"), "Abcdefg1")
	assert.ErrorIs(t, err, domain.ErrDecryption)
}

func TestParsePublicKey_Rejects(t *testing.T) {
	_, err := ParsePublicKey("garbage")
	assert.Error(t, err)
}
