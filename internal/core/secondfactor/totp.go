// Package secondfactor implements RFC 6238 time-based one-time codes whose
// shared secret is stored sealed under a server-held key.
package secondfactor

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

const (
	secretBytes    = 20
	defaultDigits  = 6
	defaultPeriod  = 30 * time.Second
	defaultIssuer  = "sealnote"
	encryptionSize = 32
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ReplayGuard remembers which time steps have already been accepted for a
// user. MarkUsed returns false when the step was used before.
type ReplayGuard interface {
	MarkUsed(ctx context.Context, userID string, counter int64, ttl time.Duration) (bool, error)
}

// Config controls code shape and the clock-skew window.
type Config struct {
	Issuer string
	Digits int
	Period time.Duration
	// Skew is the number of time steps accepted on either side of now.
	// Zero accepts the current step only.
	Skew int
	// EncryptionKey seals stored secrets (AES-256-GCM).
	EncryptionKey []byte
	Now           func() time.Time
}

// Enrollment is returned once, when a user starts enrolling.
type Enrollment struct {
	Secret string
	URI    string
	Sealed []byte
}

// Manager issues and verifies codes.
type Manager struct {
	cfg   Config
	aead  cipher.AEAD
	guard ReplayGuard
}

// New builds a Manager. guard may be nil, which disables replay rejection.
func New(cfg Config, guard ReplayGuard) (*Manager, error) {
	if len(cfg.EncryptionKey) != encryptionSize {
		return nil, fmt.Errorf("secondfactor: encryption key must be %d bytes", encryptionSize)
	}
	if cfg.Digits == 0 {
		cfg.Digits = defaultDigits
	}
	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, errors.New("secondfactor: digits must be between 6 and 8")
	}
	if cfg.Period == 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.Period < time.Second || cfg.Period%time.Second != 0 {
		return nil, errors.New("secondfactor: period must be a whole number of seconds")
	}
	if cfg.Skew < 0 {
		return nil, errors.New("secondfactor: negative skew")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	block, err := aes.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("secondfactor: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secondfactor: %w", err)
	}
	return &Manager{cfg: cfg, aead: aead, guard: guard}, nil
}

// Enroll generates a fresh secret for userID and returns it in base32, as an
// otpauth:// URI labelled with account, and sealed for storage.
func (m *Manager) Enroll(userID, account string) (*Enrollment, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	sealed, err := m.seal(userID, raw)
	if err != nil {
		return nil, err
	}
	secret := b32.EncodeToString(raw)
	return &Enrollment{Secret: secret, URI: m.provisionURI(secret, account), Sealed: sealed}, nil
}

// Verify checks code against the sealed secret of userID. A wrong code, a
// replayed code and an unreadable secret all yield
// domain.ErrInvalidCredentials; only guard failures are returned as-is.
func (m *Manager) Verify(ctx context.Context, userID string, sealed []byte, code string) error {
	code = strings.TrimSpace(code)
	if len(code) != m.cfg.Digits || !isNumeric(code) {
		return domain.ErrInvalidCredentials
	}
	secret, err := m.open(userID, sealed)
	if err != nil {
		return domain.ErrInvalidCredentials
	}

	period := int64(m.cfg.Period / time.Second)
	base := m.cfg.Now().Unix() / period
	for step := -m.cfg.Skew; step <= m.cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(secret, counter, m.cfg.Digits)), []byte(code)) != 1 {
			continue
		}
		if m.guard == nil {
			return nil
		}
		fresh, err := m.guard.MarkUsed(ctx, userID, counter, m.window())
		if err != nil {
			return fmt.Errorf("second factor replay guard: %w", err)
		}
		if !fresh {
			return domain.ErrInvalidCredentials
		}
		return nil
	}
	return domain.ErrInvalidCredentials
}

// window is how long an accepted step stays remembered: long enough that it
// cannot come back into the skew window.
func (m *Manager) window() time.Duration {
	return time.Duration(2*m.cfg.Skew+1) * m.cfg.Period
}

func (m *Manager) provisionURI(secret, account string) string {
	label := url.PathEscape(m.cfg.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.cfg.Issuer)
	v.Set("period", strconv.Itoa(int(m.cfg.Period/time.Second)))
	v.Set("digits", strconv.Itoa(m.cfg.Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

func (m *Manager) seal(userID string, secret []byte) ([]byte, error) {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal secret: %w", err)
	}
	return m.aead.Seal(nonce, nonce, secret, []byte(userID)), nil
}

func (m *Manager) open(userID string, sealed []byte) ([]byte, error) {
	if len(sealed) < m.aead.NonceSize() {
		return nil, errors.New("sealed secret too short")
	}
	nonce, ct := sealed[:m.aead.NonceSize()], sealed[m.aead.NonceSize():]
	return m.aead.Open(nil, nonce, ct, []byte(userID))
}

// Code returns the code for secret at time t. Exposed for enrollment tooling
// and tests.
func (m *Manager) Code(secret string, t time.Time) (string, error) {
	raw, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	return hotp(raw, t.Unix()/int64(m.cfg.Period/time.Second), m.cfg.Digits), nil
}

func hotp(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
