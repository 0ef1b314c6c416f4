package service

import (
	"context"
	"time"

	"github.com/sealnote/transfer-service/internal/core/credential"
	"github.com/sealnote/transfer-service/internal/core/secondfactor"
)

// Credentials is the part of credential.Store the use-cases depend on.
type Credentials interface {
	HashPassword(password string) (string, error)
	CheckPassword(password, hash string) bool
	GenerateKeyPair(passphrase string) (*credential.KeyPair, error)
}

// CryptoPool runs CPU-bound work off the calling goroutine.
type CryptoPool interface {
	Do(ctx context.Context, name string, fn func() error) error
}

// SecondFactor enrolls and verifies one-time codes.
type SecondFactor interface {
	Enroll(userID, account string) (*secondfactor.Enrollment, error)
	Verify(ctx context.Context, userID string, sealed []byte, code string) error
}

// TokenIssuer signs bearer tokens for a user id.
type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

// Pool job names, used as metric labels.
const (
	jobKeygen = "keygen"
	jobSeal   = "seal"
	jobOpen   = "open"
)
