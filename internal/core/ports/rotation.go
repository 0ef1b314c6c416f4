package ports

import (
	"context"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// NoteUpdate replaces one sealed note. Previous is the ciphertext the
// rotation read; the store refuses the commit if it changed since.
type NoteUpdate struct {
	TransactionID string
	Side          domain.NoteSide
	Previous      string
	Next          string
}

// RotationCommit is everything a password change writes.
type RotationCommit struct {
	UserID            string
	PreviousPublicKey string
	PasswordHash      string
	PublicKey         string
	WrappedPrivateKey []byte
	Notes             []NoteUpdate
}

// RotationStore applies a RotationCommit as a single all-or-nothing unit.
//
// The commit must be refused with domain.ErrConflict, writing nothing, when
// the user's public key is no longer PreviousPublicKey, when any note no
// longer holds its Previous ciphertext, or when the user owns notes that are
// not part of the commit.
type RotationStore interface {
	CommitRotation(ctx context.Context, commit RotationCommit) error
}

// UserLocker grants a per-user exclusive lease. Acquire does not wait: a
// held lease yields domain.ErrUserBusy.
type UserLocker interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}
