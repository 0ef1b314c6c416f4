package ports

import (
	"context"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// UserRepository persists accounts and their key material.
type UserRepository interface {
	// Create stores a new user; a taken name yields domain.ErrUserExists.
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByName(ctx context.Context, name string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	// SetPendingSecondFactor stores a sealed TOTP secret awaiting
	// confirmation. The active secret is left untouched.
	SetPendingSecondFactor(ctx context.Context, userID string, sealedSecret []byte) error
	// UpdateSecondFactor replaces the active sealed TOTP secret and enabled
	// flag, and clears any pending secret.
	UpdateSecondFactor(ctx context.Context, userID string, sealedSecret []byte, enabled bool) error
	// Delete removes the user and, in the same unit, every API key it owns.
	Delete(ctx context.Context, id string) error
}
