package ports

import (
	"context"
	"time"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// CreateAPIKeyInput carries the parameters of a new API key.
type CreateAPIKeyInput struct {
	UserID    string
	Label     string
	ExpiresAt time.Time
}

// CreatedAPIKey holds the only copy of the key secret that is ever returned.
type CreatedAPIKey struct {
	Key    *domain.APIKey
	Secret string
}

// APIKeyService manages a user's API keys.
type APIKeyService interface {
	Create(ctx context.Context, in CreateAPIKeyInput) (*CreatedAPIKey, error)
	List(ctx context.Context, userID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, userID, keyID string) error
}
