package ports

import (
	"context"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// APIKeyRepository persists API key digests. Lookups for unknown keys return
// domain.ErrAPIKeyNotFound.
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	FindByDigest(ctx context.Context, digest string) (*domain.APIKey, error)
	FindByID(ctx context.Context, id string) (*domain.APIKey, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.APIKey, error)
	Delete(ctx context.Context, id string) error
}
