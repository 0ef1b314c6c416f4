package ports

import (
	"context"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// TransactionRepository persists transfers and their sealed notes.
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListBySender(ctx context.Context, userID string) ([]*domain.Transaction, error)
	ListByReceiver(ctx context.Context, userID string) ([]*domain.Transaction, error)
}
