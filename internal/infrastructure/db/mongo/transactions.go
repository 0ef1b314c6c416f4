package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// Transactions implements ports.TransactionRepository.
type Transactions struct{ s *Store }

type transactionDoc struct {
	ID           string    `bson:"_id"`
	SenderID     string    `bson:"sender_id"`
	ReceiverID   string    `bson:"receiver_id"`
	Amount       float64   `bson:"amount"`
	Currency     string    `bson:"currency"`
	SenderNote   string    `bson:"sender_note"`
	ReceiverNote string    `bson:"receiver_note"`
	Status       string    `bson:"status"`
	CreatedAt    time.Time `bson:"created_at"`
}

// noteField is the document field holding the ciphertext of side, and
// ownerField the field naming its owner.
func noteField(side domain.NoteSide) (field, owner string) {
	if side == domain.SenderSide {
		return "sender_note", "sender_id"
	}
	return "receiver_note", "receiver_id"
}

func (d transactionDoc) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:           d.ID,
		SenderID:     d.SenderID,
		ReceiverID:   d.ReceiverID,
		Amount:       d.Amount,
		Currency:     domain.Currency(d.Currency),
		SenderNote:   d.SenderNote,
		ReceiverNote: d.ReceiverNote,
		Status:       domain.TransactionStatus(d.Status),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

func (r *Transactions) Create(ctx context.Context, tx *domain.Transaction) error {
	doc := transactionDoc{
		ID:           tx.ID,
		SenderID:     tx.SenderID,
		ReceiverID:   tx.ReceiverID,
		Amount:       tx.Amount,
		Currency:     string(tx.Currency),
		SenderNote:   tx.SenderNote,
		ReceiverNote: tx.ReceiverNote,
		Status:       string(tx.Status),
		CreatedAt:    tx.CreatedAt,
	}
	if _, err := r.s.txs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *Transactions) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var doc transactionDoc
	if err := r.s.txs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *Transactions) ListBySender(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return r.list(ctx, bson.M{"sender_id": userID})
}

func (r *Transactions) ListByReceiver(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return r.list(ctx, bson.M{"receiver_id": userID})
}

func (r *Transactions) list(ctx context.Context, filter bson.M) ([]*domain.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.s.txs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	out := make([]*domain.Transaction, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}
