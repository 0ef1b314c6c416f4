package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/ports"
)

// collection is the part of *mongo.Collection a rotation writes through.
type collection interface {
	UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// CommitRotation applies c in one transaction. Every write is conditional on
// the value the rotation read; if any condition fails the transaction is
// aborted and domain.ErrConflict returned.
func (s *Store) CommitRotation(ctx context.Context, c ports.RotationCommit) error {
	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		return applyRotation(sc, s.users, s.txs, c)
	})
}

func applyRotation(ctx context.Context, users, txs collection, c ports.RotationCommit) error {
	res, err := users.UpdateOne(ctx,
		bson.M{"_id": c.UserID, "public_key": c.PreviousPublicKey},
		bson.M{"$set": bson.M{
			"password_hash":       c.PasswordHash,
			"public_key":          c.PublicKey,
			"wrapped_private_key": c.WrappedPrivateKey,
			"updated_at":          nowUTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	if res.MatchedCount != 1 {
		return domain.ErrConflict
	}

	sent, err := txs.CountDocuments(ctx, bson.M{"sender_id": c.UserID})
	if err != nil {
		return fmt.Errorf("count sent: %w", err)
	}
	received, err := txs.CountDocuments(ctx, bson.M{"receiver_id": c.UserID})
	if err != nil {
		return fmt.Errorf("count received: %w", err)
	}
	if sent+received != int64(len(c.Notes)) {
		return domain.ErrConflict
	}

	for _, n := range c.Notes {
		field, owner := noteField(n.Side)
		res, err := txs.UpdateOne(ctx,
			bson.M{"_id": n.TransactionID, owner: c.UserID, field: n.Previous},
			bson.M{"$set": bson.M{field: n.Next}},
		)
		if err != nil {
			return fmt.Errorf("update %s: %w", field, err)
		}
		if res.MatchedCount != 1 {
			return domain.ErrConflict
		}
	}
	return nil
}
