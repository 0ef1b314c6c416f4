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

// APIKeys implements ports.APIKeyRepository.
type APIKeys struct{ s *Store }

type apiKeyDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Digest    string    `bson:"digest"`
	Label     string    `bson:"label"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d apiKeyDoc) toDomain() *domain.APIKey {
	return &domain.APIKey{
		ID:        d.ID,
		UserID:    d.UserID,
		Digest:    d.Digest,
		Label:     d.Label,
		ExpiresAt: d.ExpiresAt.UTC(),
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func (r *APIKeys) Create(ctx context.Context, key *domain.APIKey) error {
	doc := apiKeyDoc{
		ID:        key.ID,
		UserID:    key.UserID,
		Digest:    key.Digest,
		Label:     key.Label,
		ExpiresAt: key.ExpiresAt,
		CreatedAt: key.CreatedAt,
	}
	if _, err := r.s.keys.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (r *APIKeys) FindByDigest(ctx context.Context, digest string) (*domain.APIKey, error) {
	return r.findOne(ctx, bson.M{"digest": digest})
}

func (r *APIKeys) FindByID(ctx context.Context, id string) (*domain.APIKey, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *APIKeys) findOne(ctx context.Context, filter bson.M) (*domain.APIKey, error) {
	var doc apiKeyDoc
	if err := r.s.keys.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("find api key: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *APIKeys) ListByUser(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	cur, err := r.s.keys.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	var docs []apiKeyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode api keys: %w", err)
	}
	out := make([]*domain.APIKey, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (r *APIKeys) Delete(ctx context.Context, id string) error {
	res, err := r.s.keys.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}
