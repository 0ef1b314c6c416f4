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

// Users implements ports.UserRepository.
type Users struct{ s *Store }

type userDoc struct {
	ID                  string    `bson:"_id"`
	Name                string    `bson:"name"`
	PasswordHash        string    `bson:"password_hash"`
	PublicKey           string    `bson:"public_key"`
	WrappedPrivateKey   []byte    `bson:"wrapped_private_key"`
	SecondFactorSecret  []byte    `bson:"second_factor_secret,omitempty"`
	PendingSecret       []byte    `bson:"pending_second_factor_secret,omitempty"`
	SecondFactorEnabled bool      `bson:"second_factor_enabled"`
	Role                string    `bson:"role"`
	CreatedAt           time.Time `bson:"created_at"`
	UpdatedAt           time.Time `bson:"updated_at"`
}

func toUserDoc(u *domain.User) userDoc {
	return userDoc{
		ID:                  u.ID,
		Name:                u.Name,
		PasswordHash:        u.PasswordHash,
		PublicKey:           u.PublicKey,
		WrappedPrivateKey:   u.WrappedPrivateKey,
		SecondFactorSecret:  u.SecondFactorSecret,
		PendingSecret:       u.PendingSecondFactorSecret,
		SecondFactorEnabled: u.SecondFactorEnabled,
		Role:                string(u.Role),
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

// toDomain maps an unknown stored role to the zero Role, which no
// authorization check accepts.
func (d userDoc) toDomain() *domain.User {
	role, _ := domain.ParseRole(d.Role)
	return &domain.User{
		ID:                  d.ID,
		Name:                d.Name,
		PasswordHash:        d.PasswordHash,
		PublicKey:           d.PublicKey,
		WrappedPrivateKey:   d.WrappedPrivateKey,
		SecondFactorSecret:  d.SecondFactorSecret,
		SecondFactorEnabled: d.SecondFactorEnabled,
		Role:                role,

		PendingSecondFactorSecret: d.PendingSecret,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
}

func (r *Users) Create(ctx context.Context, user *domain.User) error {
	if _, err := r.s.users.InsertOne(ctx, toUserDoc(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Users) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *Users) FindByName(ctx context.Context, name string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"name": name})
}

func (r *Users) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	if err := r.s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *Users) List(ctx context.Context) ([]*domain.User, error) {
	cur, err := r.s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	out := make([]*domain.User, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (r *Users) UpdateSecondFactor(ctx context.Context, userID string, sealed []byte, enabled bool) error {
	res, err := r.s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{
			"second_factor_secret":  sealed,
			"second_factor_enabled": enabled,
			"updated_at":            nowUTC(),
		},
		"$unset": bson.M{"pending_second_factor_secret": ""},
	})
	if err != nil {
		return fmt.Errorf("update second factor: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *Users) SetPendingSecondFactor(ctx context.Context, userID string, sealed []byte) error {
	res, err := r.s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{
		"pending_second_factor_secret": sealed,
		"updated_at":                   nowUTC(),
	}})
	if err != nil {
		return fmt.Errorf("set pending second factor: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// Delete removes the user and its API keys in one transaction.
func (r *Users) Delete(ctx context.Context, id string) error {
	return r.s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := r.s.users.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if res.DeletedCount == 0 {
			return domain.ErrUserNotFound
		}
		if _, err := r.s.keys.DeleteMany(sc, bson.M{"user_id": id}); err != nil {
			return fmt.Errorf("delete user api keys: %w", err)
		}
		return nil
	})
}
