package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/sealnote/transfer-service/internal/core/ports"
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"
	apiKeysCollection      = "api_keys"
)

// Store implements the persistence ports on MongoDB. Multi-document
// operations run in transactions, so the deployment must be a replica set.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	txs    *mongo.Collection
	keys   *mongo.Collection
}

// NewStore creates a Store on db.
func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client: client,
		users:  db.Collection(usersCollection),
		txs:    db.Collection(transactionsCollection),
		keys:   db.Collection(apiKeysCollection),
	}
}

var (
	_ ports.UserRepository        = (*Users)(nil)
	_ ports.TransactionRepository = (*Transactions)(nil)
	_ ports.APIKeyRepository      = (*APIKeys)(nil)
	_ ports.RotationStore         = (*Store)(nil)
)

// Users returns the ports.UserRepository view of the store.
func (s *Store) Users() *Users { return &Users{s: s} }

// Transactions returns the ports.TransactionRepository view of the store.
func (s *Store) Transactions() *Transactions { return &Transactions{s: s} }

// APIKeys returns the ports.APIKeyRepository view of the store.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

// EnsureIndexes creates the unique and lookup indexes the repositories rely
// on. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.users, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.keys, mongo.IndexModel{Keys: bson.D{{Key: "digest", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.keys, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}}}},
		{s.txs, mongo.IndexModel{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: 1}}}},
		{s.txs, mongo.IndexModel{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}}}},
	}
	for _, spec := range specs {
		if _, err := spec.coll.Indexes().CreateOne(ctx, spec.model); err != nil {
			return fmt.Errorf("create index on %s: %w", spec.coll.Name(), err)
		}
	}
	return nil
}

// withTransaction runs fn in a snapshot-read, majority-write transaction.
// An error returned by fn aborts it and is returned unchanged.
func (s *Store) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, opts)
	return err
}

func nowUTC() time.Time { return time.Now().UTC() }
