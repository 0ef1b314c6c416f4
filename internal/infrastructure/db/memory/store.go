// Package memory is an in-process implementation of the persistence ports.
// It backs the "memory" STORE mode and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/ports"
)

// Store holds every record behind one lock so that multi-record operations
// (cascading delete, rotation commit) are atomic.
type Store struct {
	mu sync.RWMutex

	users   map[string]*domain.User
	byName  map[string]string
	txs     map[string]*domain.Transaction
	txOrder []string
	keys    map[string]*domain.APIKey
	digests map[string]string
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]*domain.User),
		byName:  make(map[string]string),
		txs:     make(map[string]*domain.Transaction),
		keys:    make(map[string]*domain.APIKey),
		digests: make(map[string]string),
	}
}

// Users returns the ports.UserRepository view of the store.
func (s *Store) Users() *Users { return &Users{s: s} }

// Transactions returns the ports.TransactionRepository view of the store.
func (s *Store) Transactions() *Transactions { return &Transactions{s: s} }

// APIKeys returns the ports.APIKeyRepository view of the store.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

var (
	_ ports.UserRepository        = (*Users)(nil)
	_ ports.TransactionRepository = (*Transactions)(nil)
	_ ports.APIKeyRepository      = (*APIKeys)(nil)
	_ ports.RotationStore         = (*Store)(nil)
)

// CommitRotation validates every precondition of commit before writing
// anything, then applies it under the write lock.
func (s *Store) CommitRotation(_ context.Context, commit ports.RotationCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[commit.UserID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if user.PublicKey != commit.PreviousPublicKey {
		return domain.ErrConflict
	}

	owned := 0
	for _, tx := range s.txs {
		if tx.SenderID == commit.UserID {
			owned++
		}
		if tx.ReceiverID == commit.UserID {
			owned++
		}
	}
	if owned != len(commit.Notes) {
		return domain.ErrConflict
	}

	type slot struct {
		id   string
		side domain.NoteSide
	}
	seen := make(map[slot]struct{}, len(commit.Notes))
	for _, n := range commit.Notes {
		tx, ok := s.txs[n.TransactionID]
		if !ok || !ownsSide(tx, commit.UserID, n.Side) || tx.Note(n.Side) != n.Previous {
			return domain.ErrConflict
		}
		k := slot{n.TransactionID, n.Side}
		if _, dup := seen[k]; dup {
			return domain.ErrConflict
		}
		seen[k] = struct{}{}
	}

	for _, n := range commit.Notes {
		s.txs[n.TransactionID].SetNote(n.Side, n.Next)
	}
	user.PasswordHash = commit.PasswordHash
	user.PublicKey = commit.PublicKey
	user.WrappedPrivateKey = append([]byte(nil), commit.WrappedPrivateKey...)
	return nil
}

func ownsSide(tx *domain.Transaction, userID string, side domain.NoteSide) bool {
	if side == domain.SenderSide {
		return tx.SenderID == userID
	}
	return tx.ReceiverID == userID
}

// Users implements ports.UserRepository.
type Users struct{ s *Store }

func (r *Users) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.byName[user.Name]; taken {
		return domain.ErrUserExists
	}
	if _, taken := r.s.users[user.ID]; taken {
		return domain.ErrUserExists
	}
	r.s.users[user.ID] = user.Clone()
	r.s.byName[user.Name] = user.ID
	return nil
}

func (r *Users) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *Users) FindByName(_ context.Context, name string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byName[name]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.s.users[id].Clone(), nil
}

func (r *Users) List(_ context.Context) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Users) UpdateSecondFactor(_ context.Context, userID string, sealed []byte, enabled bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.SecondFactorSecret = append([]byte(nil), sealed...)
	u.SecondFactorEnabled = enabled
	u.PendingSecondFactorSecret = nil
	return nil
}

func (r *Users) SetPendingSecondFactor(_ context.Context, userID string, sealed []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PendingSecondFactorSecret = append([]byte(nil), sealed...)
	return nil
}

// Delete removes the user and every API key it owns.
func (r *Users) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	for keyID, k := range r.s.keys {
		if k.UserID == id {
			delete(r.s.digests, k.Digest)
			delete(r.s.keys, keyID)
		}
	}
	delete(r.s.byName, u.Name)
	delete(r.s.users, id)
	return nil
}

// Transactions implements ports.TransactionRepository.
type Transactions struct{ s *Store }

func (r *Transactions) Create(_ context.Context, tx *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, dup := r.s.txs[tx.ID]; dup {
		return domain.ErrConflict
	}
	c := *tx
	r.s.txs[tx.ID] = &c
	r.s.txOrder = append(r.s.txOrder, tx.ID)
	return nil
}

func (r *Transactions) FindByID(_ context.Context, id string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	tx, ok := r.s.txs[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	c := *tx
	return &c, nil
}

func (r *Transactions) ListBySender(_ context.Context, userID string) ([]*domain.Transaction, error) {
	return r.list(func(tx *domain.Transaction) bool { return tx.SenderID == userID }), nil
}

func (r *Transactions) ListByReceiver(_ context.Context, userID string) ([]*domain.Transaction, error) {
	return r.list(func(tx *domain.Transaction) bool { return tx.ReceiverID == userID }), nil
}

// list returns matching transactions in insertion order.
func (r *Transactions) list(match func(*domain.Transaction) bool) []*domain.Transaction {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Transaction
	for _, id := range r.s.txOrder {
		if tx := r.s.txs[id]; match(tx) {
			c := *tx
			out = append(out, &c)
		}
	}
	return out
}

// APIKeys implements ports.APIKeyRepository.
type APIKeys struct{ s *Store }

func (r *APIKeys) Create(_ context.Context, key *domain.APIKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[key.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	if _, dup := r.s.digests[key.Digest]; dup {
		return domain.ErrConflict
	}
	c := *key
	r.s.keys[key.ID] = &c
	r.s.digests[key.Digest] = key.ID
	return nil
}

func (r *APIKeys) FindByDigest(_ context.Context, digest string) (*domain.APIKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.digests[digest]
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	c := *r.s.keys[id]
	return &c, nil
}

func (r *APIKeys) FindByID(_ context.Context, id string) (*domain.APIKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.keys[id]
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	c := *k
	return &c, nil
}

func (r *APIKeys) ListByUser(_ context.Context, userID string) ([]*domain.APIKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.APIKey
	for _, k := range r.s.keys {
		if k.UserID == userID {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *APIKeys) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	k, ok := r.s.keys[id]
	if !ok {
		return domain.ErrAPIKeyNotFound
	}
	delete(r.s.digests, k.Digest)
	delete(r.s.keys, id)
	return nil
}
