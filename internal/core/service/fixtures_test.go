package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sealnote/transfer-service/internal/core/credential"
	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/gateway"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/core/secondfactor"
	"github.com/sealnote/transfer-service/internal/infrastructure/db/memory"
	"github.com/sealnote/transfer-service/internal/infrastructure/queue"
)

// testClock is a settable clock shared by the second factor and the
// replay guard.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memory.Store
	locker   *memory.Locker
	creds    *credential.Store
	pool     *queue.Pool
	codes    *secondfactor.Manager
	tokens   *gateway.TokenIssuer
	clock    *testClock
	accounts ports.AccountService
	keys     ports.APIKeyService
	transfer ports.TransferService
	rotation ports.RotationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	creds, err := credential.NewStore(credential.Config{
		BcryptCost: bcrypt.MinCost,
		KeyBits:    credential.MinKeyBits,
		KDF:        credential.KDFParams{Time: 1, MemoryKB: 8 * 1024, Threads: 1},
	})
	if err != nil {
		t.Fatalf("credential store: %v", err)
	}

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codes, err := secondfactor.New(secondfactor.Config{
		EncryptionKey: make([]byte, 32),
		Skew:          2,
		Now:           clock.Now,
	}, memory.NewReplayGuard(clock.Now))
	if err != nil {
		t.Fatalf("second factor: %v", err)
	}

	tokens, err := gateway.NewTokenIssuer(gateway.TokenConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	pool := queue.NewPool(2, zerolog.Nop())
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	f := &fixture{
		store:  memory.NewStore(),
		locker: memory.NewLocker(),
		creds:  creds,
		pool:   pool,
		codes:  codes,
		tokens: tokens,
		clock:  clock,
	}
	log := zerolog.Nop()
	f.accounts = NewAccountService(f.store.Users(), f.locker, creds, pool, codes, tokens, log)
	f.keys = NewAPIKeyService(f.store.APIKeys(), 0, log)
	f.transfer = NewTransferService(f.store.Users(), f.store.Transactions(), f.locker, pool, log)
	f.rotation = NewRotationService(f.store.Users(), f.store.Transactions(), f.store, f.locker, creds, pool, RotationConfig{}, log)
	return f
}

func (f *fixture) register(t *testing.T, name, password string) *domain.User {
	t.Helper()
	u, err := f.accounts.Register(context.Background(), ports.RegisterInput{Name: name, Password: password})
	if err != nil {
		t.Fatalf("Register(%s) returned error: %v", name, err)
	}
	return u
}

func (f *fixture) send(t *testing.T, from *domain.User, to, senderNote, receiverNote string) *domain.Transaction {
	t.Helper()
	tx, err := f.transfer.Send(context.Background(), ports.SendInput{
		SenderID:     from.ID,
		ReceiverName: to,
		Amount:       10,
		Currency:     "EUR",
		SenderNote:   senderNote,
		ReceiverNote: receiverNote,
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	return tx
}

func notesOf(t *testing.T, views []ports.TransferView) []string {
	t.Helper()
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Note
	}
	return out
}

func violationsOf(t *testing.T, err error) []string {
	t.Helper()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *domain.ValidationError, got %T (%v)", err, err)
	}
	return ve.Violations
}
