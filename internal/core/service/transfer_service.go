package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/notecrypto"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/metrics"
)

type transferService struct {
	users  ports.UserRepository
	txs    ports.TransactionRepository
	locker ports.UserLocker
	pool   CryptoPool
	log    zerolog.Logger
}

// NewTransferService returns a TransferService implementation.
func NewTransferService(
	users ports.UserRepository,
	txs ports.TransactionRepository,
	locker ports.UserLocker,
	pool CryptoPool,
	log zerolog.Logger,
) ports.TransferService {
	return &transferService{users: users, txs: txs, locker: locker, pool: pool, log: log}
}

// Send validates the transfer, reporting every problem at once, then seals
// each note to its owner's current public key while holding the lease of
// both parties.
func (s *transferService) Send(ctx context.Context, in ports.SendInput) (*domain.Transaction, error) {
	sender, err := s.users.FindByID(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}

	var violations []string
	receiverName := strings.TrimSpace(in.ReceiverName)
	var receiver *domain.User
	if receiverName == "" {
		violations = append(violations, "receiver is required")
	} else {
		receiver, err = s.users.FindByName(ctx, receiverName)
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			violations = append(violations, "receiver does not exist")
		case err != nil:
			return nil, fmt.Errorf("send: %w", err)
		case receiver.ID == sender.ID:
			violations = append(violations, "receiver must be a different user")
			receiver = nil
		}
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		violations = append(violations, "amount must be greater than 0")
	}
	currency, ok := domain.ParseCurrency(in.Currency)
	if !ok {
		violations = append(violations, "currency must be one of "+strings.Join(domain.Currencies(), ", "))
	}
	violations = append(violations, noteViolations("sender_note", in.SenderNote, sender)...)
	if receiver != nil {
		violations = append(violations, noteViolations("receiver_note", in.ReceiverNote, receiver)...)
	}
	if err := domain.NewValidationError(violations...); err != nil {
		return nil, err
	}

	release, err := acquireAll(ctx, s.locker, sender.ID, receiver.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Reload under the leases: a rotation may have replaced either key since
	// the first read.
	if sender, err = s.users.FindByID(ctx, sender.ID); err != nil {
		return nil, err
	}
	if receiver, err = s.users.FindByID(ctx, receiver.ID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NewValidationError("receiver does not exist")
		}
		return nil, fmt.Errorf("send: %w", err)
	}

	tx := &domain.Transaction{
		ID:         uuid.NewString(),
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Amount:     in.Amount,
		Currency:   currency,
		Status:     domain.TransactionPending,
		CreatedAt:  time.Now().UTC(),
	}
	err = s.pool.Do(ctx, jobSeal, func() error {
		var err error
		if tx.SenderNote, err = notecrypto.Seal(sender.PublicKey, in.SenderNote); err != nil {
			return err
		}
		tx.ReceiverNote, err = notecrypto.Seal(receiver.PublicKey, in.ReceiverNote)
		return err
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, fmt.Errorf("send: %w", err)
	}

	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	metrics.TransfersCreatedTotal.WithLabelValues(string(currency)).Inc()
	s.log.Info().
		Str("transaction_id", tx.ID).
		Str("sender_id", sender.ID).
		Str("receiver_id", receiver.ID).
		Msg("transfer created")
	return tx, nil
}

// noteViolations checks note against the capacity of owner's key.
func noteViolations(field, note string, owner *domain.User) []string {
	capacity, err := notecrypto.CapacityOf(owner.PublicKey)
	if err != nil {
		return []string{field + " cannot be sealed for this user"}
	}
	if v := notecrypto.CheckNote(field, note, capacity); v != "" {
		return []string{v}
	}
	return nil
}

// List returns the transfers userID sent or received, oldest first, without
// notes.
func (s *transferService) List(ctx context.Context, userID string) ([]ports.TransferView, error) {
	views, _, err := s.views(ctx, userID)
	return views, err
}

// Decrypt is List with the caller's own note opened. Any failure to open a
// note fails the whole call with domain.ErrDecryption and returns no notes.
func (s *transferService) Decrypt(ctx context.Context, userID, password string) ([]ports.TransferView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	views, sealed, err := s.views(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.pool.Do(ctx, jobOpen, func() error {
		kr, err := notecrypto.Unlock(user.WrappedPrivateKey, password)
		if err != nil {
			return err
		}
		for i := range views {
			if views[i].Note, err = kr.Open(sealed[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDecryption) {
			s.log.Info().Str("user_id", userID).Msg("note decryption rejected")
			return nil, domain.ErrDecryption
		}
		return nil, fmt.Errorf("decrypt notes: %w", err)
	}
	return views, nil
}

// views builds the caller's listing plus, index-aligned, the ciphertext of
// the caller's own copy of each note.
func (s *transferService) views(ctx context.Context, userID string) ([]ports.TransferView, []string, error) {
	sent, err := s.txs.ListBySender(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list transfers: %w", err)
	}
	received, err := s.txs.ListByReceiver(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list transfers: %w", err)
	}

	names := map[string]string{}
	name := func(id string) (string, error) {
		if n, ok := names[id]; ok {
			return n, nil
		}
		u, err := s.users.FindByID(ctx, id)
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			names[id] = ""
		case err != nil:
			return "", err
		default:
			names[id] = u.Name
		}
		return names[id], nil
	}

	type entry struct {
		view   ports.TransferView
		sealed string
	}
	entries := make([]entry, 0, len(sent)+len(received))
	add := func(tx *domain.Transaction, dir ports.Direction, counterpartID string, side domain.NoteSide) error {
		n, err := name(counterpartID)
		if err != nil {
			return err
		}
		entries = append(entries, entry{
			view: ports.TransferView{
				ID:          tx.ID,
				Direction:   dir,
				Counterpart: n,
				Amount:      tx.Amount,
				Currency:    tx.Currency,
				Status:      tx.Status,
				CreatedAt:   tx.CreatedAt,
			},
			sealed: tx.Note(side),
		})
		return nil
	}
	for _, tx := range sent {
		if err := add(tx, ports.DirectionSent, tx.ReceiverID, domain.SenderSide); err != nil {
			return nil, nil, fmt.Errorf("list transfers: %w", err)
		}
	}
	for _, tx := range received {
		if err := add(tx, ports.DirectionReceived, tx.SenderID, domain.ReceiverSide); err != nil {
			return nil, nil, fmt.Errorf("list transfers: %w", err)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].view.CreatedAt.Before(entries[j].view.CreatedAt)
	})

	views := make([]ports.TransferView, len(entries))
	sealed := make([]string, len(entries))
	for i, e := range entries {
		views[i] = e.view
		sealed[i] = e.sealed
	}
	return views, sealed, nil
}

// acquireAll takes the leases of every distinct user id in sorted order and
// returns a function releasing all of them.
func acquireAll(ctx context.Context, locker ports.UserLocker, ids ...string) (func(), error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		release, err := locker.Acquire(ctx, id)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
