package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sealnote/transfer-service/internal/core/credential"
	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/notecrypto"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/metrics"
)

// RotationConfig bounds a password rotation.
type RotationConfig struct {
	// Timeout bounds the whole rotation. It must stay below the lease TTL.
	Timeout time.Duration
	// CommitTimeout bounds the final store write.
	CommitTimeout time.Duration
	// Fanout caps the number of notes queued on the pool at once.
	Fanout int
}

type rotationService struct {
	users     ports.UserRepository
	txs       ports.TransactionRepository
	rotations ports.RotationStore
	locker    ports.UserLocker
	creds     Credentials
	pool      CryptoPool
	cfg       RotationConfig
	log       zerolog.Logger
}

// NewRotationService returns a RotationService implementation.
func NewRotationService(
	users ports.UserRepository,
	txs ports.TransactionRepository,
	rotations ports.RotationStore,
	locker ports.UserLocker,
	creds Credentials,
	pool CryptoPool,
	cfg RotationConfig,
	log zerolog.Logger,
) ports.RotationService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Minute
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 10 * time.Second
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 8
	}
	return &rotationService{
		users:     users,
		txs:       txs,
		rotations: rotations,
		locker:    locker,
		creds:     creds,
		pool:      pool,
		cfg:       cfg,
		log:       log,
	}
}

// ChangePassword replaces the password and key pair of in.UserID and
// re-seals every note the user can read under the new key.
//
// Nothing is written until every note has been re-sealed, and the final
// write is a single compare-and-swap commit. Any failure after the input has
// been validated is reported as domain.ErrRotationFailed; the cause is only
// logged.
func (s *rotationService) ChangePassword(ctx context.Context, in ports.ChangePasswordInput) error {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RotationsTotal.WithLabelValues(result).Inc()
		metrics.RotationDuration.Observe(time.Since(start).Seconds())
	}()

	release, err := s.locker.Acquire(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserBusy) {
			result = "busy"
			s.log.Info().Str("user_id", in.UserID).Msg("rotation rejected: user busy")
			return err
		}
		return s.fail(in.UserID, "acquire lease", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return s.fail(in.UserID, "load user", err)
	}

	// 1. old password
	if !s.creds.CheckPassword(in.OldPassword, user.PasswordHash) {
		result = "invalid_credentials"
		s.log.Info().Str("user_id", user.ID).Msg("rotation rejected: wrong password")
		return domain.ErrInvalidCredentials
	}
	// 2-3. new password
	var violations []string
	if in.NewPassword == in.OldPassword {
		violations = append(violations, "new password must differ from the current password")
	}
	violations = append(violations, credential.PasswordViolations("new password", in.NewPassword)...)
	if err := domain.NewValidationError(violations...); err != nil {
		result = "validation"
		return err
	}

	// 4. new key pair, and the old private key for re-opening notes
	var (
		kp  *credential.KeyPair
		old *notecrypto.Keyring
	)
	err = s.pool.Do(ctx, jobKeygen, func() error {
		var err error
		if old, err = notecrypto.Unlock(user.WrappedPrivateKey, in.OldPassword); err != nil {
			return err
		}
		kp, err = s.creds.GenerateKeyPair(in.NewPassword)
		return err
	})
	if err != nil {
		return s.fail(user.ID, "generate key pair", err)
	}
	newPub, err := credential.ParsePublicKey(kp.PublicKey)
	if err != nil {
		return s.fail(user.ID, "parse new public key", err)
	}

	// 5-6. re-seal both sides
	notes, err := s.ownedNotes(ctx, user.ID)
	if err != nil {
		return s.fail(user.ID, "list notes", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Fanout)
	for i := range notes {
		n := &notes[i]
		g.Go(func() error {
			return s.pool.Do(gctx, jobSeal, func() error {
				plain, err := old.Open(n.Previous)
				if err != nil {
					return fmt.Errorf("open %s note of %s: %w", n.Side, n.TransactionID, err)
				}
				n.Next, err = notecrypto.SealTo(newPub, plain)
				if err != nil {
					return fmt.Errorf("seal %s note of %s: %w", n.Side, n.TransactionID, err)
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return s.fail(user.ID, "re-seal notes", err)
	}

	// 7. commit
	hash, err := s.creds.HashPassword(in.NewPassword)
	if err != nil {
		return s.fail(user.ID, "hash password", err)
	}
	commitCtx, cancelCommit := context.WithTimeout(ctx, s.cfg.CommitTimeout)
	defer cancelCommit()
	err = s.rotations.CommitRotation(commitCtx, ports.RotationCommit{
		UserID:            user.ID,
		PreviousPublicKey: user.PublicKey,
		PasswordHash:      hash,
		PublicKey:         kp.PublicKey,
		WrappedPrivateKey: kp.WrappedPrivateKey,
		Notes:             notes,
	})
	if err != nil {
		return s.fail(user.ID, "commit", err)
	}

	result = "ok"
	metrics.RotationNotesResealed.Add(float64(len(notes)))
	s.log.Info().
		Str("user_id", user.ID).
		Int("notes", len(notes)).
		Dur("took", time.Since(start)).
		Msg("password rotated")
	return nil
}

// ownedNotes lists every note sealed to userID, one entry per side. Each
// entry reads its ciphertext from its own transaction record.
func (s *rotationService) ownedNotes(ctx context.Context, userID string) ([]ports.NoteUpdate, error) {
	sent, err := s.txs.ListBySender(ctx, userID)
	if err != nil {
		return nil, err
	}
	received, err := s.txs.ListByReceiver(ctx, userID)
	if err != nil {
		return nil, err
	}

	notes := make([]ports.NoteUpdate, 0, len(sent)+len(received))
	for _, tx := range sent {
		notes = append(notes, ports.NoteUpdate{TransactionID: tx.ID, Side: domain.SenderSide, Previous: tx.SenderNote})
	}
	for _, tx := range received {
		notes = append(notes, ports.NoteUpdate{TransactionID: tx.ID, Side: domain.ReceiverSide, Previous: tx.ReceiverNote})
	}
	return notes, nil
}

func (s *rotationService) fail(userID, stage string, err error) error {
	s.log.Error().Err(err).Str("user_id", userID).Str("stage", stage).Msg("rotation aborted")
	return domain.ErrRotationFailed
}
