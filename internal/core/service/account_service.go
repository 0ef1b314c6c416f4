package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sealnote/transfer-service/internal/core/credential"
	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/metrics"
)

const maxNameLength = 64

type accountService struct {
	users  ports.UserRepository
	locker ports.UserLocker
	creds  Credentials
	pool   CryptoPool
	codes  SecondFactor
	tokens TokenIssuer
	log    zerolog.Logger
}

// NewAccountService returns an AccountService implementation.
func NewAccountService(
	users ports.UserRepository,
	locker ports.UserLocker,
	creds Credentials,
	pool CryptoPool,
	codes SecondFactor,
	tokens TokenIssuer,
	log zerolog.Logger,
) ports.AccountService {
	return &accountService{
		users:  users,
		locker: locker,
		creds:  creds,
		pool:   pool,
		codes:  codes,
		tokens: tokens,
		log:    log,
	}
}

// Register validates the input, generates the user's key pair on the crypto
// pool and stores the new account with role USER.
func (s *accountService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)

	var violations []string
	switch {
	case name == "":
		violations = append(violations, "name is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		violations = append(violations, fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	violations = append(violations, credential.PasswordViolations("password", in.Password)...)
	if err := domain.NewValidationError(violations...); err != nil {
		return nil, err
	}

	// Cheap check before the expensive key generation; Create still enforces
	// uniqueness.
	if _, err := s.users.FindByName(ctx, name); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	hash, err := s.creds.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	var kp *credential.KeyPair
	err = s.pool.Do(ctx, jobKeygen, func() error {
		var err error
		kp, err = s.creds.GenerateKeyPair(in.Password)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:                uuid.NewString(),
		Name:              name,
		PasswordHash:      hash,
		PublicKey:         kp.PublicKey,
		WrappedPrivateKey: kp.WrappedPrivateKey,
		Role:              domain.RoleUser,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	metrics.UsersRegisteredTotal.Inc()
	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Login fails with domain.ErrInvalidCredentials for an unknown name, a wrong
// password and a wrong code alike.
func (s *accountService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	user, err := s.users.FindByName(ctx, strings.TrimSpace(in.Name))
	if errors.Is(err, domain.ErrUserNotFound) {
		s.creds.CheckPassword(in.Password, "")
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if !s.creds.CheckPassword(in.Password, user.PasswordHash) {
		s.log.Info().Str("user_id", user.ID).Msg("login rejected")
		return nil, domain.ErrInvalidCredentials
	}
	if user.SecondFactorEnabled {
		if err := s.codes.Verify(ctx, user.ID, user.SecondFactorSecret, in.Code); err != nil {
			if errors.Is(err, domain.ErrInvalidCredentials) {
				s.log.Info().Str("user_id", user.ID).Msg("login rejected: second factor")
				return nil, domain.ErrInvalidCredentials
			}
			return nil, fmt.Errorf("login: %w", err)
		}
	}

	token, exp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &ports.LoginResult{Token: token, ExpiresAt: exp, User: user}, nil
}

// Unregister deletes the account and its API keys. It takes the user's lease
// so it cannot interleave with a rotation.
func (s *accountService) Unregister(ctx context.Context, userID string) error {
	release, err := s.locker.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("unregister: %w", err)
	}
	s.log.Info().Str("user_id", userID).Msg("user unregistered")
	return nil
}

// BeginSecondFactor stores a fresh sealed secret as pending. The active
// secret and enabled flag are left as they were until ConfirmSecondFactor
// succeeds, so abandoning a re-enrollment cannot lock the user out.
func (s *accountService) BeginSecondFactor(ctx context.Context, userID string) (*ports.SecondFactorEnrollment, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.codes.Enroll(user.ID, user.Name)
	if err != nil {
		return nil, fmt.Errorf("begin second factor: %w", err)
	}
	if err := s.users.SetPendingSecondFactor(ctx, user.ID, enrollment.Sealed); err != nil {
		return nil, fmt.Errorf("begin second factor: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("second factor secret generated")
	return &ports.SecondFactorEnrollment{Secret: enrollment.Secret, URI: enrollment.URI}, nil
}

// ConfirmSecondFactor promotes the pending secret and enables the second
// factor once code matches it.
func (s *accountService) ConfirmSecondFactor(ctx context.Context, userID, code string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	pending := user.PendingSecondFactorSecret
	if len(pending) == 0 {
		return domain.NewValidationError("second factor secret has not been generated")
	}

	if err := s.codes.Verify(ctx, user.ID, pending, code); err != nil {
		return err
	}
	if err := s.users.UpdateSecondFactor(ctx, user.ID, pending, true); err != nil {
		return fmt.Errorf("confirm second factor: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("second factor enabled")
	return nil
}

func (s *accountService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
