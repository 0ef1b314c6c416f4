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

	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/gateway"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/metrics"
)

const (
	DefaultAPIKeyMaxTTL = 30 * 24 * time.Hour
	maxLabelLength      = 64
)

type apiKeyService struct {
	keys   ports.APIKeyRepository
	maxTTL time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewAPIKeyService returns an APIKeyService. Keys may live at most maxTTL;
// a non-positive value selects DefaultAPIKeyMaxTTL.
func NewAPIKeyService(keys ports.APIKeyRepository, maxTTL time.Duration, log zerolog.Logger) ports.APIKeyService {
	if maxTTL <= 0 {
		maxTTL = DefaultAPIKeyMaxTTL
	}
	return &apiKeyService{keys: keys, maxTTL: maxTTL, now: time.Now, log: log}
}

func (s *apiKeyService) Create(ctx context.Context, in ports.CreateAPIKeyInput) (*ports.CreatedAPIKey, error) {
	label := strings.TrimSpace(in.Label)
	now := s.now().UTC()

	var violations []string
	switch {
	case label == "":
		violations = append(violations, "name is required")
	case utf8.RuneCountInString(label) > maxLabelLength:
		violations = append(violations, fmt.Sprintf("name must be at most %d characters", maxLabelLength))
	}
	switch {
	case !in.ExpiresAt.After(now):
		violations = append(violations, "expiration_date must be in the future")
	case in.ExpiresAt.Sub(now) > s.maxTTL:
		violations = append(violations, fmt.Sprintf("expiration_date must be within %s", humanDuration(s.maxTTL)))
	}
	if err := domain.NewValidationError(violations...); err != nil {
		return nil, err
	}

	secret, digest, err := gateway.NewAPIKeySecret()
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	key := &domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Digest:    digest,
		Label:     label,
		ExpiresAt: in.ExpiresAt.UTC(),
		CreatedAt: now,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.log.Info().Str("user_id", in.UserID).Str("key_id", key.ID).Time("expires_at", key.ExpiresAt).Msg("api key created")
	return &ports.CreatedAPIKey{Key: key, Secret: secret}, nil
}

// List returns the live keys of userID and purges the expired ones.
func (s *apiKeyService) List(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	now := s.now()
	live := keys[:0]
	for _, k := range keys {
		if !k.Expired(now) {
			live = append(live, k)
			continue
		}
		if err := s.keys.Delete(ctx, k.ID); err != nil && !errors.Is(err, domain.ErrAPIKeyNotFound) {
			s.log.Error().Err(err).Str("key_id", k.ID).Msg("evict expired api key")
			continue
		}
		metrics.APIKeysEvictedTotal.Inc()
	}
	return live, nil
}

// Revoke deletes keyID. A key owned by someone else is reported exactly like
// an unknown one.
func (s *apiKeyService) Revoke(ctx context.Context, userID, keyID string) error {
	key, err := s.keys.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return err
		}
		return fmt.Errorf("revoke api key: %w", err)
	}
	if key.UserID != userID {
		return domain.ErrAPIKeyNotFound
	}
	if err := s.keys.Delete(ctx, key.ID); err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return err
		}
		return fmt.Errorf("revoke api key: %w", err)
	}

	s.log.Info().Str("user_id", userID).Str("key_id", key.ID).Msg("api key revoked")
	return nil
}

func humanDuration(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
