// Package gateway resolves the Authorization header of a request to an
// authenticated principal and applies the optional password re-verification
// and second-factor gates.
//
// Every stage is a Step over an immutable RequestContext; callers compose
// the stages they need with Chain.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sealnote/transfer-service/internal/core/domain"
	"github.com/sealnote/transfer-service/internal/core/ports"
	"github.com/sealnote/transfer-service/internal/metrics"
)

// PasswordChecker re-checks a password against a stored hash.
type PasswordChecker interface {
	CheckPassword(password, hash string) bool
}

// CodeVerifier verifies a one-time code against a sealed secret.
type CodeVerifier interface {
	Verify(ctx context.Context, userID string, sealed []byte, code string) error
}

// Gateway holds the collaborators of the authentication steps.
type Gateway struct {
	users     ports.UserRepository
	keys      ports.APIKeyRepository
	tokens    *TokenIssuer
	passwords PasswordChecker
	codes     CodeVerifier
	now       func() time.Time
	log       zerolog.Logger
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithClock overrides the clock used for API key expiry.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(
	users ports.UserRepository,
	keys ports.APIKeyRepository,
	tokens *TokenIssuer,
	passwords PasswordChecker,
	codes CodeVerifier,
	log zerolog.Logger,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		users:     users,
		keys:      keys,
		tokens:    tokens,
		passwords: passwords,
		codes:     codes,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate runs ParseHeader followed by ResolvePrincipal.
func (g *Gateway) Authenticate(ctx context.Context, header string) (RequestContext, error) {
	rc, err := Chain(ParseHeader, g.ResolvePrincipal)(ctx, NewRequestContext(header))

	outcome := "ok"
	var ae *domain.AuthError
	switch {
	case err == nil:
	case errors.As(err, &ae):
		outcome = ae.Kind.String()
		g.log.Debug().Str("scheme", rc.scheme.metricLabel()).Str("reason", outcome).Msg("authentication rejected")
	default:
		outcome = "error"
		g.log.Error().Err(err).Str("scheme", rc.scheme.metricLabel()).Msg("authentication failed")
	}
	metrics.AuthAttemptsTotal.WithLabelValues(rc.scheme.metricLabel(), outcome).Inc()

	if err != nil {
		return NewRequestContext(header), err
	}
	return rc, nil
}

// ParseHeader splits the header into scheme and token. It performs no I/O.
// Scheme names are case-insensitive, as in RFC 7235.
func ParseHeader(_ context.Context, rc RequestContext) (RequestContext, error) {
	if strings.TrimSpace(rc.header) == "" {
		return rc, domain.NewAuthError(domain.MissingCredential)
	}
	parts := strings.Split(rc.header, " ")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return rc, domain.NewAuthError(domain.MalformedCredential)
	}
	switch {
	case strings.EqualFold(parts[0], string(SchemeBearer)):
		return rc.withCredential(SchemeBearer, parts[1]), nil
	case strings.EqualFold(parts[0], string(SchemeAPIKey)):
		return rc.withCredential(SchemeAPIKey, parts[1]), nil
	default:
		return rc, domain.NewAuthError(domain.MalformedCredential)
	}
}

// ResolvePrincipal verifies the parsed credential and loads its user.
func (g *Gateway) ResolvePrincipal(ctx context.Context, rc RequestContext) (RequestContext, error) {
	switch rc.scheme {
	case SchemeBearer:
		return g.resolveBearer(ctx, rc)
	case SchemeAPIKey:
		return g.resolveAPIKey(ctx, rc)
	default:
		return rc, domain.NewAuthError(domain.MissingCredential)
	}
}

func (g *Gateway) resolveBearer(ctx context.Context, rc RequestContext) (RequestContext, error) {
	userID, err := g.tokens.Verify(rc.token)
	if err != nil {
		return rc, err
	}
	user, err := g.users.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return rc, domain.NewAuthError(domain.PrincipalGone)
	}
	if err != nil {
		return rc, fmt.Errorf("load principal: %w", err)
	}
	return rc.withPrincipal(user, ""), nil
}

func (g *Gateway) resolveAPIKey(ctx context.Context, rc RequestContext) (RequestContext, error) {
	key, err := g.keys.FindByDigest(ctx, DigestAPIKey(rc.token))
	if errors.Is(err, domain.ErrAPIKeyNotFound) {
		return rc, domain.NewAuthError(domain.UnknownCredential)
	}
	if err != nil {
		return rc, fmt.Errorf("load api key: %w", err)
	}

	if key.Expired(g.now()) {
		if err := g.keys.Delete(ctx, key.ID); err != nil && !errors.Is(err, domain.ErrAPIKeyNotFound) {
			g.log.Error().Err(err).Str("key_id", key.ID).Msg("evict expired api key")
		} else {
			metrics.APIKeysEvictedTotal.Inc()
			g.log.Info().Str("key_id", key.ID).Str("user_id", key.UserID).Msg("expired api key evicted")
		}
		return rc, domain.NewAuthError(domain.UnknownCredential)
	}

	user, err := g.users.FindByID(ctx, key.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return rc, domain.NewAuthError(domain.PrincipalGone)
	}
	if err != nil {
		return rc, fmt.Errorf("load principal: %w", err)
	}
	return rc.withPrincipal(user, key.ID), nil
}

// RequireRole admits principals holding one of roles.
func RequireRole(roles ...domain.Role) Step {
	return func(_ context.Context, rc RequestContext) (RequestContext, error) {
		if rc.principal == nil {
			return rc, domain.NewAuthError(domain.MissingCredential)
		}
		for _, want := range roles {
			if holds(rc.principal.Role, want) {
				return rc, nil
			}
		}
		return rc, domain.ErrForbidden
	}
}

// holds is the authorization table. Roles are not hierarchical: an admin
// does not implicitly act as a user.
func holds(have, want domain.Role) bool {
	switch want {
	case domain.RoleUser:
		return have == domain.RoleUser
	case domain.RoleAdmin:
		return have == domain.RoleAdmin
	default:
		return false
	}
}

// Reverify re-checks the principal's current password.
func (g *Gateway) Reverify(password string) Step {
	return func(_ context.Context, rc RequestContext) (RequestContext, error) {
		if rc.principal == nil {
			return rc, domain.NewAuthError(domain.MissingCredential)
		}
		if !g.passwords.CheckPassword(password, rc.principal.PasswordHash) {
			g.log.Info().Str("user_id", rc.principal.ID).Msg("password re-verification failed")
			return rc, domain.ErrInvalidCredentials
		}
		return rc.withReverified(), nil
	}
}

// SecondFactor requires a valid one-time code when the principal has a
// second factor enabled and passes through otherwise.
func (g *Gateway) SecondFactor(code string) Step {
	return func(ctx context.Context, rc RequestContext) (RequestContext, error) {
		if rc.principal == nil {
			return rc, domain.NewAuthError(domain.MissingCredential)
		}
		if !rc.principal.SecondFactorEnabled {
			return rc.withSecondFactor(), nil
		}
		err := g.codes.Verify(ctx, rc.principal.ID, rc.principal.SecondFactorSecret, code)
		switch {
		case err == nil:
			metrics.SecondFactorChecksTotal.WithLabelValues("ok").Inc()
			return rc.withSecondFactor(), nil
		case errors.Is(err, domain.ErrInvalidCredentials):
			metrics.SecondFactorChecksTotal.WithLabelValues("rejected").Inc()
			g.log.Info().Str("user_id", rc.principal.ID).Msg("second factor rejected")
			return rc, domain.ErrInvalidCredentials
		default:
			metrics.SecondFactorChecksTotal.WithLabelValues("error").Inc()
			return rc, err
		}
	}
}
