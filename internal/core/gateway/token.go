package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

const minSecretBytes = 32

// TokenConfig configures bearer token signing.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	// Leeway tolerates clock drift on exp and nbf.
	Leeway time.Duration
	Issuer string
	Now    func() time.Time
}

// TokenIssuer signs and verifies HS256 bearer tokens whose subject is a
// user id.
type TokenIssuer struct {
	cfg    TokenConfig
	parser *jwt.Parser
}

func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("gateway: token secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("gateway: token ttl must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &TokenIssuer{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// Issue returns a signed token for userID valid from now for the configured
// TTL.
func (t *TokenIssuer) Issue(userID string) (string, time.Time, error) {
	now := t.cfg.Now()
	exp := now.Add(t.cfg.TTL)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    t.cfg.Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature and time claims and returns the subject. Failures
// are *domain.AuthError with kind TokenExpired, TokenNotYetValid or
// TokenInvalid.
func (t *TokenIssuer) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := t.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.cfg.Secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", domain.NewAuthError(domain.TokenExpired)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "", domain.NewAuthError(domain.TokenNotYetValid)
	default:
		return "", domain.NewAuthError(domain.TokenInvalid)
	}
	if claims.Subject == "" {
		return "", domain.NewAuthError(domain.TokenInvalid)
	}
	return claims.Subject, nil
}
