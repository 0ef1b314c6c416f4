package ports

import (
	"context"
	"time"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// RegisterInput is the DTO passed from the transport layer to Register.
type RegisterInput struct {
	Name     string
	Password string
}

// LoginInput carries credentials; Code is only checked when the user has a
// second factor enabled.
type LoginInput struct {
	Name     string
	Password string
	Code     string
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// SecondFactorEnrollment is shown to the user once so they can configure an
// authenticator app.
type SecondFactorEnrollment struct {
	Secret string
	URI    string
}

// AccountService defines account lifecycle operations. Callers are expected
// to have applied the authentication gates before invoking the operations
// that take a user id.
type AccountService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Unregister(ctx context.Context, userID string) error
	BeginSecondFactor(ctx context.Context, userID string) (*SecondFactorEnrollment, error)
	ConfirmSecondFactor(ctx context.Context, userID, code string) error
	ListUsers(ctx context.Context) ([]*domain.User, error)
}
