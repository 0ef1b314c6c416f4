package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrForbidden           = errors.New("access forbidden")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrUserBusy            = errors.New("another operation is in progress for this user")
	ErrAPIKeyNotFound      = errors.New("api key not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrRotationFailed      = errors.New("password change failed")

	// ErrConflict is returned by stores when a compare-and-swap precondition
	// no longer holds.
	ErrConflict = errors.New("stale record")
)

// ErrDecryption is returned when a note cannot be opened. Wrong passphrase
// and corrupt ciphertext are deliberately reported the same way, and callers
// see it as ErrInvalidCredentials.
var ErrDecryption = fmt.Errorf("decryption failed: %w", ErrInvalidCredentials)

// ValidationError carries every violated rule, not only the first one.
type ValidationError struct {
	Violations []string
}

// NewValidationError returns nil when there are no violations.
func NewValidationError(violations ...string) error {
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthErrorKind classifies why a credential was rejected.
type AuthErrorKind int

const (
	MissingCredential AuthErrorKind = iota + 1
	MalformedCredential
	TokenExpired
	TokenNotYetValid
	TokenInvalid
	UnknownCredential
	PrincipalGone
)

func (k AuthErrorKind) String() string {
	switch k {
	case MissingCredential:
		return "missing_credential"
	case MalformedCredential:
		return "malformed_credential"
	case TokenExpired:
		return "token_expired"
	case TokenNotYetValid:
		return "token_not_yet_valid"
	case TokenInvalid:
		return "token_invalid"
	case UnknownCredential:
		return "unknown_credential"
	case PrincipalGone:
		return "principal_gone"
	}
	return "unknown"
}

// AuthError is returned by the authentication gateway. Its message is
// intentionally generic.
type AuthError struct {
	Kind AuthErrorKind
}

func NewAuthError(kind AuthErrorKind) *AuthError {
	return &AuthError{Kind: kind}
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case MissingCredential:
		return "missing authentication credential"
	case MalformedCredential:
		return "malformed authentication credential"
	case TokenExpired:
		return "authentication token expired"
	case TokenNotYetValid:
		return "authentication token not yet valid"
	case PrincipalGone:
		return "user no longer exists"
	default:
		return "invalid authentication credential"
	}
}

func (e *AuthError) Unwrap() error { return ErrUnauthenticated }

// IsAuthKind reports whether err is an AuthError of the given kind.
func IsAuthKind(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}
