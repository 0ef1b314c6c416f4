package credential

import (
	"fmt"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

// PasswordViolations lists every policy rule the password breaks. field is
// used as the subject of each message.
func PasswordViolations(field, password string) []string {
	var out []string
	if len([]rune(password)) < MinPasswordLength {
		out = append(out, fmt.Sprintf("%s must be at least %d characters", field, MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		out = append(out, fmt.Sprintf("%s must be at most %d bytes", field, MaxPasswordBytes))
	}

	var digit, upper bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'A' && r <= 'Z':
			upper = true
		}
	}
	if !digit {
		out = append(out, field+" must contain a number")
	}
	if !upper {
		out = append(out, field+" must contain an uppercase letter")
	}
	return out
}

// ValidatePassword returns a *domain.ValidationError naming every violated
// rule, or nil.
func ValidatePassword(field, password string) error {
	return domain.NewValidationError(PasswordViolations(field, password)...)
}
