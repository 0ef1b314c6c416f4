package handler

import (
	"time"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// --- Request types ---

// Name and password rules are checked by the account service so that every
// violation is reported together.
type registerRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Name     string `json:"name"     validate:"required"`
	Password string `json:"password" validate:"required"`
	Code     string `json:"code,omitempty"`
}

// reverifyRequest is the body of every operation that only needs the current
// password and, when enabled, a one-time code.
type reverifyRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code,omitempty"`
}

type confirmSecondFactorRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code"     validate:"required,numeric"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password"`
	Code        string `json:"code,omitempty"`
}

type createAPIKeyRequest struct {
	Password       string    `json:"password" validate:"required"`
	Code           string    `json:"code,omitempty"`
	Name           string    `json:"name"`
	ExpirationDate time.Time `json:"expiration_date"`
}

type sendTransferRequest struct {
	Password     string  `json:"password" validate:"required"`
	Code         string  `json:"code,omitempty"`
	Receiver     string  `json:"receiver"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	SenderNote   string  `json:"sender_note"`
	ReceiverNote string  `json:"receiver_note"`
}

// --- Response types ---

type registerResponse struct {
	User *domain.User `json:"user"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

type secondFactorResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
}

// createdAPIKeyResponse carries the only copy of the key secret.
type createdAPIKeyResponse struct {
	*domain.APIKey
	Key string `json:"key"`
}

type transferResponse struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	Counterpart string    `json:"counterpart"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	Note        *string   `json:"note,omitempty"`
}
