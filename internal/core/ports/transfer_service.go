package ports

import (
	"context"
	"time"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// SendInput is the DTO passed from the transport layer to Send.
type SendInput struct {
	SenderID     string
	ReceiverName string
	Amount       float64
	Currency     string
	SenderNote   string
	ReceiverNote string
}

// Direction tells whether the caller sent or received a transfer.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// TransferView is one transfer as seen by one of its parties. Note is only
// filled in by Decrypt.
type TransferView struct {
	ID          string
	Direction   Direction
	Counterpart string
	Amount      float64
	Currency    domain.Currency
	Status      domain.TransactionStatus
	CreatedAt   time.Time
	Note        string
}

// TransferService sends transfers and reveals the caller's own notes.
type TransferService interface {
	Send(ctx context.Context, in SendInput) (*domain.Transaction, error)
	List(ctx context.Context, userID string) ([]TransferView, error)
	Decrypt(ctx context.Context, userID, password string) ([]TransferView, error)
}

// ChangePasswordInput carries a password rotation request.
type ChangePasswordInput struct {
	UserID      string
	OldPassword string
	NewPassword string
}

// RotationService replaces a user's password and key pair, re-sealing every
// note the user can read.
type RotationService interface {
	ChangePassword(ctx context.Context, in ChangePasswordInput) error
}
