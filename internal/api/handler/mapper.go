package handler

import (
	"github.com/sealnote/transfer-service/internal/core/ports"
)

// --- Service result → HTTP response ---

func toTransferResponses(views []ports.TransferView, withNotes bool) []transferResponse {
	out := make([]transferResponse, 0, len(views))
	for _, v := range views {
		r := transferResponse{
			ID:          v.ID,
			Direction:   string(v.Direction),
			Counterpart: v.Counterpart,
			Amount:      v.Amount,
			Currency:    string(v.Currency),
			Status:      string(v.Status),
			CreatedAt:   v.CreatedAt.UTC(),
		}
		if withNotes {
			note := v.Note
			r.Note = &note
		}
		out = append(out, r)
	}
	return out
}
