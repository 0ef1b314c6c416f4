package domain

import (
	"sort"
	"strings"
	"time"
)

// Currency is the closed set of currencies a transfer can be made in.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyCHF Currency = "CHF"
	CurrencyJPY Currency = "JPY"
)

var currencies = map[Currency]struct{}{
	CurrencyEUR: {},
	CurrencyUSD: {},
	CurrencyGBP: {},
	CurrencyCHF: {},
	CurrencyJPY: {},
}

// ParseCurrency maps a client supplied code onto the closed enumeration.
func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := currencies[c]
	return c, ok
}

// Currencies lists the supported codes in a stable order.
func Currencies() []string {
	out := make([]string, 0, len(currencies))
	for c := range currencies {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

// TransactionStatus is the ledger state of a transfer. Settlement is handled
// outside this service, so new transfers stay pending here.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionRejected  TransactionStatus = "REJECTED"
)

// Transaction is a value transfer carrying two independently sealed notes.
type Transaction struct {
	ID           string            `json:"id"`
	SenderID     string            `json:"sender_id"`
	ReceiverID   string            `json:"receiver_id"`
	Amount       float64           `json:"amount"`
	Currency     Currency          `json:"currency"`
	SenderNote   string            `json:"-"`
	ReceiverNote string            `json:"-"`
	Status       TransactionStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NoteSide selects which sealed copy of a transaction a note update targets.
type NoteSide int

const (
	SenderSide NoteSide = iota
	ReceiverSide
)

func (s NoteSide) String() string {
	if s == SenderSide {
		return "sender"
	}
	return "receiver"
}

// Note returns the ciphertext held for the given side.
func (t *Transaction) Note(side NoteSide) string {
	if side == SenderSide {
		return t.SenderNote
	}
	return t.ReceiverNote
}

// SetNote replaces the ciphertext held for the given side.
func (t *Transaction) SetNote(side NoteSide, ciphertext string) {
	if side == SenderSide {
		t.SenderNote = ciphertext
		return
	}
	t.ReceiverNote = ciphertext
}
