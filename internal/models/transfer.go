package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus tracks the lifecycle of a transfer.
// pending -> completed on the success path, pending -> failed when validation
// or the commit fails. Both end states are terminal.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is one logical fund movement between two accounts. A completed
// Transfer corresponds to exactly two Transactions sharing its ID: a debit on
// the sender and a credit on the receiver, equal in magnitude, committed in
// the same atomic unit as both balance updates.
type Transfer struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"sender_id"`
	ReceiverID  string          `json:"receiver_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      TransferStatus  `json:"status"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
