package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger record by the operation that created it.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer"
	TypeCardCharge TransactionType = "card_charge"
	TypeRefund     TransactionType = "refund"
)

// TransactionStatus is the terminal outcome of a ledger record.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// Transaction is one immutable ledger record for one account.
// Amount is signed from the perspective of the account: debits are negative,
// credits are positive. BalanceAfter snapshots the account balance immediately
// after this record, in creation order. Records are append-only; nothing
// updates or deletes them after commit.
type Transaction struct {
	ID           string            `json:"id"`
	AccountID    string            `json:"account_id"`
	Type         TransactionType   `json:"type"`
	Amount       decimal.Decimal   `json:"amount"`
	BalanceAfter decimal.Decimal   `json:"balance_after"`
	Status       TransactionStatus `json:"status"`
	TransferID   string            `json:"transfer_id,omitempty"`  // correlation to the Transfer, if any
	Counterparty string            `json:"counterparty,omitempty"` // other account in a transfer or refund
	Description  string            `json:"description,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
