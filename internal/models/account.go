package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the canonical lifecycle state of an account.
// There is exactly one status field; no parallel boolean flags.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
	AccountClosed   AccountStatus = "closed"
)

// Account holds the current balance for one owner.
// The balance is only ever mutated through the ledger engine, which records
// a Transaction for every change. Accounts are never deleted, only closed.
type Account struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Status    AccountStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
