package interfaces

import (
	"context"

	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/models"
)

// LedgerStore is the persistence contract for the ledger engine.
//
// ApplyTransaction and ApplyTransfer are the only balance-mutating calls and
// each one is an atomic unit: the balance update(s) and the appended ledger
// record(s) all commit together or not at all. Implementations must never
// leave a partial result observable, including when the context is cancelled
// mid-call.
type LedgerStore interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	UpdateAccountStatus(ctx context.Context, accountID string, status models.AccountStatus) error

	// ApplyTransaction sets the account balance to tx.BalanceAfter and
	// appends tx in one atomic unit.
	ApplyTransaction(ctx context.Context, tx models.Transaction) error

	// ApplyTransfer sets the sender balance to debit.BalanceAfter and the
	// receiver balance to credit.BalanceAfter, and appends the transfer and
	// both of its ledger records, all in one atomic unit.
	ApplyTransfer(ctx context.Context, transfer models.Transfer, debit, credit models.Transaction) error

	GetTransactionsByAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
	GetTransfer(ctx context.Context, transferID string) (models.Transfer, error)
}
