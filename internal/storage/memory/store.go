package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/double-entry-transfer-engine/internal/interfaces"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/ledger"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/models"
)

// MemoryLedgerStore is an in-memory LedgerStore for tests and local runs.
// One mutex guards all state, so each Apply* call is atomic by construction:
// nothing is visible to readers until the whole mutation is in place.
type MemoryLedgerStore struct {
	mu           sync.Mutex
	accounts     map[string]models.Account
	transactions []models.Transaction // append-only, creation order
	transfers    map[string]models.Transfer
}

// NewMemoryLedgerStore creates an empty in-memory store.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts:     make(map[string]models.Account),
		transactions: make([]models.Transaction, 0),
		transfers:    make(map[string]models.Transfer),
	}
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[account.ID] = account
	return nil
}

func (m *MemoryLedgerStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return models.Account{}, ledger.ErrAccountNotFound
	}

	return account, nil
}

func (m *MemoryLedgerStore) UpdateAccountStatus(ctx context.Context, accountID string, status models.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}

	account.Status = status
	account.UpdatedAt = nowUTC()
	m.accounts[accountID] = account

	return nil
}

// ApplyTransaction sets the account balance to tx.BalanceAfter and appends tx
// under the one store mutex, so no partial state is ever observable.
func (m *MemoryLedgerStore) ApplyTransaction(ctx context.Context, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[tx.AccountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}

	account.Balance = tx.BalanceAfter
	account.UpdatedAt = tx.CreatedAt
	m.accounts[tx.AccountID] = account
	m.transactions = append(m.transactions, tx)

	return nil
}

// ApplyTransfer commits both balance updates, the transfer and both ledger
// records in one critical section. Validation happens before any write, so a
// failure leaves the store untouched.
func (m *MemoryLedgerStore) ApplyTransfer(ctx context.Context, transfer models.Transfer, debit, credit models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.accounts[transfer.SenderID]
	if !ok {
		return ledger.ErrAccountNotFound
	}

	receiver, ok := m.accounts[transfer.ReceiverID]
	if !ok {
		return ledger.ErrAccountNotFound
	}

	sender.Balance = debit.BalanceAfter
	sender.UpdatedAt = debit.CreatedAt
	receiver.Balance = credit.BalanceAfter
	receiver.UpdatedAt = credit.CreatedAt

	m.accounts[transfer.SenderID] = sender
	m.accounts[transfer.ReceiverID] = receiver
	m.transfers[transfer.ID] = transfer
	m.transactions = append(m.transactions, debit, credit)

	return nil
}

func (m *MemoryLedgerStore) GetTransactionsByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID == accountID {
			result = append(result, tx)
		}
	}

	return result, nil
}

func (m *MemoryLedgerStore) GetTransfer(ctx context.Context, transferID string) (models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transfer, ok := m.transfers[transferID]
	if !ok {
		return models.Transfer{}, ledger.ErrTransferNotFound
	}

	return transfer, nil
}

// TotalBalance sums every account balance. Handy for conservation checks in
// tests: deposits aside, transfers must never change the total.
func (m *MemoryLedgerStore) TotalBalance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := decimal.Zero
	for _, account := range m.accounts {
		total = total.Add(account.Balance)
	}

	return total
}

func nowUTC() time.Time { return time.Now().UTC() }

// Compile-time check: MemoryLedgerStore implements LedgerStore.
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
