package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/double-entry-transfer-engine/internal/interfaces"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/models"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/models/events"
)

// TopicTransferCompleted is the event topic for committed transfers.
const TopicTransferCompleted = "transfer.completed"

// Ledger serializes every balance-mutating operation per account and
// guarantees the double-entry invariants: balances never go negative, every
// mutation appends exactly one ledger record with the resulting balance, and
// a transfer's four effects (two balance updates, two records) commit as one
// atomic unit or not at all.
//
// The engine takes its storage handle explicitly; there is no process-wide
// singleton. It never retries on its own: validation failures are caller
// errors and storage failures surface as ErrStorageUnavailable for the
// caller to retry with backoff.
type Ledger struct {
	store     interfaces.LedgerStore
	publisher interfaces.EventPublisher // optional, post-commit only
	muMap     map[string]*sync.Mutex    // one mutex per account id
	mapMu     sync.Mutex                // protects muMap itself
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher attaches a post-commit event publisher.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// NewLedger creates an engine on top of any LedgerStore implementation.
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		muMap: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// accountLock returns the mutex for an account, creating it on first use.
// Locks are never removed; the table grows with the number of accounts seen.
func (l *Ledger) accountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = &sync.Mutex{}
	}

	return l.muMap[accountID]
}

// lockPair acquires both account locks in a fixed global order (by account
// id) so that concurrent transfers over the same pair in opposite directions
// cannot deadlock. The returned func releases both.
func (l *Ledger) lockPair(a, b string) func() {
	first, second := l.accountLock(a), l.accountLock(b)
	if a > b {
		first, second = second, first
	}

	first.Lock()
	second.Lock()

	return func() {
		second.Unlock()
		first.Unlock()
	}
}

// validAmount reports whether amount is positive and representable with at
// most two decimal places. Amounts are fixed-point decimals end to end;
// floats never enter the engine.
func validAmount(amount decimal.Decimal) bool {
	if amount.Cmp(decimal.Zero) <= 0 {
		return false
	}

	return amount.Equal(amount.Round(2))
}

// storeErr classifies an error coming back from the storage layer. Domain
// sentinels pass through unchanged; anything else means the atomic unit could
// not complete and is surfaced as retryable.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrTransferNotFound),
		errors.Is(err, ErrInsufficientFunds):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

// OpenAccount onboards a new active account with a zero balance.
func (l *Ledger) OpenAccount(ctx context.Context, owner, name string) (models.Account, error) {
	now := time.Now().UTC()
	account := models.Account{
		ID:        uuid.New().String(),
		Owner:     owner,
		Name:      name,
		Balance:   decimal.Zero,
		Status:    models.AccountActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := l.store.CreateAccount(ctx, account); err != nil {
		return models.Account{}, storeErr(err)
	}

	return account, nil
}

// GetAccount returns the current account snapshot.
func (l *Ledger) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, storeErr(err)
	}

	return account, nil
}

// GetBalance returns the account's current balance.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, storeErr(err)
	}

	return account.Balance, nil
}

// GetTransactions returns the account's ledger records in creation order.
func (l *Ledger) GetTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return nil, storeErr(err)
	}

	txs, err := l.store.GetTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}

	return txs, nil
}

// GetTransfer returns a transfer by id.
func (l *Ledger) GetTransfer(ctx context.Context, transferID string) (models.Transfer, error) {
	transfer, err := l.store.GetTransfer(ctx, transferID)
	if err != nil {
		return models.Transfer{}, storeErr(err)
	}

	return transfer, nil
}

// SuspendAccount moves an active account to inactive. Suspended accounts
// reject every money operation until reactivated.
func (l *Ledger) SuspendAccount(ctx context.Context, accountID string) error {
	return l.setStatus(ctx, accountID, models.AccountActive, models.AccountInactive, nil)
}

// ReactivateAccount moves an inactive account back to active.
func (l *Ledger) ReactivateAccount(ctx context.Context, accountID string) error {
	return l.setStatus(ctx, accountID, models.AccountInactive, models.AccountActive, nil)
}

// CloseAccount moves an account to its terminal closed state. The balance
// must be zero; closed accounts are kept forever, never deleted.
func (l *Ledger) CloseAccount(ctx context.Context, accountID string) error {
	return l.setStatus(ctx, accountID, "", models.AccountClosed, func(account models.Account) error {
		if !account.Balance.IsZero() {
			return ErrAccountNotEmpty
		}
		return nil
	})
}

// setStatus transitions an account under its lock. An empty `from` allows any
// non-terminal current status. Closed is terminal: no transition leaves it.
func (l *Ledger) setStatus(ctx context.Context, accountID string, from, to models.AccountStatus, check func(models.Account) error) error {
	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return storeErr(err)
	}

	if account.Status == models.AccountClosed {
		return ErrAccountClosed
	}

	if from != "" && account.Status != from {
		return ErrAccountClosed
	}

	if check != nil {
		if err := check(account); err != nil {
			return err
		}
	}

	if err := l.store.UpdateAccountStatus(ctx, accountID, to); err != nil {
		return storeErr(err)
	}

	return nil
}

// Deposit credits amount to an active account and appends one completed
// `deposit` record carrying the resulting balance.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.Transaction, error) {
	return l.applySingle(ctx, accountID, models.TypeDeposit, amount, false, description, "")
}

// Withdraw debits amount from an active account, failing with
// ErrInsufficientFunds before any mutation if the balance does not cover it.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.Transaction, error) {
	return l.applySingle(ctx, accountID, models.TypeWithdrawal, amount, true, description, "")
}

// CardCharge debits a card purchase from the backing account. Ledger-side it
// behaves like a withdrawal with its own transaction type.
func (l *Ledger) CardCharge(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.Transaction, error) {
	return l.applySingle(ctx, accountID, models.TypeCardCharge, amount, true, description, "")
}

// Refund credits a previously charged amount back to the account. The
// counterparty, when given, references the account the funds come back from.
func (l *Ledger) Refund(ctx context.Context, accountID string, amount decimal.Decimal, description, counterparty string) (models.Transaction, error) {
	return l.applySingle(ctx, accountID, models.TypeRefund, amount, false, description, counterparty)
}

// applySingle validates and applies a one-account mutation. The amount is
// the caller-supplied positive value; debit flips the sign on the ledger
// record. All validation happens before any mutation; the balance update and
// the record append are one atomic unit in the store.
func (l *Ledger) applySingle(ctx context.Context, accountID string, txType models.TransactionType, amount decimal.Decimal, debit bool, description, counterparty string) (models.Transaction, error) {
	if !validAmount(amount) {
		return models.Transaction{}, ErrInvalidAmount
	}

	signed := amount
	if debit {
		signed = amount.Neg()
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return models.Transaction{}, storeErr(err)
	}

	if account.Status != models.AccountActive {
		return models.Transaction{}, ErrAccountClosed
	}

	newBalance := account.Balance.Add(signed)
	if newBalance.IsNegative() {
		return models.Transaction{}, ErrInsufficientFunds
	}

	tx := models.Transaction{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Type:         txType,
		Amount:       signed,
		BalanceAfter: newBalance,
		Status:       models.TxCompleted,
		Counterparty: counterparty,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}

	if err := l.store.ApplyTransaction(ctx, tx); err != nil {
		return models.Transaction{}, storeErr(err)
	}

	return tx, nil
}

// Transfer atomically moves amount from sender to receiver: the sender
// debit, receiver credit, transfer row and both ledger records commit
// together or not at all. Both locks are taken in account-id order.
func (l *Ledger) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, description string) (models.Transfer, error) {
	if !validAmount(amount) {
		return models.Transfer{}, ErrInvalidAmount
	}

	if senderID == receiverID {
		return models.Transfer{}, ErrSameAccount
	}

	unlock := l.lockPair(senderID, receiverID)
	defer unlock()

	sender, err := l.store.GetAccount(ctx, senderID)
	if err != nil {
		return models.Transfer{}, storeErr(err)
	}

	receiver, err := l.store.GetAccount(ctx, receiverID)
	if err != nil {
		return models.Transfer{}, storeErr(err)
	}

	if sender.Status != models.AccountActive || receiver.Status != models.AccountActive {
		return models.Transfer{}, ErrAccountClosed
	}

	if sender.Balance.LessThan(amount) {
		return models.Transfer{}, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	transfer := models.Transfer{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Amount:      amount,
		Status:      models.TransferCompleted,
		Description: description,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	debit := models.Transaction{
		ID:           uuid.New().String(),
		AccountID:    senderID,
		Type:         models.TypeTransfer,
		Amount:       amount.Neg(),
		BalanceAfter: sender.Balance.Sub(amount),
		Status:       models.TxCompleted,
		TransferID:   transfer.ID,
		Counterparty: receiverID,
		Description:  description,
		CreatedAt:    now,
	}

	credit := models.Transaction{
		ID:           uuid.New().String(),
		AccountID:    receiverID,
		Type:         models.TypeTransfer,
		Amount:       amount,
		BalanceAfter: receiver.Balance.Add(amount),
		Status:       models.TxCompleted,
		TransferID:   transfer.ID,
		Counterparty: senderID,
		Description:  description,
		CreatedAt:    now,
	}

	if err := l.store.ApplyTransfer(ctx, transfer, debit, credit); err != nil {
		return models.Transfer{}, storeErr(err)
	}

	l.publishTransferCompleted(ctx, transfer)

	return transfer, nil
}

// publishTransferCompleted emits the post-commit event. The transfer is
// already durable; a publish failure is the publisher's problem, not the
// caller's, so the error is dropped here and surfaced by the publisher's own
// logging.
func (l *Ledger) publishTransferCompleted(ctx context.Context, transfer models.Transfer) {
	if l.publisher == nil {
		return
	}

	_ = l.publisher.Publish(ctx, TopicTransferCompleted, events.TransferCompleted{
		TransferID: transfer.ID,
		SenderID:   transfer.SenderID,
		ReceiverID: transfer.ReceiverID,
		Amount:     transfer.Amount,
		OccurredAt: time.Now().UTC(),
	})
}
