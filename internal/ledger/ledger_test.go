package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/double-entry-transfer-engine/internal/interfaces"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/ledger"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/models"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// newEngine returns an engine over a fresh in-memory store plus the store
// itself for direct inspection.
func newEngine(t *testing.T) (*ledger.Ledger, *memory.MemoryLedgerStore) {
	t.Helper()
	store := memory.NewMemoryLedgerStore()
	return ledger.NewLedger(store), store
}

// openWithBalance opens an account and seeds it through a deposit so the
// seed itself goes through the ledger.
func openWithBalance(t *testing.T, engine *ledger.Ledger, owner, balance string) models.Account {
	t.Helper()

	account, err := engine.OpenAccount(context.Background(), owner, owner)
	require.NoError(t, err)

	if balance != "0" {
		_, err = engine.Deposit(context.Background(), account.ID, dec(balance), "seed")
		require.NoError(t, err)
	}

	account, err = engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)

	return account
}

func TestOpenAccount(t *testing.T) {
	engine, _ := newEngine(t)

	account, err := engine.OpenAccount(context.Background(), "alice", "checking")
	require.NoError(t, err)

	assert.NotEmpty(t, account.ID)
	assert.Equal(t, models.AccountActive, account.Status)
	assert.True(t, account.Balance.IsZero())
}

func TestTransfer(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "1000.00")
	b := openWithBalance(t, engine, "bob", "500.00")

	transfer, err := engine.Transfer(ctx, a.ID, b.ID, dec("100.00"), "rent")
	require.NoError(t, err)

	assert.Equal(t, models.TransferCompleted, transfer.Status)
	require.NotNil(t, transfer.CompletedAt)

	balA, err := engine.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	balB, err := engine.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, balA.Equal(dec("900.00")), "sender balance = %s", balA)
	assert.True(t, balB.Equal(dec("600.00")), "receiver balance = %s", balB)

	// Exactly one debit and one credit record, correlated by the transfer id,
	// opposite signs, equal magnitude, correct running balances.
	txsA, err := engine.GetTransactions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, txsA, 2) // seed deposit + debit

	debit := txsA[1]
	assert.Equal(t, models.TypeTransfer, debit.Type)
	assert.Equal(t, transfer.ID, debit.TransferID)
	assert.Equal(t, b.ID, debit.Counterparty)
	assert.True(t, debit.Amount.Equal(dec("-100.00")))
	assert.True(t, debit.BalanceAfter.Equal(dec("900.00")))

	txsB, err := engine.GetTransactions(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, txsB, 2)

	credit := txsB[1]
	assert.Equal(t, transfer.ID, credit.TransferID)
	assert.Equal(t, a.ID, credit.Counterparty)
	assert.True(t, credit.Amount.Equal(dec("100.00")))
	assert.True(t, credit.BalanceAfter.Equal(dec("600.00")))

	got, err := engine.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.ID, got.ID)
}

func TestTransferValidation(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "50.00")
	b := openWithBalance(t, engine, "bob", "0")

	tests := []struct {
		name     string
		sender   string
		receiver string
		amount   decimal.Decimal
		wantErr  error
	}{
		{"zero amount", a.ID, b.ID, dec("0"), ledger.ErrInvalidAmount},
		{"negative amount", a.ID, b.ID, dec("-1.00"), ledger.ErrInvalidAmount},
		{"sub-cent amount", a.ID, b.ID, dec("0.005"), ledger.ErrInvalidAmount},
		{"same account", a.ID, a.ID, dec("10.00"), ledger.ErrSameAccount},
		{"unknown sender", "nope", b.ID, dec("10.00"), ledger.ErrAccountNotFound},
		{"unknown receiver", a.ID, "nope", dec("10.00"), ledger.ErrAccountNotFound},
		{"insufficient funds", a.ID, b.ID, dec("50.01"), ledger.ErrInsufficientFunds},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Transfer(ctx, tc.sender, tc.receiver, tc.amount, "")
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	// None of the failures touched any state.
	balA, err := engine.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, balA.Equal(dec("50.00")))

	txsA, err := engine.GetTransactions(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, txsA, 1) // only the seed deposit
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "50.00")

	_, err := engine.Withdraw(ctx, a.ID, dec("100.00"), "")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	balance, err := engine.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("50.00")))

	txs, err := engine.GetTransactions(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestDepositInvalidAmount(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "0")

	_, err := engine.Deposit(ctx, a.ID, dec("-5.00"), "")
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	balance, err := engine.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestDepositClosedAccount(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	c := openWithBalance(t, engine, "carol", "0")
	require.NoError(t, engine.CloseAccount(ctx, c.ID))

	_, err := engine.Deposit(ctx, c.ID, dec("10.00"), "")
	require.ErrorIs(t, err, ledger.ErrAccountClosed)
}

func TestWithdrawExactBalance(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "75.25")

	tx, err := engine.Withdraw(ctx, a.ID, dec("75.25"), "cash out")
	require.NoError(t, err)

	assert.True(t, tx.Amount.Equal(dec("-75.25")))
	assert.True(t, tx.BalanceAfter.IsZero())
	assert.Equal(t, models.TypeWithdrawal, tx.Type)
}

func TestCardChargeAndRefund(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "200.00")

	charge, err := engine.CardCharge(ctx, a.ID, dec("49.99"), "coffee machine")
	require.NoError(t, err)
	assert.Equal(t, models.TypeCardCharge, charge.Type)
	assert.True(t, charge.Amount.Equal(dec("-49.99")))
	assert.True(t, charge.BalanceAfter.Equal(dec("150.01")))

	refund, err := engine.Refund(ctx, a.ID, dec("49.99"), "returned", "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, models.TypeRefund, refund.Type)
	assert.Equal(t, "merchant-1", refund.Counterparty)
	assert.True(t, refund.BalanceAfter.Equal(dec("200.00")))

	// Card charges respect the non-negative invariant like withdrawals.
	_, err = engine.CardCharge(ctx, a.ID, dec("200.01"), "too much")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestAccountLifecycle(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "10.00")

	require.NoError(t, engine.SuspendAccount(ctx, a.ID))

	_, err := engine.Deposit(ctx, a.ID, dec("1.00"), "")
	require.ErrorIs(t, err, ledger.ErrAccountClosed)

	// Double suspend is not a valid transition.
	require.ErrorIs(t, engine.SuspendAccount(ctx, a.ID), ledger.ErrAccountClosed)

	require.NoError(t, engine.ReactivateAccount(ctx, a.ID))
	_, err = engine.Deposit(ctx, a.ID, dec("1.00"), "")
	require.NoError(t, err)

	// Close requires a zero balance.
	require.ErrorIs(t, engine.CloseAccount(ctx, a.ID), ledger.ErrAccountNotEmpty)

	_, err = engine.Withdraw(ctx, a.ID, dec("11.00"), "drain")
	require.NoError(t, err)
	require.NoError(t, engine.CloseAccount(ctx, a.ID))

	// Closed is terminal.
	require.ErrorIs(t, engine.ReactivateAccount(ctx, a.ID), ledger.ErrAccountClosed)
	require.ErrorIs(t, engine.CloseAccount(ctx, a.ID), ledger.ErrAccountClosed)
}

func TestDistinctTransfersAreNotDeduplicated(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "100.00")
	b := openWithBalance(t, engine, "bob", "0")

	t1, err := engine.Transfer(ctx, a.ID, b.ID, dec("25.00"), "first")
	require.NoError(t, err)
	t2, err := engine.Transfer(ctx, a.ID, b.ID, dec("25.00"), "second")
	require.NoError(t, err)

	assert.NotEqual(t, t1.ID, t2.ID)

	balB, err := engine.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, balB.Equal(dec("50.00")), "two logical transfers move 2x the amount")

	txsB, err := engine.GetTransactions(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, txsB, 2)
}

func TestConcurrentOpposingTransfers(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "1000.00")
	b := openWithBalance(t, engine, "bob", "1000.00")

	const n = 50
	amount := dec("10.00")

	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, a.ID, b.ID, amount, "a to b")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, b.ID, a.ID, amount, "b to a")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Equal opposing flows: both balances end where they started, nothing
	// created or destroyed.
	balA, err := engine.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	balB, err := engine.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, balA.Equal(dec("1000.00")), "a = %s", balA)
	assert.True(t, balB.Equal(dec("1000.00")), "b = %s", balB)
	assert.True(t, store.TotalBalance().Equal(dec("2000.00")))

	// Every transfer produced its pair: seed + n debits + n credits per side.
	txsA, err := engine.GetTransactions(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, txsA, 1+2*n)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	a := openWithBalance(t, engine, "alice", "100.00")

	const n = 30 // 30 x 10.00 attempted against 100.00
	var wg sync.WaitGroup
	var succeeded int64
	var mu sync.Mutex

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Withdraw(ctx, a.ID, dec("10.00"), "")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, succeeded)

	balance, err := engine.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.False(t, balance.IsNegative())
}

// faultyStore wraps a working store and fails Apply* calls on demand, to
// exercise the storage failure path.
type faultyStore struct {
	interfaces.LedgerStore
	failApply bool
}

var errDown = errors.New("connection refused")

func (f *faultyStore) ApplyTransaction(ctx context.Context, tx models.Transaction) error {
	if f.failApply {
		return errDown
	}
	return f.LedgerStore.ApplyTransaction(ctx, tx)
}

func (f *faultyStore) ApplyTransfer(ctx context.Context, transfer models.Transfer, debit, credit models.Transaction) error {
	if f.failApply {
		return errDown
	}
	return f.LedgerStore.ApplyTransfer(ctx, transfer, debit, credit)
}

func TestStorageFailureIsRetryable(t *testing.T) {
	inner := memory.NewMemoryLedgerStore()
	faulty := &faultyStore{LedgerStore: inner}
	engine := ledger.NewLedger(faulty)
	ctx := context.Background()

	a, err := engine.OpenAccount(ctx, "alice", "")
	require.NoError(t, err)
	b, err := engine.OpenAccount(ctx, "bob", "")
	require.NoError(t, err)

	_, err = engine.Deposit(ctx, a.ID, dec("100.00"), "seed")
	require.NoError(t, err)

	faulty.failApply = true

	_, err = engine.Deposit(ctx, a.ID, dec("5.00"), "")
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)

	_, err = engine.Transfer(ctx, a.ID, b.ID, dec("5.00"), "")
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)

	// The failed unit left nothing behind; a retry after recovery succeeds.
	faulty.failApply = false

	balance, err := engine.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("100.00")))

	_, err = engine.Transfer(ctx, a.ID, b.ID, dec("5.00"), "")
	require.NoError(t, err)
}

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, topic string, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.events = append(c.events, event)
	return c.err
}

func TestTransferPublishesEvent(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	pub := &capturePublisher{}
	engine := ledger.NewLedger(store, ledger.WithPublisher(pub))
	ctx := context.Background()

	a, err := engine.OpenAccount(ctx, "alice", "")
	require.NoError(t, err)
	b, err := engine.OpenAccount(ctx, "bob", "")
	require.NoError(t, err)
	_, err = engine.Deposit(ctx, a.ID, dec("50.00"), "seed")
	require.NoError(t, err)

	transfer, err := engine.Transfer(ctx, a.ID, b.ID, dec("20.00"), "")
	require.NoError(t, err)

	require.Len(t, pub.topics, 1)
	assert.Equal(t, ledger.TopicTransferCompleted, pub.topics[0])

	// A failing publisher must not affect the engine result.
	pub.err = errors.New("broker down")
	_, err = engine.Transfer(ctx, a.ID, b.ID, dec("20.00"), "")
	require.NoError(t, err)

	got, err := engine.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferCompleted, got.Status)
}
