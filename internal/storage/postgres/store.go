package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/double-entry-transfer-engine/internal/interfaces"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/ledger"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/models"
)

// PostgresLedgerStore persists accounts, transactions and transfers with
// database/sql. Each Apply* call runs inside one database transaction.
//
// Debits carry their own guard in SQL (`balance >= $n` in the UPDATE) so a
// second engine instance sharing the database still cannot drive a balance
// negative, even though the in-process lock table already serializes writers
// within one instance.
type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, owner, name, balance, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.db.ExecContext(ctx, query,
		account.ID, account.Owner, account.Name, account.Balance,
		account.Status, account.CreatedAt, account.UpdatedAt)

	return err
}

func (p *PostgresLedgerStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	const query = `SELECT id, owner, name, balance, status, created_at, updated_at
	FROM accounts WHERE id = $1`

	return scanAccount(p.db.QueryRowContext(ctx, query, accountID))
}

func (p *PostgresLedgerStore) UpdateAccountStatus(ctx context.Context, accountID string, status models.AccountStatus) error {
	const query = `UPDATE accounts SET status = $1, updated_at = now() WHERE id = $2`

	result, err := p.db.ExecContext(ctx, query, status, accountID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrAccountNotFound
	}

	return nil
}

// ApplyTransaction updates the balance and appends the ledger record in one
// database transaction. The UPDATE takes a row lock, pinning the row for the
// duration of the unit.
func (p *PostgresLedgerStore) ApplyTransaction(ctx context.Context, tx models.Transaction) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = p.updateBalance(ctx, dbTx, tx.AccountID, tx.Amount); err != nil {
		return err
	}

	if err = p.insertTransaction(ctx, dbTx, tx); err != nil {
		return err
	}

	return dbTx.Commit()
}

// ApplyTransfer commits both balance updates, the transfer row and both
// ledger records in one database transaction. Balance updates run in
// account-id order so two instances transferring over the same pair in
// opposite directions cannot deadlock on row locks.
func (p *PostgresLedgerStore) ApplyTransfer(ctx context.Context, transfer models.Transfer, debit, credit models.Transaction) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	first, second := debit, credit
	if first.AccountID > second.AccountID {
		first, second = second, first
	}

	if err = p.updateBalance(ctx, dbTx, first.AccountID, first.Amount); err != nil {
		return err
	}

	if err = p.updateBalance(ctx, dbTx, second.AccountID, second.Amount); err != nil {
		return err
	}

	const insertTransfer = `INSERT INTO transfers (id, sender_id, receiver_id, amount, status, description, created_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err = dbTx.ExecContext(ctx, insertTransfer,
		transfer.ID, transfer.SenderID, transfer.ReceiverID, transfer.Amount,
		transfer.Status, transfer.Description, transfer.CreatedAt, transfer.CompletedAt); err != nil {
		return err
	}

	if err = p.insertTransaction(ctx, dbTx, debit); err != nil {
		return err
	}

	if err = p.insertTransaction(ctx, dbTx, credit); err != nil {
		return err
	}

	return dbTx.Commit()
}

// updateBalance applies a signed delta to one account row. Debits carry a
// non-negative guard in the WHERE clause; when the guarded UPDATE matches no
// row the cause is disambiguated into not-found vs insufficient funds.
func (p *PostgresLedgerStore) updateBalance(ctx context.Context, dbTx *sql.Tx, accountID string, delta decimal.Decimal) error {
	const query = `UPDATE accounts SET balance = balance + $1, updated_at = now()
	WHERE id = $2 AND balance + $1 >= 0`

	result, err := dbTx.ExecContext(ctx, query, delta, accountID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		var exists bool
		if err := dbTx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ledger.ErrAccountNotFound
		}
		return ledger.ErrInsufficientFunds
	}

	return nil
}

func (p *PostgresLedgerStore) insertTransaction(ctx context.Context, dbTx *sql.Tx, tx models.Transaction) error {
	const query = `INSERT INTO transactions (id, account_id, type, amount, balance_after, status, transfer_id, counterparty, description, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)`

	_, err := dbTx.ExecContext(ctx, query,
		tx.ID, tx.AccountID, tx.Type, tx.Amount, tx.BalanceAfter,
		tx.Status, tx.TransferID, tx.Counterparty, tx.Description, tx.CreatedAt)

	return err
}

func (p *PostgresLedgerStore) GetTransactionsByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	const query = `SELECT id, account_id, type, amount, balance_after, status,
	COALESCE(transfer_id, ''), COALESCE(counterparty, ''), description, created_at
	FROM transactions WHERE account_id = $1 ORDER BY created_at, id`

	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Type, &tx.Amount, &tx.BalanceAfter,
			&tx.Status, &tx.TransferID, &tx.Counterparty, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

func (p *PostgresLedgerStore) GetTransfer(ctx context.Context, transferID string) (models.Transfer, error) {
	const query = `SELECT id, sender_id, receiver_id, amount, status, description, created_at, completed_at
	FROM transfers WHERE id = $1`

	var transfer models.Transfer
	err := p.db.QueryRowContext(ctx, query, transferID).Scan(
		&transfer.ID, &transfer.SenderID, &transfer.ReceiverID, &transfer.Amount,
		&transfer.Status, &transfer.Description, &transfer.CreatedAt, &transfer.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transfer{}, ledger.ErrTransferNotFound
	}
	if err != nil {
		return models.Transfer{}, err
	}

	return transfer, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (models.Account, error) {
	var account models.Account
	err := row.Scan(&account.ID, &account.Owner, &account.Name, &account.Balance,
		&account.Status, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}

	return account, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
