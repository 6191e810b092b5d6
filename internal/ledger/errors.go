package ledger

import "errors"

// Domain errors form a closed set. Callers branch on them with errors.Is and
// map them to transport status codes; the error kind alone is enough to pick
// the user-facing response.
var (
	// ErrInvalidAmount means the amount is <= 0 or has more than two
	// decimal places.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")

	// ErrAccountNotFound means the referenced account id does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountClosed means the account exists but is not active.
	ErrAccountClosed = errors.New("account is not active")

	// ErrSameAccount means a transfer names the same account on both sides.
	ErrSameAccount = errors.New("sender and receiver are the same account")

	// ErrInsufficientFunds means the requested debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrStorageUnavailable wraps persistence failures. The atomic unit was
	// rolled back; the caller may retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAccountNotEmpty means a close was requested while funds remain.
	ErrAccountNotEmpty = errors.New("account balance must be zero to close")

	// ErrTransferNotFound means the referenced transfer id does not exist.
	ErrTransferNotFound = errors.New("transfer not found")
)
