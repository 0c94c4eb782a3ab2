package ledger

import (
	"fmt"

	"racestay-engine/pkg/errutil"
)

// ErrInsufficientFunds is returned when a debit would take the account
// below zero. The check runs inside the same locked transaction as the
// insert, so concurrent debits cannot both pass it.
type ErrInsufficientFunds struct {
	UserID    string
	Shortfall int64
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient points: short by %d", e.Shortfall)
}

func (e ErrInsufficientFunds) Status() errutil.CoreStatus {
	return errutil.StatusUnprocessableEntity
}

// ErrDuplicateReference signals that an entry with the same kind and
// reference already exists; the caller's operation already happened.
type ErrDuplicateReference struct {
	Kind        Kind
	ReferenceID string
}

func (e ErrDuplicateReference) Error() string {
	return fmt.Sprintf("ledger entry already recorded for %s/%s", e.Kind, e.ReferenceID)
}

func (e ErrDuplicateReference) Status() errutil.CoreStatus {
	return errutil.StatusConflict
}
