package booking

import (
	"fmt"

	"racestay-engine/pkg/errutil"
)

// ErrInvalidTransition is returned when an operation is not legal from
// the booking's current state. Terminal states reject everything.
type ErrInvalidTransition struct {
	BookingID string
	From      Status
	Action    string
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s booking %s from state %s", e.Action, e.BookingID, e.From)
}

func (e ErrInvalidTransition) Status() errutil.CoreStatus {
	return errutil.StatusConflict
}

// ErrNotAuthorized is returned when the acting user is neither the
// guest nor the host the operation requires.
type ErrNotAuthorized struct {
	BookingID string
	UserID    string
}

func (e ErrNotAuthorized) Error() string {
	return fmt.Sprintf("user %s may not act on booking %s", e.UserID, e.BookingID)
}

func (e ErrNotAuthorized) Status() errutil.CoreStatus {
	return errutil.StatusForbidden
}

// ErrNotFound is returned for unknown booking IDs.
type ErrNotFound struct {
	BookingID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("booking %s not found", e.BookingID)
}

func (e ErrNotFound) Status() errutil.CoreStatus {
	return errutil.StatusNotFound
}
