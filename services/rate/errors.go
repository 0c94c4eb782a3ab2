package rate

import (
	"fmt"

	"racestay-engine/pkg/errutil"
)

// ErrUnknownRegion is returned when no rate exists for a region. Missing
// regions fail closed instead of defaulting to a zero cost.
type ErrUnknownRegion struct {
	Region string
}

func (e ErrUnknownRegion) Error() string {
	return fmt.Sprintf("no rate configured for region %q", e.Region)
}

func (e ErrUnknownRegion) Status() errutil.CoreStatus {
	return errutil.StatusUnprocessableEntity
}

// ErrInvalidDateRange is returned when a stay window cannot be priced.
type ErrInvalidDateRange struct {
	Reason string
}

func (e ErrInvalidDateRange) Error() string {
	return fmt.Sprintf("invalid date range: %s", e.Reason)
}

func (e ErrInvalidDateRange) Status() errutil.CoreStatus {
	return errutil.StatusValidationFailed
}
