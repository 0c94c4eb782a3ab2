package booking

import "time"

// Status is the booking lifecycle state.
//
//	pending -> accepted -> confirmed -> completed
//	pending -> rejected
//	pending|accepted|confirmed -> cancelled
//
// rejected, cancelled and completed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a cancellation may start from this state.
func (s Status) Cancellable() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusConfirmed:
		return true
	default:
		return false
	}
}

// CancelledBy records which side of the booking cancelled it.
type CancelledBy string

const (
	CancelledByGuest CancelledBy = "guest"
	CancelledByHost  CancelledBy = "host"
)

// Booking links a guest, a host, a property and a race-linked stay
// window. PointsCost is computed once at request time and never changes
// afterwards, regardless of later rate-table updates.
type Booking struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	GuestID     string    `gorm:"column:guest_id;index" json:"guest_id"`
	HostID      string    `gorm:"column:host_id;index" json:"host_id"`
	PropertyID  string    `gorm:"column:property_id;index" json:"property_id"`
	RaceID      string    `gorm:"column:race_id;index" json:"race_id"`
	Region      string    `gorm:"column:region" json:"region"`
	CheckIn     time.Time `gorm:"column:check_in" json:"check_in"`
	CheckOut    time.Time `gorm:"column:check_out" json:"check_out"`
	GuestsCount int       `gorm:"column:guests_count" json:"guests_count"`
	PointsCost  int64     `gorm:"column:points_cost" json:"points_cost"`
	Status      Status    `gorm:"column:status;type:varchar(16);index" json:"status"`

	HostMessage        string      `gorm:"column:host_message" json:"host_message,omitempty"`
	CancelledBy        CancelledBy `gorm:"column:cancelled_by;type:varchar(8)" json:"cancelled_by,omitempty"`
	CancellationReason string      `gorm:"column:cancellation_reason" json:"cancellation_reason,omitempty"`

	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updated_at"`
	RespondedAt *time.Time `gorm:"column:responded_at" json:"responded_at,omitempty"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	// ExpiresAt is set on pending requests when the expiry sweep is
	// enabled; nil means the request never expires.
	ExpiresAt *time.Time `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}
