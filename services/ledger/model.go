package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Kind classifies a points movement. The set is closed: every credit or
// debit the platform can make has exactly one kind.
type Kind string

const (
	KindBookingPayment        Kind = "booking_payment"
	KindBookingRefund         Kind = "booking_refund"
	KindBookingEarningHosting Kind = "booking_earning_hosting"
	KindCancellationPenalty   Kind = "cancellation_penalty"
	KindPropertyBonus         Kind = "property_bonus"
	KindRaceBonus             Kind = "race_bonus"
	KindVerificationBonus     Kind = "verification_bonus"
	KindSubscriptionBonus     Kind = "subscription_bonus"
	KindReviewBonus           Kind = "review_bonus"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBookingPayment, KindBookingRefund, KindBookingEarningHosting,
		KindCancellationPenalty, KindPropertyBonus, KindRaceBonus,
		KindVerificationBonus, KindSubscriptionBonus, KindReviewBonus:
		return true
	default:
		return false
	}
}

// AllowsNegativeBalance reports whether a debit of this kind may push the
// account below zero. Cancellation penalties always record, even when the
// host cannot cover them; the deficit is recovered through future earnings.
func (k Kind) AllowsNegativeBalance() bool {
	return k == KindCancellationPenalty
}

// Transaction is one immutable ledger entry. Rows are append-only: a
// correction is a new offsetting entry, never an update. Entries form a
// per-user hash chain for tamper evidence during audits.
type Transaction struct {
	ID              string         `gorm:"column:id;primaryKey"`
	CreatedAt       time.Time      `gorm:"column:created_at;index"`
	UserID          string         `gorm:"column:user_id;index"`
	Amount          int64          `gorm:"column:amount"`
	Kind            Kind           `gorm:"column:kind;type:varchar(32);index:idx_kind_reference,unique"`
	ReferenceID     string         `gorm:"column:reference_id;index:idx_kind_reference,unique"`
	BookingID       string         `gorm:"column:booking_id;index"`
	TransactionCode string         `gorm:"column:transaction_code"`
	Description     string         `gorm:"column:description"`
	Metadata        datatypes.JSON `gorm:"column:metadata"`
	PreviousHash    string         `gorm:"column:previous_hash"`
	Hash            string         `gorm:"column:hash"`
}

func (Transaction) TableName() string {
	return "points_transactions"
}

// Balance is the materialized per-user view of the transaction fold. It
// is updated inside the same database transaction as every insert and is
// always reconstructible by summing points_transactions.
type Balance struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;uniqueIndex"`
	Balance   int64     `gorm:"column:balance"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Balance) TableName() string {
	return "points_balances"
}

type TransactionParams struct {
	ID              string
	UserID          string
	Amount          int64
	Kind            Kind
	ReferenceID     string
	BookingID       string
	TransactionCode string
	Description     string
	PreviousHash    string
	Metadata        datatypes.JSON
}

func NewTransaction(p TransactionParams) *Transaction {
	return &Transaction{
		ID:              p.ID,
		UserID:          p.UserID,
		Amount:          p.Amount,
		Kind:            p.Kind,
		ReferenceID:     p.ReferenceID,
		BookingID:       p.BookingID,
		TransactionCode: p.TransactionCode,
		Description:     p.Description,
		PreviousHash:    p.PreviousHash,
		Metadata:        p.Metadata,
	}
}

func (t *Transaction) HashFields() map[string]string {
	return map[string]string{
		"id":               t.ID,
		"user_id":          t.UserID,
		"amount":           fmt.Sprintf("%d", t.Amount),
		"kind":             string(t.Kind),
		"reference_id":     t.ReferenceID,
		"booking_id":       t.BookingID,
		"transaction_code": t.TransactionCode,
		"description":      t.Description,
		"created_at":       t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":    t.PreviousHash,
	}
}

func (t *Transaction) GenerateHash() string {
	fields := t.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// GenerateTransactionCode builds the human-facing "TXN-YYYYMMDD-XXXXXX"
// reference printed on statements.
func GenerateTransactionCode() (string, error) {
	datePart := time.Now().Format("20060102")

	r := make([]byte, 3) // 3 bytes = 6 hex chars
	if _, err := rand.Read(r); err != nil {
		return "", err
	}

	return fmt.Sprintf("TXN-%s-%s", datePart, strings.ToUpper(hex.EncodeToString(r))), nil
}
