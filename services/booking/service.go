package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"racestay-engine/pkg/config"
	"racestay-engine/pkg/db/option"
	"racestay-engine/pkg/errutil"
	"racestay-engine/pkg/event"
	"racestay-engine/pkg/repository"
	"racestay-engine/services/ledger"
	"racestay-engine/services/rate"
	"racestay-engine/services/rewards"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const expiredReason = "booking request expired before the host responded"

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	policy  config.BookingPolicy
	rates   *rate.Service
	ledger  *ledger.Service
	rewards *rewards.Service
	emitter event.Emitter

	bookings repository.Repository[Booking]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Rates   *rate.Service
	Ledger  *ledger.Service
	Rewards *rewards.Service
	Emitter event.Emitter `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	emitter := p.Emitter
	if emitter == nil {
		emitter = event.Nop{}
	}

	return &Service{
		db:      p.DB,
		node:    p.Node,
		policy:  p.Config.Booking,
		rates:   p.Rates,
		ledger:  p.Ledger,
		rewards: p.Rewards,
		emitter: emitter,

		bookings: repository.ProvideStore[Booking](p.DB),
	}
}

type RequestParams struct {
	GuestID     string
	HostID      string
	PropertyID  string
	RaceID      string
	Region      string
	CheckIn     time.Time
	CheckOut    time.Time
	GuestsCount int
}

// RequestBooking prices the stay, debits the guest and creates the
// booking in one transaction. This is the only point at which points
// leave the guest for a booking; if the debit fails the booking is
// never created.
func (s *Service) RequestBooking(ctx context.Context, p RequestParams) (*Booking, error) {
	if p.GuestID == "" || p.HostID == "" || p.PropertyID == "" || p.RaceID == "" || p.Region == "" {
		return nil, errutil.BadRequest("guest_id, host_id, property_id, race_id and region are required", nil)
	}
	if p.GuestID == p.HostID {
		return nil, errutil.BadRequest("guest and host must differ", nil)
	}
	if p.GuestsCount <= 0 {
		return nil, errutil.BadRequest("guests_count must be positive", nil)
	}

	now := time.Now()
	if p.CheckIn.Before(startOfDay(now)) {
		return nil, rate.ErrInvalidDateRange{Reason: "check-in must not be in the past"}
	}
	if !p.CheckIn.Before(p.CheckOut) {
		return nil, rate.ErrInvalidDateRange{Reason: "check-in must be before check-out"}
	}
	if nights := rate.Nights(p.CheckIn, p.CheckOut); nights > s.policy.MaxNights {
		return nil, rate.ErrInvalidDateRange{Reason: fmt.Sprintf("stay exceeds the maximum of %d nights", s.policy.MaxNights)}
	}

	pointsCost, err := s.rates.CalculateCost(ctx, p.Region, p.CheckIn, p.CheckOut)
	if err != nil {
		return nil, err
	}

	bk := &Booking{
		ID:          s.node.Generate().String(),
		GuestID:     p.GuestID,
		HostID:      p.HostID,
		PropertyID:  p.PropertyID,
		RaceID:      p.RaceID,
		Region:      p.Region,
		CheckIn:     p.CheckIn,
		CheckOut:    p.CheckOut,
		GuestsCount: p.GuestsCount,
		PointsCost:  pointsCost,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if s.policy.PendingExpiryDays > 0 {
		expiresAt := now.AddDate(0, 0, s.policy.PendingExpiryDays)
		bk.ExpiresAt = &expiresAt
	}

	var newBalance int64
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		_, balance, err := s.ledger.RecordInTx(ctx, tx, ledger.RecordParams{
			UserID:      p.GuestID,
			Amount:      -pointsCost,
			Kind:        ledger.KindBookingPayment,
			ReferenceID: bk.ID,
			BookingID:   bk.ID,
			Description: fmt.Sprintf("Payment for booking %s", bk.ID),
		})
		if err != nil {
			return err
		}
		newBalance = balance

		return s.bookings.WithTrx(tx).Create(ctx, bk)
	}); err != nil {
		return nil, err
	}

	s.log(ctx).Info("booking requested",
		zap.String("booking_id", bk.ID),
		zap.String("guest_id", p.GuestID),
		zap.Int64("points_cost", pointsCost),
	)

	s.emitter.BalanceChanged(ctx, event.BalanceChanged{
		UserID:     p.GuestID,
		Delta:      -pointsCost,
		NewBalance: newBalance,
		Kind:       string(ledger.KindBookingPayment),
	})
	s.emitStatus(ctx, bk.ID, "", StatusPending)

	return bk, nil
}

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// RespondToBooking is the host's answer to a pending request. Rejection
// refunds the guest in full; acceptance has no ledger effect.
func (s *Service) RespondToBooking(ctx context.Context, bookingID, hostID string, decision Decision, message string) (*Booking, error) {
	if decision != DecisionAccept && decision != DecisionReject {
		return nil, errutil.BadRequest("decision must be accept or reject", nil)
	}

	var (
		bk         *Booking
		newBalance int64
	)
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		bk, err = s.loadForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if bk.HostID != hostID {
			return ErrNotAuthorized{BookingID: bookingID, UserID: hostID}
		}
		if bk.Status != StatusPending {
			return ErrInvalidTransition{BookingID: bookingID, From: bk.Status, Action: string(decision)}
		}

		now := time.Now()
		updates := map[string]any{
			"responded_at": now,
			"updated_at":   now,
			"host_message": message,
			"expires_at":   nil,
		}

		if decision == DecisionReject {
			_, balance, err := s.ledger.RecordInTx(ctx, tx, ledger.RecordParams{
				UserID:      bk.GuestID,
				Amount:      bk.PointsCost,
				Kind:        ledger.KindBookingRefund,
				ReferenceID: bk.ID,
				BookingID:   bk.ID,
				Description: fmt.Sprintf("Refund for rejected booking %s", bk.ID),
			})
			if err != nil {
				return err
			}
			newBalance = balance
			updates["status"] = StatusRejected
			bk.Status = StatusRejected
		} else {
			updates["status"] = StatusAccepted
			bk.Status = StatusAccepted
		}

		bk.HostMessage = message
		bk.RespondedAt = &now
		bk.UpdatedAt = now
		bk.ExpiresAt = nil

		return s.bookings.WithTrx(tx).Update(ctx, bk.ID, updates)
	}); err != nil {
		return nil, err
	}

	if bk.Status == StatusRejected {
		s.emitter.BalanceChanged(ctx, event.BalanceChanged{
			UserID:     bk.GuestID,
			Delta:      bk.PointsCost,
			NewBalance: newBalance,
			Kind:       string(ledger.KindBookingRefund),
		})
	}
	s.emitStatus(ctx, bk.ID, StatusPending, bk.Status)

	return bk, nil
}

// ConfirmBooking marks an accepted booking as confirmed by the host.
// Confirmation is a planning milestone; no points move.
func (s *Service) ConfirmBooking(ctx context.Context, bookingID, hostID string) (*Booking, error) {
	var bk *Booking
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		bk, err = s.loadForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if bk.HostID != hostID {
			return ErrNotAuthorized{BookingID: bookingID, UserID: hostID}
		}
		if bk.Status != StatusAccepted {
			return ErrInvalidTransition{BookingID: bookingID, From: bk.Status, Action: "confirm"}
		}

		now := time.Now()
		bk.Status = StatusConfirmed
		bk.ConfirmedAt = &now
		bk.UpdatedAt = now

		return s.bookings.WithTrx(tx).Update(ctx, bk.ID, map[string]any{
			"status":       StatusConfirmed,
			"confirmed_at": now,
			"updated_at":   now,
		})
	}); err != nil {
		return nil, err
	}

	s.emitStatus(ctx, bk.ID, StatusAccepted, StatusConfirmed)

	return bk, nil
}

// CancelBooking cancels from pending, accepted or confirmed.
//
// Guest cancellations refund in full only when made at least
// FreeCancelDays before check-in; later than that the points stay
// spent. Host cancellations always refund the guest and charge the
// host a penalty, which records even if it drives the host's balance
// negative. Retrying a cancellation returns ErrInvalidTransition; the
// refund and penalty are recorded exactly once.
func (s *Service) CancelBooking(ctx context.Context, bookingID, actorID string, cancelledBy CancelledBy, reason string) (*Booking, error) {
	if cancelledBy != CancelledByGuest && cancelledBy != CancelledByHost {
		return nil, errutil.BadRequest("cancelled_by must be guest or host", nil)
	}

	var (
		bk        *Booking
		from      Status
		emissions []event.BalanceChanged
	)
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		emissions = emissions[:0]

		var err error
		bk, err = s.loadForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		switch cancelledBy {
		case CancelledByGuest:
			if bk.GuestID != actorID {
				return ErrNotAuthorized{BookingID: bookingID, UserID: actorID}
			}
		case CancelledByHost:
			if bk.HostID != actorID {
				return ErrNotAuthorized{BookingID: bookingID, UserID: actorID}
			}
		}

		if !bk.Status.Cancellable() {
			return ErrInvalidTransition{BookingID: bookingID, From: bk.Status, Action: "cancel"}
		}
		from = bk.Status

		now := time.Now()
		refund := cancelledBy == CancelledByHost ||
			daysUntil(now, bk.CheckIn) >= s.policy.FreeCancelDays

		if refund {
			_, balance, err := s.ledger.RecordInTx(ctx, tx, ledger.RecordParams{
				UserID:      bk.GuestID,
				Amount:      bk.PointsCost,
				Kind:        ledger.KindBookingRefund,
				ReferenceID: bk.ID,
				BookingID:   bk.ID,
				Description: fmt.Sprintf("Refund for cancelled booking %s", bk.ID),
			})
			if err != nil {
				return err
			}
			emissions = append(emissions, event.BalanceChanged{
				UserID:     bk.GuestID,
				Delta:      bk.PointsCost,
				NewBalance: balance,
				Kind:       string(ledger.KindBookingRefund),
			})
		}

		if cancelledBy == CancelledByHost {
			penalty := s.penaltyAmount(bk.PointsCost)
			_, balance, err := s.ledger.RecordInTx(ctx, tx, ledger.RecordParams{
				UserID:      bk.HostID,
				Amount:      -penalty,
				Kind:        ledger.KindCancellationPenalty,
				ReferenceID: bk.ID,
				BookingID:   bk.ID,
				Description: fmt.Sprintf("Penalty for host-cancelled booking %s", bk.ID),
			})
			if err != nil {
				return err
			}
			emissions = append(emissions, event.BalanceChanged{
				UserID:     bk.HostID,
				Delta:      -penalty,
				NewBalance: balance,
				Kind:       string(ledger.KindCancellationPenalty),
			})
		}

		bk.Status = StatusCancelled
		bk.CancelledBy = cancelledBy
		bk.CancellationReason = reason
		bk.CancelledAt = &now
		bk.UpdatedAt = now

		return s.bookings.WithTrx(tx).Update(ctx, bk.ID, map[string]any{
			"status":              StatusCancelled,
			"cancelled_by":        cancelledBy,
			"cancellation_reason": reason,
			"cancelled_at":        now,
			"updated_at":          now,
		})
	}); err != nil {
		return nil, err
	}

	s.log(ctx).Info("booking cancelled",
		zap.String("booking_id", bk.ID),
		zap.String("cancelled_by", string(cancelledBy)),
		zap.String("from", string(from)),
	)

	for _, ev := range emissions {
		s.emitter.BalanceChanged(ctx, ev)
	}
	s.emitStatus(ctx, bk.ID, from, StatusCancelled)

	return bk, nil
}

// CompleteBooking closes out a confirmed stay after check-out and
// credits the host's hosting reward in the same transaction. force
// skips the check-out gate for administrative corrections.
func (s *Service) CompleteBooking(ctx context.Context, bookingID, hostID string, force bool) (*Booking, error) {
	var (
		bk     *Booking
		reward *ledger.Transaction
	)
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		bk, err = s.loadForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if bk.HostID != hostID {
			return ErrNotAuthorized{BookingID: bookingID, UserID: hostID}
		}
		if bk.Status != StatusConfirmed {
			return ErrInvalidTransition{BookingID: bookingID, From: bk.Status, Action: "complete"}
		}

		now := time.Now()
		if !force && now.Before(bk.CheckOut) {
			return errutil.UnprocessableEntity("booking cannot be completed before check-out", nil)
		}

		reward, err = s.rewards.AwardInTx(ctx, tx, bk.HostID, rewards.TriggerHostingCompleted, rewards.Context{
			BookingID: bk.ID,
			Nights:    rate.Nights(bk.CheckIn, bk.CheckOut),
		})
		if err != nil && !errors.Is(err, rewards.ErrAlreadyAwarded) {
			return err
		}

		bk.Status = StatusCompleted
		bk.CompletedAt = &now
		bk.UpdatedAt = now

		return s.bookings.WithTrx(tx).Update(ctx, bk.ID, map[string]any{
			"status":       StatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		})
	}); err != nil {
		return nil, err
	}

	if reward != nil {
		hostBalance, err := s.ledger.GetBalance(ctx, bk.HostID)
		if err == nil {
			s.emitter.BalanceChanged(ctx, event.BalanceChanged{
				UserID:     bk.HostID,
				Delta:      reward.Amount,
				NewBalance: hostBalance,
				Kind:       string(reward.Kind),
			})
		}
	}
	s.emitStatus(ctx, bk.ID, StatusConfirmed, StatusCompleted)

	return bk, nil
}

// Get returns a booking by ID.
func (s *Service) Get(ctx context.Context, bookingID string) (*Booking, error) {
	bk, err := s.bookings.FindOne(ctx, &Booking{ID: bookingID})
	if err != nil {
		return nil, errutil.Internal("failed to query booking", err)
	}
	if bk == nil {
		return nil, ErrNotFound{BookingID: bookingID}
	}
	return bk, nil
}

// ListForUser returns bookings where the user is guest or host, newest
// first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*Booking, error) {
	var out []*Booking
	db := s.db.WithContext(ctx).
		Where("guest_id = ? OR host_id = ?", userID, userID).
		Order("created_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&out).Error; err != nil {
		return nil, errutil.Internal("failed to list bookings", err)
	}
	return out, nil
}

// ExpirePending cancels booking requests whose host never responded
// within the expiry window, refunding each guest in full. The sweep is
// idempotent: a booking that moved on since the listing is skipped.
func (s *Service) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	if s.policy.PendingExpiryDays <= 0 {
		return 0, nil
	}

	stale, err := s.bookings.Find(ctx, &Booking{Status: StatusPending},
		option.ApplyOperator(option.Condition{Field: "expires_at", Operator: option.LTE, Value: now}),
	)
	if err != nil {
		return 0, errutil.Internal("failed to list stale bookings", err)
	}

	swept := 0
	for _, candidate := range stale {
		var (
			bk         *Booking
			newBalance int64
		)
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			bk, err = s.loadForUpdate(ctx, tx, candidate.ID)
			if err != nil {
				return err
			}
			if bk.Status != StatusPending || bk.ExpiresAt == nil || bk.ExpiresAt.After(now) {
				bk = nil
				return nil
			}

			_, balance, err := s.ledger.RecordInTx(ctx, tx, ledger.RecordParams{
				UserID:      bk.GuestID,
				Amount:      bk.PointsCost,
				Kind:        ledger.KindBookingRefund,
				ReferenceID: bk.ID,
				BookingID:   bk.ID,
				Description: fmt.Sprintf("Refund for expired booking %s", bk.ID),
			})
			if err != nil {
				return err
			}
			newBalance = balance

			bk.Status = StatusCancelled
			bk.CancelledBy = CancelledByGuest
			bk.CancellationReason = expiredReason
			bk.CancelledAt = &now
			bk.UpdatedAt = now

			return s.bookings.WithTrx(tx).Update(ctx, bk.ID, map[string]any{
				"status":              StatusCancelled,
				"cancelled_by":        CancelledByGuest,
				"cancellation_reason": expiredReason,
				"cancelled_at":        now,
				"updated_at":          now,
			})
		})
		if err != nil {
			s.log(ctx).Error("failed to expire booking",
				zap.String("booking_id", candidate.ID), zap.Error(err))
			continue
		}
		if bk == nil {
			continue
		}

		swept++
		s.emitter.BalanceChanged(ctx, event.BalanceChanged{
			UserID:     bk.GuestID,
			Delta:      bk.PointsCost,
			NewBalance: newBalance,
			Kind:       string(ledger.KindBookingRefund),
		})
		s.emitStatus(ctx, bk.ID, StatusPending, StatusCancelled)
	}

	if swept > 0 {
		s.log(ctx).Info("expired pending bookings", zap.Int("count", swept))
	}

	return swept, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, bookingID string) (*Booking, error) {
	bk, err := s.bookings.WithTrx(tx).FindOne(ctx, &Booking{ID: bookingID}, option.WithLockingUpdate())
	if err != nil {
		return nil, errutil.Internal("failed to query booking", err)
	}
	if bk == nil {
		return nil, ErrNotFound{BookingID: bookingID}
	}
	return bk, nil
}

func (s *Service) penaltyAmount(pointsCost int64) int64 {
	if s.policy.PenaltyMode == config.PenaltyModeFlat {
		return s.policy.PenaltyFlatAmount
	}
	return pointsCost
}

func (s *Service) emitStatus(ctx context.Context, bookingID string, from, to Status) {
	s.emitter.BookingStatusChanged(ctx, event.BookingStatusChanged{
		BookingID: bookingID,
		From:      string(from),
		To:        string(to),
	})
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// daysUntil counts whole days between now and the check-in date.
func daysUntil(now, checkIn time.Time) int {
	return int(checkIn.Sub(now).Hours() / 24)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
