package booking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"racestay-engine/pkg/config"
	"racestay-engine/pkg/db/pagination"
	"racestay-engine/services/ledger"
	"racestay-engine/services/rate"
	"racestay-engine/services/rewards"
	"racestay-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc    *Service
	ledger *ledger.Service
	rates  *rate.Service

	refSeq int
}

func defaultPolicy() config.BookingPolicy {
	return config.BookingPolicy{
		FreeCancelDays:    7,
		PenaltyMode:       config.PenaltyModeFullCost,
		PenaltyFlatAmount: 100,
		PendingExpiryDays: 14,
		MaxNights:         30,
	}
}

func newFixture(t *testing.T, policy config.BookingPolicy) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.Transaction{}, &ledger.Balance{}, &rate.Rate{}, &Booking{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	rateSvc := rate.NewService(rate.ServiceParams{DB: db, Node: node})
	rewardSvc := rewards.NewService(rewards.ServiceParams{Ledger: ledgerSvc})

	svc := NewService(ServiceParams{
		DB:      db,
		Node:    node,
		Config:  &config.Config{Booking: policy},
		Rates:   rateSvc,
		Ledger:  ledgerSvc,
		Rewards: rewardSvc,
	})

	f := &fixture{svc: svc, ledger: ledgerSvc, rates: rateSvc}

	_, err = rateSvc.Upsert(context.Background(), "Madrid", 25)
	require.NoError(t, err)

	return f
}

// fund credits a user so they can pay for bookings.
func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()

	f.refSeq++
	_, err := f.ledger.Record(context.Background(), ledger.RecordParams{
		UserID:      userID,
		Amount:      amount,
		Kind:        ledger.KindRaceBonus,
		ReferenceID: fmt.Sprintf("seed-%s-%d", userID, f.refSeq),
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()

	balance, err := f.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func (f *fixture) request(t *testing.T, daysUntilCheckIn, nights int) *Booking {
	t.Helper()

	now := time.Now()
	bk, err := f.svc.RequestBooking(context.Background(), RequestParams{
		GuestID:     "guest-1",
		HostID:      "host-1",
		PropertyID:  "prop-1",
		RaceID:      "race-1",
		Region:      "Madrid",
		CheckIn:     now.AddDate(0, 0, daysUntilCheckIn),
		CheckOut:    now.AddDate(0, 0, daysUntilCheckIn+nights),
		GuestsCount: 2,
	})
	require.NoError(t, err)
	return bk
}

func TestRequestBookingFreezesCost(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)

	bk := f.request(t, 10, 2)

	require.Equal(t, StatusPending, bk.Status)
	require.Equal(t, int64(50), bk.PointsCost)
	require.NotNil(t, bk.ExpiresAt)
	require.Equal(t, int64(50), f.balance(t, "guest-1"))

	// A later rate change must not reprice the booking.
	_, err := f.rates.Upsert(context.Background(), "Madrid", 40)
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), bk.ID)
	require.NoError(t, err)
	require.Equal(t, int64(50), got.PointsCost)
}

func TestRequestBookingInsufficientFunds(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 40)

	now := time.Now()
	_, err := f.svc.RequestBooking(context.Background(), RequestParams{
		GuestID:     "guest-1",
		HostID:      "host-1",
		PropertyID:  "prop-1",
		RaceID:      "race-1",
		Region:      "Madrid",
		CheckIn:     now.AddDate(0, 0, 10),
		CheckOut:    now.AddDate(0, 0, 12),
		GuestsCount: 2,
	})

	var insufficient ledger.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(10), insufficient.Shortfall)

	// The booking was never created and no points moved.
	require.Equal(t, int64(40), f.balance(t, "guest-1"))

	bookings, err := f.svc.ListForUser(context.Background(), "guest-1", 0)
	require.NoError(t, err)
	require.Empty(t, bookings)
}

func TestRequestBookingValidation(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 5000)
	ctx := context.Background()
	now := time.Now()

	base := RequestParams{
		GuestID:     "guest-1",
		HostID:      "host-1",
		PropertyID:  "prop-1",
		RaceID:      "race-1",
		Region:      "Madrid",
		CheckIn:     now.AddDate(0, 0, 10),
		CheckOut:    now.AddDate(0, 0, 12),
		GuestsCount: 2,
	}

	p := base
	p.HostID = "guest-1"
	_, err := f.svc.RequestBooking(ctx, p)
	require.Error(t, err)

	p = base
	p.CheckIn = now.AddDate(0, 0, -2)
	p.CheckOut = now.AddDate(0, 0, 1)
	_, err = f.svc.RequestBooking(ctx, p)
	var invalidRange rate.ErrInvalidDateRange
	require.ErrorAs(t, err, &invalidRange)

	p = base
	p.CheckOut = p.CheckIn.AddDate(0, 0, 31)
	_, err = f.svc.RequestBooking(ctx, p)
	require.ErrorAs(t, err, &invalidRange)

	p = base
	p.Region = "Atlantis"
	_, err = f.svc.RequestBooking(ctx, p)
	var unknown rate.ErrUnknownRegion
	require.ErrorAs(t, err, &unknown)

	p = base
	p.GuestsCount = 0
	_, err = f.svc.RequestBooking(ctx, p)
	require.Error(t, err)
}

func TestRespondAccept(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)

	got, err := f.svc.RespondToBooking(context.Background(), bk.ID, "host-1", DecisionAccept, "see you there")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, got.Status)
	require.Equal(t, "see you there", got.HostMessage)
	require.Nil(t, got.ExpiresAt)

	// Acceptance moves no points.
	require.Equal(t, int64(50), f.balance(t, "guest-1"))
}

func TestRespondRejectRefunds(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)

	got, err := f.svc.RespondToBooking(context.Background(), bk.ID, "host-1", DecisionReject, "dates unavailable")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	require.Equal(t, int64(100), f.balance(t, "guest-1"))
}

func TestRespondAuthorizationAndLegality(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)
	ctx := context.Background()

	_, err := f.svc.RespondToBooking(ctx, bk.ID, "someone-else", DecisionAccept, "")
	var notAuthorized ErrNotAuthorized
	require.ErrorAs(t, err, &notAuthorized)

	_, err = f.svc.RespondToBooking(ctx, bk.ID, "host-1", Decision("maybe"), "")
	require.Error(t, err)

	_, err = f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)

	_, err = f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	var invalid ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, StatusAccepted, invalid.From)

	_, err = f.svc.RespondToBooking(ctx, "missing", "host-1", DecisionAccept, "")
	var notFound ErrNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestConfirmOnlyFromAccepted(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)
	ctx := context.Background()

	_, err := f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
	var invalid ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)

	_, err = f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)

	got, err := f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)

	_, err = f.svc.ConfirmBooking(ctx, bk.ID, "guest-1")
	var notAuthorized ErrNotAuthorized
	require.ErrorAs(t, err, &notAuthorized)
}

func TestGuestCancelEarlyGetsFullRefund(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)
	ctx := context.Background()

	_, err := f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)

	got, err := f.svc.CancelBooking(ctx, bk.ID, "guest-1", CancelledByGuest, "plans changed")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Equal(t, CancelledByGuest, got.CancelledBy)
	require.Equal(t, int64(100), f.balance(t, "guest-1"))
}

func TestGuestCancelLateForfeitsPoints(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 3, 2)
	ctx := context.Background()

	got, err := f.svc.CancelBooking(ctx, bk.ID, "guest-1", CancelledByGuest, "")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	// Inside the free-cancellation window the points stay spent.
	require.Equal(t, int64(50), f.balance(t, "guest-1"))
}

func TestHostCancelRefundsAndPenalizes(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)
	ctx := context.Background()

	_, err := f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
	require.NoError(t, err)

	got, err := f.svc.CancelBooking(ctx, bk.ID, "host-1", CancelledByHost, "double booked")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Equal(t, CancelledByHost, got.CancelledBy)

	require.Equal(t, int64(100), f.balance(t, "guest-1"))

	// The penalty records even though the host cannot cover it.
	require.Equal(t, int64(-50), f.balance(t, "host-1"))
}

func TestHostCancelFlatPenaltyMode(t *testing.T) {
	policy := defaultPolicy()
	policy.PenaltyMode = config.PenaltyModeFlat
	policy.PenaltyFlatAmount = 100

	f := newFixture(t, policy)
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)

	_, err := f.svc.CancelBooking(context.Background(), bk.ID, "host-1", CancelledByHost, "")
	require.NoError(t, err)

	require.Equal(t, int64(-100), f.balance(t, "host-1"))
}

func TestCancelIsIdempotentViaTransitionCheck(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)
	ctx := context.Background()

	_, err := f.svc.CancelBooking(ctx, bk.ID, "host-1", CancelledByHost, "")
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, bk.ID, "host-1", CancelledByHost, "")
	var invalid ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, StatusCancelled, invalid.From)

	// Exactly one refund and one penalty, despite the retry.
	require.Equal(t, int64(100), f.balance(t, "guest-1"))
	require.Equal(t, int64(-50), f.balance(t, "host-1"))

	entries, _, err := f.ledger.History(ctx, "host-1", pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCancelAuthorizationFollowsSide(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 10, 2)
	ctx := context.Background()

	_, err := f.svc.CancelBooking(ctx, bk.ID, "host-1", CancelledByGuest, "")
	var notAuthorized ErrNotAuthorized
	require.ErrorAs(t, err, &notAuthorized)

	_, err = f.svc.CancelBooking(ctx, bk.ID, "guest-1", CancelledByHost, "")
	require.ErrorAs(t, err, &notAuthorized)

	_, err = f.svc.CancelBooking(ctx, bk.ID, "guest-1", CancelledBy("system"), "")
	require.Error(t, err)
}

func TestCompleteBookingAwardsHosting(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	bk := f.request(t, 5, 3)
	ctx := context.Background()

	_, err := f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
	require.NoError(t, err)

	// Check-out has not passed yet.
	_, err = f.svc.CompleteBooking(ctx, bk.ID, "host-1", false)
	require.Error(t, err)

	got, err := f.svc.CompleteBooking(ctx, bk.ID, "host-1", true)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Three nights at 40 points per night.
	require.Equal(t, int64(120), f.balance(t, "host-1"))

	_, err = f.svc.CompleteBooking(ctx, bk.ID, "host-1", true)
	var invalid ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)

	// The retry did not double-award.
	require.Equal(t, int64(120), f.balance(t, "host-1"))
}

func TestLifecycleKeepsLedgerConsistent(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 200)
	bk := f.request(t, 5, 3)
	ctx := context.Background()

	_, err := f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
	require.NoError(t, err)
	_, err = f.svc.CompleteBooking(ctx, bk.ID, "host-1", true)
	require.NoError(t, err)

	for _, userID := range []string{"guest-1", "host-1"} {
		audit, err := f.ledger.AuditBalance(ctx, userID)
		require.NoError(t, err)
		require.True(t, audit.InSync, "balance out of sync for %s", userID)

		valid, err := f.ledger.VerifyChain(ctx, userID)
		require.NoError(t, err)
		require.True(t, valid)
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 500)
	ctx := context.Background()

	terminal := map[string]*Booking{}

	bk := f.request(t, 10, 2)
	_, err := f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionReject, "")
	require.NoError(t, err)
	terminal["rejected"] = bk

	bk = f.request(t, 10, 2)
	_, err = f.svc.CancelBooking(ctx, bk.ID, "guest-1", CancelledByGuest, "")
	require.NoError(t, err)
	terminal["cancelled"] = bk

	bk = f.request(t, 5, 2)
	_, err = f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
	require.NoError(t, err)
	_, err = f.svc.CompleteBooking(ctx, bk.ID, "host-1", true)
	require.NoError(t, err)
	terminal["completed"] = bk

	var invalid ErrInvalidTransition
	for name, bk := range terminal {
		got, err := f.svc.Get(ctx, bk.ID)
		require.NoError(t, err)
		require.True(t, got.Status.Terminal(), "%s is terminal", name)
		require.False(t, got.Status.Cancellable(), "%s is not cancellable", name)

		_, err = f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
		require.ErrorAs(t, err, &invalid, "respond from %s", name)

		_, err = f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
		require.ErrorAs(t, err, &invalid, "confirm from %s", name)

		_, err = f.svc.CancelBooking(ctx, bk.ID, "host-1", CancelledByHost, "")
		require.ErrorAs(t, err, &invalid, "cancel from %s", name)

		_, err = f.svc.CompleteBooking(ctx, bk.ID, "host-1", true)
		require.ErrorAs(t, err, &invalid, "complete from %s", name)
	}
}

func TestExpirePendingSweep(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 200)
	ctx := context.Background()

	stale := f.request(t, 20, 2)
	fresh := f.request(t, 25, 2)

	// Backdate the first request past its expiry window.
	expired := time.Now().Add(-time.Hour)
	require.NoError(t, f.svc.db.Model(&Booking{}).
		Where("id = ?", stale.ID).
		Update("expires_at", expired).Error)

	swept, err := f.svc.ExpirePending(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	got, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Equal(t, CancelledByGuest, got.CancelledBy)
	require.Equal(t, expiredReason, got.CancellationReason)

	untouched, err := f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, untouched.Status)

	// Only the expired booking was refunded.
	require.Equal(t, int64(150), f.balance(t, "guest-1"))

	// The sweep is idempotent.
	swept, err = f.svc.ExpirePending(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, swept)
}

func TestExpirePendingDisabled(t *testing.T) {
	policy := defaultPolicy()
	policy.PendingExpiryDays = 0

	f := newFixture(t, policy)
	f.fund(t, "guest-1", 100)

	bk := f.request(t, 10, 2)
	require.Nil(t, bk.ExpiresAt)

	swept, err := f.svc.ExpirePending(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, swept)
}
