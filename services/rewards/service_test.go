package rewards

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"racestay-engine/services/ledger"
	"racestay-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.Transaction{}, &ledger.Balance{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})

	return NewService(ServiceParams{Ledger: ledgerSvc}), ledgerSvc
}

func TestAwardAmounts(t *testing.T) {
	cases := []struct {
		name    string
		trigger Trigger
		context Context
		amount  int64
		kind    ledger.Kind
	}{
		{"property", TriggerPropertyAdded, Context{PropertyID: "prop-1"}, 30, ledger.KindPropertyBonus},
		{"race", TriggerRaceAdded, Context{RaceID: "race-1"}, 40, ledger.KindRaceBonus},
		{"hosting three nights", TriggerHostingCompleted, Context{BookingID: "bk-1", Nights: 3}, 120, ledger.KindBookingEarningHosting},
		{"five star review", TriggerFiveStarReview, Context{BookingID: "bk-1"}, 15, ledger.KindReviewBonus},
		{"verification", TriggerVerificationApproved, Context{}, 25, ledger.KindVerificationBonus},
		{"subscription", TriggerSubscriptionPurchased, Context{}, 30, ledger.KindSubscriptionBonus},
		{"renewal", TriggerSubscriptionRenewed, Context{EventID: "evt-1"}, 50, ledger.KindSubscriptionBonus},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestService(t)

			entry, err := svc.Award(context.Background(), "user-1", tc.trigger, tc.context)
			require.NoError(t, err)
			require.Equal(t, tc.amount, entry.Amount)
			require.Equal(t, tc.kind, entry.Kind)
		})
	}
}

func TestAwardAtMostOncePerScope(t *testing.T) {
	svc, ledgerSvc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Award(ctx, "host-1", TriggerHostingCompleted, Context{BookingID: "bk-1", Nights: 3})
	require.NoError(t, err)

	_, err = svc.Award(ctx, "host-1", TriggerHostingCompleted, Context{BookingID: "bk-1", Nights: 3})
	require.ErrorIs(t, err, ErrAlreadyAwarded)

	balance, err := ledgerSvc.GetBalance(ctx, "host-1")
	require.NoError(t, err)
	require.Equal(t, int64(120), balance)
}

func TestAwardVerificationIsLifetime(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Award(ctx, "user-1", TriggerVerificationApproved, Context{})
	require.NoError(t, err)

	_, err = svc.Award(ctx, "user-1", TriggerVerificationApproved, Context{})
	require.ErrorIs(t, err, ErrAlreadyAwarded)

	// A different user has their own lifetime scope.
	_, err = svc.Award(ctx, "user-2", TriggerVerificationApproved, Context{})
	require.NoError(t, err)
}

func TestAwardRenewalPerEvent(t *testing.T) {
	svc, ledgerSvc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{EventID: "evt-1"})
	require.NoError(t, err)

	// Redelivery of the same webhook event is a no-op.
	_, err = svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{EventID: "evt-1"})
	require.ErrorIs(t, err, ErrAlreadyAwarded)

	// The next renewal period earns again.
	_, err = svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{EventID: "evt-2"})
	require.NoError(t, err)

	balance, err := ledgerSvc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}

func TestAwardFirstSubscriptionThenRenewals(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Award(ctx, "user-1", TriggerSubscriptionPurchased, Context{})
	require.NoError(t, err)

	_, err = svc.Award(ctx, "user-1", TriggerSubscriptionPurchased, Context{})
	require.ErrorIs(t, err, ErrAlreadyAwarded)

	_, err = svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{EventID: "evt-1"})
	require.NoError(t, err)
}

func TestAwardRetrySucceedsAfterStorageFailure(t *testing.T) {
	db := testutil.NewTestDB(t, &ledger.Transaction{}, &ledger.Balance{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{Ledger: ledgerSvc})
	ctx := context.Background()

	// Make the first delivery fail at the storage layer.
	require.NoError(t, db.Migrator().DropTable(&ledger.Transaction{}))

	_, err = svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{EventID: "evt-1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyAwarded)

	// The webhook retry after recovery must credit the bonus: the failed
	// attempt recorded nothing, so nothing may mark the event as done.
	require.NoError(t, db.AutoMigrate(&ledger.Transaction{}))

	entry, err := svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{EventID: "evt-1"})
	require.NoError(t, err)
	require.Equal(t, int64(50), entry.Amount)
}

func TestAwardLedgerAuthoritativeWhenDedupUnavailable(t *testing.T) {
	db := testutil.NewTestDB(t, &ledger.Transaction{}, &ledger.Balance{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})

	// A client pointed at a closed port errors on every command.
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := NewService(ServiceParams{Ledger: ledgerSvc, Redis: rdb})
	ctx := context.Background()

	entry, err := svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{EventID: "evt-1"})
	require.NoError(t, err)
	require.Equal(t, int64(50), entry.Amount)

	// With redis down the ledger reference scope still dedups.
	_, err = svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{EventID: "evt-1"})
	require.ErrorIs(t, err, ErrAlreadyAwarded)
}

func TestAwardValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Award(ctx, "", TriggerRaceAdded, Context{RaceID: "race-1"})
	require.Error(t, err)

	_, err = svc.Award(ctx, "user-1", TriggerRaceAdded, Context{})
	require.Error(t, err)

	_, err = svc.Award(ctx, "user-1", TriggerHostingCompleted, Context{BookingID: "bk-1"})
	require.Error(t, err)

	_, err = svc.Award(ctx, "user-1", TriggerSubscriptionRenewed, Context{})
	require.Error(t, err)

	_, err = svc.Award(ctx, "user-1", Trigger("mystery"), Context{})
	require.Error(t, err)
}
