package rewards

import (
	"context"
	"errors"
	"time"

	"racestay-engine/pkg/errutil"
	"racestay-engine/pkg/rediskey"
	"racestay-engine/services/ledger"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrAlreadyAwarded signals an idempotent no-op: the triggering event
// was already credited. It is not a failure.
var ErrAlreadyAwarded = errors.New("reward already awarded")

// eventDedupTTL bounds how long webhook event IDs are remembered in
// redis. The ledger reference check remains authoritative beyond it.
const eventDedupTTL = 48 * time.Hour

type Service struct {
	ledger *ledger.Service
	redis  *redis.Client
}

type ServiceParams struct {
	fx.In
	Ledger *ledger.Service
	Redis  *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger: p.Ledger,
		redis:  p.Redis,
	}
}

// Award credits the fixed bonus for a trigger, at most once per scope.
// Retried calls (double-submitted forms, redelivered webhooks) return
// ErrAlreadyAwarded instead of crediting twice.
func (s *Service) Award(ctx context.Context, userID string, trigger Trigger, c Context) (*ledger.Transaction, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	aw, err := resolve(userID, trigger, c)
	if err != nil {
		return nil, err
	}

	zapLog := s.log(ctx).With(
		zap.String("user_id", userID),
		zap.String("trigger", string(trigger)),
		zap.String("reference_id", aw.ReferenceID),
	)

	// Fast path for redelivered webhooks: skip the database when the
	// event was already credited. The marker is written only after a
	// successful record, so a failed attempt never blocks the retry; the
	// ledger reference check below stays authoritative throughout.
	var eventKey string
	if s.redis != nil && c.EventID != "" {
		eventKey = rediskey.BuildRewardEventKey(c.EventID)
		seen, err := s.redis.Exists(ctx, eventKey).Result()
		if err != nil {
			zapLog.Warn("event dedup check unavailable, falling through to ledger", zap.Error(err))
		} else if seen > 0 {
			return nil, ErrAlreadyAwarded
		}
	}

	exists, err := s.ledger.HasTransaction(ctx, "", aw.Kind, aw.ReferenceID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyAwarded
	}

	entry, err := s.ledger.Record(ctx, ledger.RecordParams{
		UserID:      userID,
		Amount:      aw.Amount,
		Kind:        aw.Kind,
		ReferenceID: aw.ReferenceID,
		BookingID:   aw.BookingID,
		Description: aw.Description,
		Metadata:    map[string]string{"trigger": string(trigger)},
	})
	if err != nil {
		var dup ledger.ErrDuplicateReference
		if errors.As(err, &dup) {
			// Lost the race to a concurrent duplicate; same outcome.
			return nil, ErrAlreadyAwarded
		}
		zapLog.Error("failed to record award", zap.Error(err))
		return nil, err
	}

	if eventKey != "" {
		if err := s.redis.Set(ctx, eventKey, userID, eventDedupTTL).Err(); err != nil {
			zapLog.Warn("failed to mark event as credited", zap.Error(err))
		}
	}

	zapLog.Info("awarded points", zap.Int64("amount", aw.Amount))

	return entry, nil
}

// AwardInTx is Award for callers holding an open transaction, so a
// booking completion and its hosting reward commit atomically. Redis
// dedup is skipped; the ledger reference check inside the transaction
// is the guard.
func (s *Service) AwardInTx(ctx context.Context, tx *gorm.DB, userID string, trigger Trigger, c Context) (*ledger.Transaction, error) {
	aw, err := resolve(userID, trigger, c)
	if err != nil {
		return nil, err
	}

	entry, _, err := s.ledger.RecordInTx(ctx, tx, ledger.RecordParams{
		UserID:      userID,
		Amount:      aw.Amount,
		Kind:        aw.Kind,
		ReferenceID: aw.ReferenceID,
		BookingID:   aw.BookingID,
		Description: aw.Description,
		Metadata:    map[string]string{"trigger": string(trigger)},
	})
	if err != nil {
		var dup ledger.ErrDuplicateReference
		if errors.As(err, &dup) {
			return nil, ErrAlreadyAwarded
		}
		return nil, err
	}

	return entry, nil
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}
