package event

import (
	"context"
	"encoding/json"

	"racestay-engine/pkg/task"
	"racestay-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// BookingStatusChanged is published on every booking state transition.
type BookingStatusChanged struct {
	BookingID string `json:"booking_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// BalanceChanged is published whenever a ledger entry moves points.
type BalanceChanged struct {
	UserID     string `json:"user_id"`
	Delta      int64  `json:"delta"`
	NewBalance int64  `json:"new_balance"`
	Kind       string `json:"kind"`
}

// Emitter hands domain events to the notification collaborator. Delivery
// is out of scope here; emission failures are logged and never fail the
// operation that produced the event.
type Emitter interface {
	BookingStatusChanged(ctx context.Context, ev BookingStatusChanged)
	BalanceChanged(ctx context.Context, ev BalanceChanged)
}

var Module = fx.Module("event.emitter",
	fx.Provide(NewAsynqEmitter),
)

type asynqEmitter struct {
	enqueuer task.Enqueuer
}

// NewAsynqEmitter publishes events as asynq tasks on the low queue for
// the notifier worker to consume.
func NewAsynqEmitter(enqueuer task.Enqueuer) Emitter {
	return &asynqEmitter{enqueuer: enqueuer}
}

func (e *asynqEmitter) BookingStatusChanged(ctx context.Context, ev BookingStatusChanged) {
	e.publish(ctx, taskname.NotifyBookingStatus, ev)
}

func (e *asynqEmitter) BalanceChanged(ctx context.Context, ev BalanceChanged) {
	e.publish(ctx, taskname.NotifyBalanceChange, ev)
}

func (e *asynqEmitter) publish(ctx context.Context, name string, ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("failed to marshal event", zap.String("task_type", name), zap.Error(err))
		return
	}

	if _, err := e.enqueuer.Enqueue(ctx, asynq.NewTask(name, payload), asynq.Queue("low")); err != nil {
		zap.L().Error("failed to publish event", zap.String("task_type", name), zap.Error(err))
	}
}

// Nop discards events; used by tests and offline tooling.
type Nop struct{}

func (Nop) BookingStatusChanged(context.Context, BookingStatusChanged) {}

func (Nop) BalanceChanged(context.Context, BalanceChanged) {}
