package event

import (
	"context"
	"encoding/json"

	"racestay-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RegisterHandlers consumes the notification tasks in the worker. Actual
// delivery (mail, push) lives in the external notifier; this boundary
// decodes and records the event so the queue drains even when the
// notifier is not deployed.
func RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.NotifyBookingStatus, handleBookingStatus)
	mux.HandleFunc(taskname.NotifyBalanceChange, handleBalanceChange)
}

func handleBookingStatus(_ context.Context, t *asynq.Task) error {
	var ev BookingStatusChanged
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		zap.L().Error("invalid booking status payload", zap.Error(err))
		return err
	}

	zap.L().Info("booking status changed",
		zap.String("booking_id", ev.BookingID),
		zap.String("from", ev.From),
		zap.String("to", ev.To),
	)
	return nil
}

func handleBalanceChange(_ context.Context, t *asynq.Task) error {
	var ev BalanceChanged
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		zap.L().Error("invalid balance change payload", zap.Error(err))
		return err
	}

	zap.L().Info("balance changed",
		zap.String("user_id", ev.UserID),
		zap.Int64("delta", ev.Delta),
		zap.Int64("new_balance", ev.NewBalance),
		zap.String("kind", ev.Kind),
	)
	return nil
}
