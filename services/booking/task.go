package booking

import (
	"context"
	"time"

	"racestay-engine/pkg/task"
	"racestay-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Worker handles booking tasks on the asynq side.
type Worker struct {
	service *Service
}

func NewWorker(svc *Service) *Worker {
	return &Worker{service: svc}
}

func RegisterTaskHandlers(mux *asynq.ServeMux, w *Worker) {
	mux.HandleFunc(taskname.BookingExpiryRun, w.HandleExpiryRun)
}

// HandleExpiryRun sweeps pending bookings whose expiry window has
// passed. The sweep is idempotent, so a redelivered task is harmless.
func (w *Worker) HandleExpiryRun(ctx context.Context, _ *asynq.Task) error {
	swept, err := w.service.ExpirePending(ctx, time.Now())
	if err != nil {
		zap.L().Error("[Scheduler] expiry sweep failed", zap.Error(err))
		return err
	}

	zap.L().Info("[Scheduler] expiry sweep finished", zap.Int("swept", swept))
	return nil
}

// Scheduler enqueues the daily expiry sweep.
type Scheduler struct {
	enqueuer task.Enqueuer
	cancel   context.CancelFunc
}

func NewScheduler(enqueuer task.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if s.cancel != nil {
				s.cancel()
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started booking expiry scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, 2, 0)

		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", next.Sub(now)),
		)
		select {
		case <-time.After(next.Sub(now)):
			s.enqueueSweep(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) enqueueSweep(ctx context.Context) {
	if _, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.BookingExpiryRun, nil), asynq.Queue("default")); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue expiry sweep", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] enqueued expiry sweep")
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
