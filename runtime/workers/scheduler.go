package workers

import (
	"context"
	"log/slog"
	"time"

	"presencehub/domain"
	"presencehub/repositories"
)

// FireFunc executes one claimed scheduled notification.
type FireFunc func(ctx context.Context, task domain.ScheduledNotification) error

// Scheduler delivers scheduled notifications. Entries are durable task rows;
// a sweep runs immediately on start so past-due entries left behind by a
// restart are re-queued instead of silently dropped, then on every tick.
// Claim-before-fire makes each task execute exactly once.
type Scheduler struct {
	log       *slog.Logger
	schedules repositories.IScheduleRepository
	fire      FireFunc
	interval  time.Duration
}

func NewScheduler(log *slog.Logger, schedules repositories.IScheduleRepository,
	fire FireFunc, interval time.Duration) *Scheduler {
	return &Scheduler{log: log, schedules: schedules, fire: fire, interval: interval}
}

func (w *Scheduler) Run(ctx context.Context) error {
	// Recovery sweep before the first tick.
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping scheduler")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Scheduler) sweep(ctx context.Context) {
	due, err := w.schedules.Due(time.Now().UTC())
	if err != nil {
		w.log.Error("Scheduled-task scan failed", "error", err)
		return
	}
	for _, task := range due {
		claimed, err := w.schedules.Claim(task.ID)
		if err != nil {
			w.log.Error("Scheduled-task claim failed", "task_id", task.ID, "error", err)
			continue
		}
		if !claimed {
			// Another sweep won the claim.
			continue
		}
		if err := w.fire(ctx, task); err != nil {
			w.log.Error("Scheduled notification failed", "task_id", task.ID, "error", err)
		}
	}
}
