package workers

import (
	"context"
	"log/slog"

	"presencehub/contract"
)

// PushOutbox is the task queue for offline push side effects. Services
// enqueue, one supervised worker drains. Push failures are logged and
// dropped: messaging and notification success never depend on push success.
type PushOutbox struct {
	log    *slog.Logger
	sender contract.PushSender
	jobs   chan contract.PushJob
}

func NewPushOutbox(log *slog.Logger, sender contract.PushSender, bufferSize int) *PushOutbox {
	return &PushOutbox{log: log, sender: sender, jobs: make(chan contract.PushJob, bufferSize)}
}

// Enqueue hands a job to the worker without blocking the caller.
// A full queue drops the job; the durable record already exists, so the
// recipient still sees it on next fetch.
func (w *PushOutbox) Enqueue(job contract.PushJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		w.log.Warn("Push outbox full, dropping job", "addresses", len(job.Addresses))
		return false
	}
}

func (w *PushOutbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping push outbox")
			return nil
		case job := <-w.jobs:
			w.send(ctx, job)
		}
	}
}

func (w *PushOutbox) send(ctx context.Context, job contract.PushJob) {
	var err error
	switch len(job.Addresses) {
	case 0:
		return
	case 1:
		err = w.sender.SendOne(ctx, job.Addresses[0], job.Title, job.Body, job.Data)
	default:
		err = w.sender.SendBatch(ctx, job.Addresses, job.Title, job.Body, job.Data)
	}
	if err != nil {
		w.log.Warn("Offline push failed", "addresses", len(job.Addresses), "error", err)
	}
}
