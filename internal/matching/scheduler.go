package matching

import (
	"context"
	"log"
	"time"
)

// BatchEnqueuer submits the all-users generation task to the matching
// queue. Implemented by the notification/task dispatcher layer.
type BatchEnqueuer interface {
	EnqueueGenerateAll(ctx context.Context) error
}

// Scheduler fires the daily generation run and the stale-match sweep
type Scheduler struct {
	repo     Repository
	enqueuer BatchEnqueuer
	hour     int
}

func NewScheduler(repo Repository, enqueuer BatchEnqueuer, hourOfDay int) *Scheduler {
	return &Scheduler{repo: repo, enqueuer: enqueuer, hour: hourOfDay}
}

func (s *Scheduler) Start(ctx context.Context) {
	go s.runDaily(ctx, s.hour, 0, func(ctx context.Context) error {
		return s.enqueuer.EnqueueGenerateAll(ctx)
	})

	// Expire aged-out pending matches shortly after midnight
	go s.runDaily(ctx, 0, 30, func(ctx context.Context) error {
		n, err := s.repo.ExpireStaleMatches(ctx)
		if err == nil && n > 0 {
			log.Printf("matching: expired %d stale match records", n)
		}
		return err
	})
}

func (s *Scheduler) runDaily(ctx context.Context, hour, minute int, task func(context.Context) error) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if now.After(next) {
			next = next.Add(24 * time.Hour)
		}

		timer := time.NewTimer(next.Sub(now))

		select {
		case <-timer.C:
			if err := task(ctx); err != nil {
				log.Printf("matching: scheduled task failed: %v", err)
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}
