package notification

import (
	"context"
	"log"
	"time"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
)

// CleanupJob periodically purges notification records past their
// expiry. Records are stamped with a per-type expires_at at creation,
// so a single sweep honors both retention windows.
type CleanupJob struct {
	repo     Repository
	clock    clock.Clock
	interval time.Duration
	stopCh   chan struct{}
}

func NewCleanupJob(repo Repository, clk clock.Clock, interval time.Duration) *CleanupJob {
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return &CleanupJob{
		repo:     repo,
		clock:    clk,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (j *CleanupJob) Start(ctx context.Context) {
	log.Printf("notification: starting cleanup job, interval %v", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-j.stopCh:
			log.Println("notification: stopping cleanup job")
			return
		case <-ctx.Done():
			log.Println("notification: context cancelled, stopping cleanup job")
			return
		}
	}
}

func (j *CleanupJob) Stop() {
	close(j.stopCh)
}

func (j *CleanupJob) sweep(ctx context.Context) {
	start := time.Now()
	n, err := j.repo.DeleteExpired(ctx, j.clock.Now())
	if err != nil {
		log.Printf("notification: cleanup failed: %v", err)
		return
	}
	log.Printf("notification: cleanup removed %d records in %v", n, time.Since(start))
}
