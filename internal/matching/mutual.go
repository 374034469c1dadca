package matching

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// Notifier enqueues notification-fanout tasks. Implemented by the
// notification task dispatcher; faked in tests.
type Notifier interface {
	EnqueueNewMatch(ctx context.Context, recipientID, matchedID, matchID int64, score float64, delay time.Duration) error
	EnqueueMutualMatch(ctx context.Context, recipientID, matchedID, matchID int64, delay time.Duration) error
	EnqueueSuperLike(ctx context.Context, recipientID, fromID, matchID int64, delay time.Duration) error
}

// MutualMatchDetector records member actions and detects mutual
// interest within the same transaction, so a mutual match is observed
// exactly once and triggers exactly one notification pair.
type MutualMatchDetector struct {
	repo     Repository
	notifier Notifier
	jitter   func() time.Duration
}

func NewMutualMatchDetector(repo Repository, notifier Notifier, jitterMin, jitterMax time.Duration) *MutualMatchDetector {
	return &MutualMatchDetector{
		repo:     repo,
		notifier: notifier,
		jitter:   jitterFunc(jitterMin, jitterMax),
	}
}

// RecordAction applies one member's action toward another. On a newly
// established mutual match both sides get a fanout task; a super-like
// that is not yet mutual notifies the target.
func (d *MutualMatchDetector) RecordAction(ctx context.Context, actorID, targetID int64, action MatchAction) (*ActionResult, error) {
	if actorID == targetID {
		return nil, fmt.Errorf("member %d cannot act on themselves", actorID)
	}

	result, err := d.repo.RecordAction(ctx, actorID, targetID, action)
	if err != nil {
		return nil, err
	}
	if result.AlreadyFinal {
		log.Printf("matching: action %s from %d on blocked pair with %d ignored", action, actorID, targetID)
		return result, nil
	}

	recordAction(string(action))

	switch {
	case result.NewlyMutual:
		recordMutualMatch()
		if err := d.notifier.EnqueueMutualMatch(ctx, actorID, targetID, result.Record.ID, d.jitter()); err != nil {
			log.Printf("matching: failed to enqueue mutual-match fanout for %d: %v", actorID, err)
		}
		if err := d.notifier.EnqueueMutualMatch(ctx, targetID, actorID, result.Record.ID, d.jitter()); err != nil {
			log.Printf("matching: failed to enqueue mutual-match fanout for %d: %v", targetID, err)
		}
	case action == ActionSuperLiked:
		if err := d.notifier.EnqueueSuperLike(ctx, targetID, actorID, result.Record.ID, d.jitter()); err != nil {
			log.Printf("matching: failed to enqueue super-like fanout for %d: %v", targetID, err)
		}
	}

	return result, nil
}

// IsMutual reports whether the two members have a mutual match.
// Symmetric and side-effect free; safe to call repeatedly.
func (d *MutualMatchDetector) IsMutual(ctx context.Context, a, b int64) (bool, error) {
	rec, err := d.repo.GetMatchRecord(ctx, a, b)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return IsMutualPair(rec.InitiatorAction, rec.CandidateAction), nil
}

func jitterFunc(min, max time.Duration) func() time.Duration {
	if max <= min {
		return func() time.Duration { return min }
	}
	return func() time.Duration {
		return min + time.Duration(rand.Int63n(int64(max-min)))
	}
}
