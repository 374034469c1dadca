package matching

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
)

// PipelineConfig tunes the daily generation run
type PipelineConfig struct {
	ChunkSize           int
	CandidatePoolSize   int
	CompletionThreshold int
	FreeDailyLimit      int
	PremiumDailyLimit   int
	NotifyTopN          int
	InterUserDelay      time.Duration
	FanoutJitterMin     time.Duration
	FanoutJitterMax     time.Duration
	MatchTTL            time.Duration
}

// Pipeline orchestrates daily match generation: eligibility selection,
// chunked iteration, per-user idempotency, scoring, persistence and
// notification fan-out.
type Pipeline struct {
	repo     Repository
	engine   *ScoringEngine
	cache    ScoreCache
	notifier Notifier
	clock    clock.Clock
	cfg      PipelineConfig
	jitter   func() time.Duration
}

func NewPipeline(repo Repository, engine *ScoringEngine, cache ScoreCache, notifier Notifier, clk clock.Clock, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		repo:     repo,
		engine:   engine,
		cache:    cache,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		jitter:   jitterFunc(cfg.FanoutJitterMin, cfg.FanoutJitterMax),
	}
}

// GenerateForAllEligible runs generation for every eligible member,
// streamed in fixed-size chunks. One member's failure is logged and
// counted, never aborting the chunk or the run; an error return means
// the run itself could not proceed and should be retried whole.
func (p *Pipeline) GenerateForAllEligible(ctx context.Context) error {
	start := p.clock.Now()
	var generated, skipped, failed int
	var lastID int64

	for {
		members, err := p.repo.ListEligibleMembers(ctx, lastID, p.cfg.ChunkSize, p.cfg.CompletionThreshold)
		if err != nil {
			return fmt.Errorf("stream eligible members after %d: %w", lastID, err)
		}
		if len(members) == 0 {
			break
		}

		for _, m := range members {
			lastID = m.ID

			n, err := p.GenerateForUser(ctx, m.ID)
			switch {
			case err != nil:
				failed++
				generationFailures.Inc()
				log.Printf("matching: generation failed for member %d: %v", m.ID, err)
			case n < 0:
				skipped++
			default:
				generated++
			}

			// Pacing between users to smooth downstream load
			if p.cfg.InterUserDelay > 0 {
				select {
				case <-time.After(p.cfg.InterUserDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}

	generationRuns.Inc()
	log.Printf("matching: daily generation finished in %v (generated=%d skipped=%d failed=%d)",
		time.Since(start), generated, skipped, failed)
	return nil
}

// GenerateForUser scores candidates for one member and persists the
// top matches. Returns the number of matches persisted, or -1 when the
// member's generation slot for today was already claimed (no-op).
func (p *Pipeline) GenerateForUser(ctx context.Context, memberID int64) (int, error) {
	seeker, err := p.repo.GetSeekerContext(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if err := p.checkEligibility(seeker.Member); err != nil {
		return 0, err
	}

	day := DayKey(p.clock.Now())
	acquired, err := p.cache.AcquireGenerationMarker(ctx, memberID, day)
	if err != nil {
		return 0, fmt.Errorf("acquire generation marker: %w", err)
	}
	if !acquired {
		return -1, nil
	}

	scored, err := p.scoreCandidates(ctx, seeker, day)
	if err != nil {
		return 0, err
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	limit := p.dailyLimit(seeker.Member)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	expiresAt := p.clock.Now().Add(p.cfg.MatchTTL)
	recs := make([]*MatchRecord, 0, len(scored))
	for _, sc := range scored {
		rec := &MatchRecord{
			InitiatorID:    memberID,
			CandidateID:    sc.Candidate.Member.ID,
			CompositeScore: sc.Score,
			SubScores:      sc.SubScores,
			ExpiresAt:      &expiresAt,
		}
		written, err := p.repo.UpsertPendingMatch(ctx, rec)
		if err != nil {
			return 0, err
		}
		if !written {
			// Acted-on record raced into place since pool selection;
			// the pair is no longer offerable so it never counts or
			// fans out.
			continue
		}
		recs = append(recs, rec)

		matchesGenerated.Inc()
		scoreDistribution.Observe(sc.Score)
	}

	if err := p.repo.SetLastMatchesGeneratedAt(ctx, memberID); err != nil {
		log.Printf("matching: failed to stamp generation time for %d: %v", memberID, err)
	}

	p.notifyTopMatches(ctx, memberID, recs)
	return len(recs), nil
}

func (p *Pipeline) checkEligibility(m *Member) error {
	if m.AccountStatus != AccountActive || m.ProfileApproval != ApprovalApproved {
		return ErrProfileIncomplete
	}
	if m.ProfileCompletion < p.cfg.CompletionThreshold {
		return ErrProfileIncomplete
	}
	return nil
}

func (p *Pipeline) dailyLimit(m *Member) int {
	if m.PremiumActive {
		return p.cfg.PremiumDailyLimit
	}
	return p.cfg.FreeDailyLimit
}

func (p *Pipeline) scoreCandidates(ctx context.Context, seeker *SeekerContext, day string) ([]*ScoredCandidate, error) {
	candidates, err := p.repo.ListCandidates(ctx, seeker.Member.ID, p.cfg.CandidatePoolSize)
	if err != nil {
		return nil, err
	}

	blocked, err := p.repo.ListBlockedMemberIDs(ctx, seeker.Member.ID)
	if err != nil {
		return nil, err
	}
	candidates = ExcludeBlocked(candidates, blocked)

	scored := make([]*ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		score, subs, err := p.scoreOne(ctx, seeker, c, day)
		if err != nil {
			// Cache trouble is not worth losing the candidate over
			log.Printf("matching: score cache error for pair (%d,%d): %v", seeker.Member.ID, c.Member.ID, err)
			score, subs = p.engine.Score(seeker, c)
		}
		scored = append(scored, &ScoredCandidate{Candidate: c, Score: score, SubScores: subs})
	}
	return scored, nil
}

func (p *Pipeline) scoreOne(ctx context.Context, seeker *SeekerContext, c *CandidateContext, day string) (float64, SubScores, error) {
	if cached, ok, err := p.cache.GetScore(ctx, seeker.Member.ID, c.Member.ID, day); err != nil {
		return 0, SubScores{}, err
	} else if ok {
		scoreCacheHits.Inc()
		return cached.Score, cached.SubScores, nil
	}

	score, subs := p.engine.Score(seeker, c)
	if err := p.cache.PutScore(ctx, seeker.Member.ID, c.Member.ID, day, &CachedScore{Score: score, SubScores: subs}); err != nil {
		return score, subs, err
	}
	return score, subs, nil
}

// notifyTopMatches fans out the best few matches, each with its own
// randomized delay so the recipient is not pinged in a burst.
func (p *Pipeline) notifyTopMatches(ctx context.Context, memberID int64, recs []*MatchRecord) {
	top := p.cfg.NotifyTopN
	if top > len(recs) {
		top = len(recs)
	}

	for _, rec := range recs[:top] {
		err := p.notifier.EnqueueNewMatch(ctx, memberID, rec.CandidateID, rec.ID, rec.CompositeScore, p.jitter())
		if err != nil {
			log.Printf("matching: failed to enqueue new-match fanout for %d: %v", memberID, err)
		}
	}
}

// ExcludeBlocked filters candidates whose pair with the seeker is
// blocked in either direction, preserving order.
func ExcludeBlocked(candidates []*CandidateContext, blocked map[int64]bool) []*CandidateContext {
	if len(blocked) == 0 {
		return candidates
	}
	filtered := candidates[:0]
	for _, c := range candidates {
		if !blocked[c.Member.ID] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
