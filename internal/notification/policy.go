package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
)

// Veto reasons surfaced as metric labels
const (
	vetoGloballyDisabled = "globally_disabled"
	vetoTypeDisabled     = "type_disabled"
	vetoActiveContext    = "active_context"
	vetoBlocked          = "blocked"
	vetoQuietHours       = "quiet_hours"
	vetoDailyCap         = "daily_cap"
	vetoRateLimit        = "rate_limit"
)

// RelationshipChecker answers whether a pair of members is blocked.
// Implemented by the matching repository.
type RelationshipChecker interface {
	IsBlocked(ctx context.Context, a, b int64) (bool, error)
}

// Counters exposes the delivery counters and presence markers backing
// caps, rate windows and active-context suppression.
type Counters interface {
	DailyCount(ctx context.Context, userID int64, t NotificationType, day string) (int, error)
	WindowCount(ctx context.Context, userID int64, t NotificationType, window string) (int, error)
	RecordDelivery(ctx context.Context, userID int64, t NotificationType, day, window string) error
	IsActiveContext(ctx context.Context, userID int64, conversationID string) (bool, error)
}

// PolicyConfig tunes the dispatch checks
type PolicyConfig struct {
	QuietHoursStart            int
	QuietHoursEnd              int
	DefaultTimezone            string
	NewMatchDailyCap           int
	ProfileViewDailyCap        int
	ProfileViewDailyCapPremium int
	InterestDailyCap           int
	MessageRatePerMinute       int
}

// DispatchPolicy decides whether a notification may be delivered to a
// recipient. Every check can veto; the first veto wins.
type DispatchPolicy struct {
	counters      Counters
	relationships RelationshipChecker
	clock         clock.Clock
	cfg           PolicyConfig
}

func NewDispatchPolicy(counters Counters, relationships RelationshipChecker, clk clock.Clock, cfg PolicyConfig) *DispatchPolicy {
	return &DispatchPolicy{
		counters:      counters,
		relationships: relationships,
		clock:         clk,
		cfg:           cfg,
	}
}

// ShouldNotify runs the veto chain for a recipient and event. A veto
// is a normal outcome, not an error.
func (p *DispatchPolicy) ShouldNotify(ctx context.Context, recipient *Recipient, t NotificationType, dctx *DispatchContext) (bool, error) {
	if dctx == nil {
		dctx = &DispatchContext{}
	}

	// 1. Global opt-out
	if !recipient.NotificationsEnabled {
		return p.veto(t, vetoGloballyDisabled), nil
	}
	if !recipient.TypeEnabled(t) {
		return p.veto(t, vetoTypeDisabled), nil
	}

	// 2. Already looking at the same conversation
	if t == TypeMessage && dctx.ConversationID != "" {
		active, err := p.counters.IsActiveContext(ctx, recipient.ID, dctx.ConversationID)
		if err != nil {
			return false, fmt.Errorf("active-context check: %w", err)
		}
		if active {
			return p.veto(t, vetoActiveContext), nil
		}
	}

	// 3. Blocked relationship
	if dctx.ActorID != 0 {
		blocked, err := p.relationships.IsBlocked(ctx, recipient.ID, dctx.ActorID)
		if err != nil {
			return false, fmt.Errorf("blocked check: %w", err)
		}
		if blocked {
			return p.veto(t, vetoBlocked), nil
		}
	}

	// 4. Quiet hours; urgent types pass through
	if !t.Urgent() && p.inQuietHours(recipient) {
		return p.veto(t, vetoQuietHours), nil
	}

	now := p.clock.Now()

	// 5. Per-type daily cap
	if limit := p.dailyCapFor(t, recipient); limit > 0 {
		count, err := p.counters.DailyCount(ctx, recipient.ID, t, now.Format("2006-01-02"))
		if err != nil {
			return false, fmt.Errorf("daily cap check: %w", err)
		}
		if count >= limit {
			return p.veto(t, vetoDailyCap), nil
		}
	}

	// 6. Short-window rate limit for message bursts
	if t == TypeMessage && p.cfg.MessageRatePerMinute > 0 {
		window := now.Format("2006-01-02T15:04")
		count, err := p.counters.WindowCount(ctx, recipient.ID, t, window)
		if err != nil {
			return false, fmt.Errorf("rate limit check: %w", err)
		}
		if count >= p.cfg.MessageRatePerMinute {
			return p.veto(t, vetoRateLimit), nil
		}
	}

	return true, nil
}

// RecordDelivery bumps the counters consulted by caps and rate limits
func (p *DispatchPolicy) RecordDelivery(ctx context.Context, userID int64, t NotificationType) error {
	now := p.clock.Now()
	return p.counters.RecordDelivery(ctx, userID, t,
		now.Format("2006-01-02"), now.Format("2006-01-02T15:04"))
}

func (p *DispatchPolicy) veto(t NotificationType, reason string) bool {
	notificationsVetoed.WithLabelValues(string(t), reason).Inc()
	return false
}

func (p *DispatchPolicy) inQuietHours(recipient *Recipient) bool {
	loc, err := time.LoadLocation(recipient.Timezone)
	if err != nil || recipient.Timezone == "" {
		loc, err = time.LoadLocation(p.cfg.DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
	}

	hour := p.clock.Now().In(loc).Hour()
	start, end := p.cfg.QuietHoursStart, p.cfg.QuietHoursEnd
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	// Window wraps midnight, e.g. 22:00-07:00
	return hour >= start || hour < end
}

func (p *DispatchPolicy) dailyCapFor(t NotificationType, recipient *Recipient) int {
	switch t {
	case TypeNewMatch:
		return p.cfg.NewMatchDailyCap
	case TypeProfileView:
		if recipient.PremiumActive {
			return p.cfg.ProfileViewDailyCapPremium
		}
		return p.cfg.ProfileViewDailyCap
	case TypeInterestExpressed:
		return p.cfg.InterestDailyCap
	default:
		return 0 // unlimited
	}
}

// redisCounters backs the policy counters with Redis INCR/EXPIRE keys
type redisCounters struct {
	client *redis.Client
}

func NewRedisCounters(client *redis.Client) Counters {
	return &redisCounters{client: client}
}

func dailyKey(userID int64, t NotificationType, day string) string {
	return fmt.Sprintf("notify:cap:%d:%s:%s", userID, t, day)
}

func windowKey(userID int64, t NotificationType, window string) string {
	return fmt.Sprintf("notify:rate:%d:%s:%s", userID, t, window)
}

func (c *redisCounters) DailyCount(ctx context.Context, userID int64, t NotificationType, day string) (int, error) {
	return c.getCount(ctx, dailyKey(userID, t, day))
}

func (c *redisCounters) WindowCount(ctx context.Context, userID int64, t NotificationType, window string) (int, error) {
	return c.getCount(ctx, windowKey(userID, t, window))
}

func (c *redisCounters) getCount(ctx context.Context, key string) (int, error) {
	count, err := c.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter get %s: %w", key, err)
	}
	return count, nil
}

func (c *redisCounters) RecordDelivery(ctx context.Context, userID int64, t NotificationType, day, window string) error {
	pipe := c.client.TxPipeline()
	daily := dailyKey(userID, t, day)
	win := windowKey(userID, t, window)
	pipe.Incr(ctx, daily)
	pipe.Expire(ctx, daily, 26*time.Hour)
	pipe.Incr(ctx, win)
	pipe.Expire(ctx, win, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("notification: failed to record delivery counters for %d: %v", userID, err)
		return err
	}
	return nil
}

// IsActiveContext checks the presence marker the client-facing service
// refreshes while a member is viewing a conversation.
func (c *redisCounters) IsActiveContext(ctx context.Context, userID int64, conversationID string) (bool, error) {
	key := fmt.Sprintf("presence:%d:%s", userID, conversationID)
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("presence check %s: %w", key, err)
	}
	return n > 0, nil
}
