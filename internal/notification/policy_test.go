package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
)

// fakeCounters backs the policy with plain maps
type fakeCounters struct {
	daily   map[string]int
	window  map[string]int
	present map[string]bool
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{
		daily:   make(map[string]int),
		window:  make(map[string]int),
		present: make(map[string]bool),
	}
}

func (c *fakeCounters) DailyCount(_ context.Context, userID int64, t NotificationType, day string) (int, error) {
	return c.daily[dailyKey(userID, t, day)], nil
}

func (c *fakeCounters) WindowCount(_ context.Context, userID int64, t NotificationType, window string) (int, error) {
	return c.window[windowKey(userID, t, window)], nil
}

func (c *fakeCounters) RecordDelivery(_ context.Context, userID int64, t NotificationType, day, window string) error {
	c.daily[dailyKey(userID, t, day)]++
	c.window[windowKey(userID, t, window)]++
	return nil
}

func (c *fakeCounters) IsActiveContext(_ context.Context, userID int64, conversationID string) (bool, error) {
	return c.present[activeKey(userID, conversationID)], nil
}

func activeKey(userID int64, conversationID string) string {
	return fmt.Sprintf("%d:%s", userID, conversationID)
}

type fakeRelationships struct {
	blocked map[[2]int64]bool
}

func (r *fakeRelationships) IsBlocked(_ context.Context, a, b int64) (bool, error) {
	if a > b {
		a, b = b, a
	}
	return r.blocked[[2]int64{a, b}], nil
}

func policyTestConfig() PolicyConfig {
	return PolicyConfig{
		QuietHoursStart:            22,
		QuietHoursEnd:              7,
		DefaultTimezone:            "UTC",
		NewMatchDailyCap:           5,
		ProfileViewDailyCap:        3,
		ProfileViewDailyCapPremium: 10,
		InterestDailyCap:           5,
		MessageRatePerMinute:       3,
	}
}

func enabledRecipient() *Recipient {
	return &Recipient{
		ID:                   10,
		Email:                "m@example.com",
		Timezone:             "UTC",
		NotificationsEnabled: true,
		PushEnabled:          true,
		EmailEnabled:         true,
		NewMatches:           true,
		Messages:             true,
		ProfileViews:         true,
		Interests:            true,
	}
}

// noon UTC, well outside the 22:00-07:00 quiet window
func daytime() time.Time {
	return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
}

func nighttime() time.Time {
	return time.Date(2026, 6, 15, 23, 30, 0, 0, time.UTC)
}

func newTestPolicy(counters Counters, rel RelationshipChecker, at time.Time) *DispatchPolicy {
	return NewDispatchPolicy(counters, rel, clock.NewFixed(at), policyTestConfig())
}

func TestShouldNotifyAllowsByDefault(t *testing.T) {
	policy := newTestPolicy(newFakeCounters(), &fakeRelationships{}, daytime())

	ok, err := policy.ShouldNotify(context.Background(), enabledRecipient(), TypeNewMatch, &DispatchContext{ActorID: 2})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldNotifyGlobalOptOut(t *testing.T) {
	policy := newTestPolicy(newFakeCounters(), &fakeRelationships{}, daytime())
	recipient := enabledRecipient()
	recipient.NotificationsEnabled = false

	for _, typ := range []NotificationType{TypeNewMatch, TypeMutualMatch, TypeMessage} {
		ok, err := policy.ShouldNotify(context.Background(), recipient, typ, nil)
		require.NoError(t, err)
		assert.False(t, ok, "global opt-out must veto %s", typ)
	}
}

func TestShouldNotifyTypeOptOut(t *testing.T) {
	policy := newTestPolicy(newFakeCounters(), &fakeRelationships{}, daytime())
	recipient := enabledRecipient()
	recipient.Messages = false

	ok, err := policy.ShouldNotify(context.Background(), recipient, TypeMessage, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// other types unaffected
	ok, err = policy.ShouldNotify(context.Background(), recipient, TypeNewMatch, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldNotifyActiveConversationSuppressed(t *testing.T) {
	counters := newFakeCounters()
	counters.present[activeKey(10, "conv-1")] = true
	policy := newTestPolicy(counters, &fakeRelationships{}, daytime())

	ok, err := policy.ShouldNotify(context.Background(), enabledRecipient(), TypeMessage,
		&DispatchContext{ActorID: 2, ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.False(t, ok)

	// a different conversation still notifies
	ok, err = policy.ShouldNotify(context.Background(), enabledRecipient(), TypeMessage,
		&DispatchContext{ActorID: 2, ConversationID: "conv-2"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldNotifyBlockedActor(t *testing.T) {
	rel := &fakeRelationships{blocked: map[[2]int64]bool{{2, 10}: true}}
	policy := newTestPolicy(newFakeCounters(), rel, daytime())

	ok, err := policy.ShouldNotify(context.Background(), enabledRecipient(), TypeMessage, &DispatchContext{ActorID: 2})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldNotifyQuietHours(t *testing.T) {
	policy := newTestPolicy(newFakeCounters(), &fakeRelationships{}, nighttime())

	ok, err := policy.ShouldNotify(context.Background(), enabledRecipient(), TypeNewMatch, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldNotifyQuietHoursWrapsMidnight(t *testing.T) {
	early := time.Date(2026, 6, 16, 3, 0, 0, 0, time.UTC)
	policy := newTestPolicy(newFakeCounters(), &fakeRelationships{}, early)

	ok, err := policy.ShouldNotify(context.Background(), enabledRecipient(), TypeProfileView, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldNotifyUrgentBypassesQuietHours(t *testing.T) {
	policy := newTestPolicy(newFakeCounters(), &fakeRelationships{}, nighttime())

	for _, typ := range []NotificationType{TypeMutualMatch, TypeSuperLike} {
		ok, err := policy.ShouldNotify(context.Background(), enabledRecipient(), typ, nil)
		require.NoError(t, err)
		assert.True(t, ok, "%s must pass through quiet hours", typ)
	}
}

func TestShouldNotifyQuietHoursUsesRecipientTimezone(t *testing.T) {
	// 23:30 UTC is 05:00 in Kolkata the next day, still inside quiet
	// hours there; 12:00 UTC is 17:30, outside.
	recipient := enabledRecipient()
	recipient.Timezone = "Asia/Kolkata"

	policy := newTestPolicy(newFakeCounters(), &fakeRelationships{}, nighttime())
	ok, err := policy.ShouldNotify(context.Background(), recipient, TypeNewMatch, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	policy = newTestPolicy(newFakeCounters(), &fakeRelationships{}, daytime())
	ok, err = policy.ShouldNotify(context.Background(), recipient, TypeNewMatch, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldNotifyDailyCap(t *testing.T) {
	counters := newFakeCounters()
	policy := newTestPolicy(counters, &fakeRelationships{}, daytime())
	recipient := enabledRecipient()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := policy.ShouldNotify(ctx, recipient, TypeNewMatch, nil)
		require.NoError(t, err)
		require.True(t, ok, "delivery %d should pass", i+1)
		require.NoError(t, policy.RecordDelivery(ctx, recipient.ID, TypeNewMatch))
	}

	ok, err := policy.ShouldNotify(ctx, recipient, TypeNewMatch, nil)
	require.NoError(t, err)
	assert.False(t, ok, "sixth new-match of the day must be capped")
}

func TestShouldNotifyPremiumProfileViewCap(t *testing.T) {
	counters := newFakeCounters()
	policy := newTestPolicy(counters, &fakeRelationships{}, daytime())
	ctx := context.Background()

	free := enabledRecipient()
	premium := enabledRecipient()
	premium.ID = 11
	premium.PremiumActive = true

	for i := 0; i < 3; i++ {
		require.NoError(t, policy.RecordDelivery(ctx, free.ID, TypeProfileView))
		require.NoError(t, policy.RecordDelivery(ctx, premium.ID, TypeProfileView))
	}

	ok, err := policy.ShouldNotify(ctx, free, TypeProfileView, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = policy.ShouldNotify(ctx, premium, TypeProfileView, nil)
	require.NoError(t, err)
	assert.True(t, ok, "premium cap is higher")
}

func TestShouldNotifyMessageRateLimit(t *testing.T) {
	counters := newFakeCounters()
	clk := clock.NewFixed(daytime())
	policy := NewDispatchPolicy(counters, &fakeRelationships{}, clk, policyTestConfig())
	recipient := enabledRecipient()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := policy.ShouldNotify(ctx, recipient, TypeMessage, nil)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, policy.RecordDelivery(ctx, recipient.ID, TypeMessage))
	}

	ok, err := policy.ShouldNotify(ctx, recipient, TypeMessage, nil)
	require.NoError(t, err)
	assert.False(t, ok, "burst beyond the per-minute rate must be vetoed")

	// the window rolls over a minute later
	clk.Advance(time.Minute)
	ok, err = policy.ShouldNotify(ctx, recipient, TypeMessage, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldNotifyMutualMatchUnlimitedDaily(t *testing.T) {
	counters := newFakeCounters()
	policy := newTestPolicy(counters, &fakeRelationships{}, daytime())
	recipient := enabledRecipient()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, policy.RecordDelivery(ctx, recipient.ID, TypeMutualMatch))
	}

	ok, err := policy.ShouldNotify(ctx, recipient, TypeMutualMatch, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
